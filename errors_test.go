package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestErrorScopeClassification(t *testing.T) {
	connErr := NewGoAwayError(ProtocolError, "bad frame")
	he, ok := connErr.(Error)
	require.True(t, ok)
	require.True(t, he.IsConnectionFatal())
	require.Equal(t, ProtocolError, he.Code())
	require.Equal(t, "PROTOCOL_ERROR: bad frame", he.Error())

	streamErr := NewResetStreamError(CancelError, "")
	se, ok := streamErr.(Error)
	require.True(t, ok)
	require.False(t, se.IsConnectionFatal())
	require.Equal(t, "CANCEL", se.Error())
}

func TestErrorCodeStringUnknown(t *testing.T) {
	var c ErrorCode = 0xff
	require.Equal(t, "UNKNOWN(0xff)", c.String())
}
