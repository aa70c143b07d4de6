package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHPACKRoundTrip(t *testing.T) {
	enc := NewHPACK(4096)
	dec := NewHPACK(4096)

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)
	hf.SetBytes(StringMethod, StringGET)

	var block []byte
	block = enc.AppendHeader(block, hf, true)

	hf.SetKeyBytes(StringPath)
	hf.SetValueBytes([]byte("/index.html"))
	block = enc.AppendHeader(block, hf, true)

	fields, err := dec.Decode(nil, block)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	require.Equal(t, ":method", fields[0].Key())
	require.Equal(t, "GET", fields[0].Value())
	require.Equal(t, ":path", fields[1].Key())
	require.Equal(t, "/index.html", fields[1].Value())
}

func TestHPACKDecodeInvalidBlockIsCompressionError(t *testing.T) {
	dec := NewHPACK(4096)

	_, err := dec.Decode(nil, []byte{0xff, 0xff, 0xff, 0xff, 0xff})
	require.Error(t, err)

	he, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, CompressionError, he.Code())
	require.True(t, he.IsConnectionFatal())
}
