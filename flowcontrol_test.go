package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlowControlConnRecvRejectsOverdraw(t *testing.T) {
	fc := NewFlowControl(1<<16, 1<<16, 1<<20)

	err := fc.OnConnRecvData(1 << 15)
	require.NoError(t, err)

	err = fc.OnConnRecvData(1 << 16)
	require.Error(t, err)

	herr, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, FlowControlError, herr.Code())
	require.True(t, herr.IsConnectionFatal())
}

func TestFlowControlConnWindowUpdateAtHalfThreshold(t *testing.T) {
	fc := NewFlowControl(1000, 1000, 1000)

	_, ok := fc.ConnWindowUpdateNeeded()
	require.False(t, ok)

	require.NoError(t, fc.OnConnRecvData(600))

	inc, ok := fc.ConnWindowUpdateNeeded()
	require.True(t, ok)
	require.Equal(t, uint32(600), inc)
	require.Equal(t, int64(1000), fc.ConnInputWindow())
}

func TestFlowControlStreamRecvRejectsOverdraw(t *testing.T) {
	fc := NewFlowControl(1<<20, 1<<16, 1<<20)
	s := AcquireStream(1)
	fc.InitStreamWindows(s, 1<<16)

	err := fc.OnStreamRecvData(s, 1<<16+1)
	require.Error(t, err)

	herr, ok := err.(Error)
	require.True(t, ok)
	require.Equal(t, FlowControlError, herr.Code())
	require.False(t, herr.IsConnectionFatal())
}

func TestFlowControlStreamWindowUpdateBatching(t *testing.T) {
	fc := NewFlowControl(1<<20, 1000, 1<<20)
	s := AcquireStream(1)
	fc.InitStreamWindows(s, 1<<16)

	require.NoError(t, fc.OnStreamRecvData(s, 300))
	_, ok := fc.StreamWindowUpdateNeeded(s, 300)
	require.False(t, ok)

	require.NoError(t, fc.OnStreamRecvData(s, 500))
	inc, ok := fc.StreamWindowUpdateNeeded(s, 500)
	require.True(t, ok)
	require.Equal(t, uint32(800), inc)
	require.Equal(t, int64(1000), s.InputWindow())
}

func TestFlowControlWidenForStreamingGrowsOnce(t *testing.T) {
	fc := NewFlowControl(1<<20, 1000, 1<<16)
	s := AcquireStream(1)
	fc.InitStreamWindows(s, 1<<16)

	inc := fc.WidenForStreaming(s)
	require.Equal(t, uint32(1<<16-1000), inc)
	require.Equal(t, int64(1<<16), s.InputWindow())

	require.Equal(t, uint32(0), fc.WidenForStreaming(s))
}

func TestFlowControlApplyInitialWindowDeltaAffectsLiveStreamsOnly(t *testing.T) {
	fc := NewFlowControl(1<<20, 1000, 1<<20)
	reg := NewStreamRegistry()

	s1 := AcquireStream(1)
	fc.InitStreamWindows(s1, 1000)
	reg.Open(s1)

	fc.ApplyInitialWindowDelta(500, reg)
	require.Equal(t, int64(1500), s1.OutputWindow())
}

func TestFlowControlOutputWindowOverflowIsRejected(t *testing.T) {
	fc := NewFlowControl(1<<20, 1000, 1<<20)
	s := AcquireStream(1)
	fc.InitStreamWindows(s, uint32(maxWindowSize))

	err := fc.OnStreamWindowUpdate(s, 1)
	require.Error(t, err)
}
