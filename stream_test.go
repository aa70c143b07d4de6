package http2

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

func TestStreamAcquireResetsToIdle(t *testing.T) {
	s := AcquireStream(7)
	require.Equal(t, uint32(7), s.ID())
	require.Equal(t, StateIdle, s.State())
	require.Equal(t, int64(-1), s.ContentLength())
	require.True(t, s.IsPull())
	require.False(t, s.IsPush())

	s.SetState(StateRecvHeaders)
	s.AppendReqBody([]byte("hello"))
	ReleaseStream(s)

	s2 := AcquireStream(8)
	require.Equal(t, StateIdle, s2.State())
	require.Nil(t, s2.ReqBodyBytes())
}

func TestStreamReqBodyStateNeverGoesBackwards(t *testing.T) {
	s := AcquireStream(1)
	s.SetReqBodyState(ReqBodyOpen)
	s.SetReqBodyState(ReqBodyOpenBeforeFirstFrame)
	require.Equal(t, ReqBodyOpen, s.ReqBodyState())

	s.SetReqBodyState(ReqBodyCloseDelivered)
	require.Equal(t, ReqBodyCloseDelivered, s.ReqBodyState())
}

func TestStreamAppendReqBodyAccumulates(t *testing.T) {
	s := AcquireStream(1)
	s.AppendReqBody([]byte("ab"))
	s.AppendReqBody([]byte("cd"))
	require.Equal(t, []byte("abcd"), s.ReqBodyBytes())
	require.Equal(t, int64(4), s.BytesReceived())
}

func TestStreamProceedReqLifecycle(t *testing.T) {
	s := AcquireStream(1)
	require.False(t, s.HasProceedReq())

	called := false
	s.SetProceedReq(func(ctx *fasthttp.RequestCtx, chunk []byte, end bool) bool {
		called = true
		return true
	})
	require.True(t, s.HasProceedReq())

	s.ClearProceedReq()
	require.False(t, s.HasProceedReq())
	require.False(t, called)
}
