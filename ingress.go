package http2

import (
	"bytes"
	"io"

	"github.com/valyala/fasthttp"
)

// onRequestHeaders finishes request-line/header assembly for s once a full
// header block has been HPACK-decoded (§4.6). It validates the mandatory
// pseudo-headers, builds the fasthttp request, and either queues s for
// dispatch (buffered body, or no body at all) or switches s into streaming
// mode so DATA frames are delivered to the handler as they arrive.
func (sc *Conn) onRequestHeaders(s *Stream, fields []HeaderField, endStream bool) {
	ctx := new(fasthttp.RequestCtx)
	ctx.Init(&fasthttp.Request{}, sc.c.RemoteAddr(), sc.logger)
	s.SetCtx(ctx)

	var method, scheme, authority []byte
	sawPath := false

	for i := range fields {
		hf := &fields[i]
		k, v := hf.KeyBytes(), hf.ValueBytes()

		if !hf.IsPseudo() {
			if bytes.Equal(k, StringUserAgent) {
				ctx.Request.Header.SetUserAgentBytes(v)
			} else if bytes.Equal(k, StringContentType) {
				ctx.Request.Header.SetContentTypeBytes(v)
			} else if bytes.Equal(k, StringContentLength) {
				// trusted from DATA frame accounting instead (§4.6).
			} else {
				ctx.Request.Header.AddBytesKV(k, v)
			}
			continue
		}

		switch {
		case bytes.Equal(k, StringMethod):
			method = v
			ctx.Request.Header.SetMethodBytes(v)
		case bytes.Equal(k, StringPath):
			sawPath = true
			ctx.Request.SetRequestURIBytes(v)
		case bytes.Equal(k, StringScheme):
			scheme = v
			ctx.Request.URI().SetSchemeBytes(v)
		case bytes.Equal(k, StringAuthority):
			authority = v
			ctx.Request.URI().SetHostBytes(v)
			ctx.Request.Header.SetHostBytes(v)
		default:
			sc.resetStream(s.id, ProtocolError)
			return
		}
	}

	isConnect := bytes.Equal(method, []byte("CONNECT"))
	if len(method) == 0 || len(authority) == 0 || (!isConnect && (len(scheme) == 0 || !sawPath)) {
		sc.resetStream(s.id, ProtocolError)
		return
	}

	if isConnect {
		sc.streams.MarkTunnel(s)
	}

	s.SetContentLength(int64(ctx.Request.Header.ContentLength()))

	if endStream {
		s.SetReqBodyState(ReqBodyCloseDelivered)
		sc.queueForDispatch(s)
		return
	}

	s.SetState(StateRecvBody)
	sc.beginRequestBody(s)
}

// beginRequestBody decides buffered vs streaming ingestion for a request
// that has a body still to come (§4.6). Streamability is the host's call,
// made through cfg.StreamRequestBody before any body byte has arrived;
// streaming mode is capped separately from the overall per-connection
// request cap so a handful of long uploads cannot starve ordinary buffered
// requests.
func (sc *Conn) beginRequestBody(s *Stream) {
	streamingCap := sc.cfg.MaxConcurrentStreamingRequestsPerConnection
	wantsStreaming := streamingCap > 0 &&
		sc.streams.Streaming()-sc.streams.Tunnels() < streamingCap &&
		sc.cfg.StreamRequestBody != nil && sc.cfg.StreamRequestBody(s.Ctx())

	if wantsStreaming {
		sc.enterStreamingMode(s)
		return
	}

	s.SetReqBodyState(ReqBodyOpenBeforeFirstFrame)
}

// enterStreamingMode widens s's receive window, installs a body bridge so
// the handler can read the request body incrementally as DATA frames
// arrive, and dispatches the handler immediately rather than waiting for
// END_STREAM (§4.6; streamability is the host's decision, not an opt-in the
// handler makes after the fact).
func (sc *Conn) enterStreamingMode(s *Stream) {
	s.SetReqBodyStreamed(true)
	s.SetReqBodyState(ReqBodyOpen)
	sc.streams.IncStreaming()

	body := newStreamingBody()
	s.Ctx().Request.SetBodyStream(body, -1)
	s.SetProceedReq(func(ctx *fasthttp.RequestCtx, chunk []byte, isEndStream bool) bool {
		body.push(chunk)
		if isEndStream {
			body.closeWithError(io.EOF)
		}
		return true
	})

	if inc := sc.fc.WidenForStreaming(s); inc > 0 {
		sc.writeWindowUpdate(s.id, inc)
	}

	sc.dispatchStreaming(s)
}

// onRequestData appends a DATA frame's payload to s, respecting whichever
// ingestion mode beginRequestBody chose.
func (sc *Conn) onRequestData(s *Stream, b []byte, endStream bool) {
	if int64(len(b)) > 0 {
		if sc.cfg.MaxRequestEntitySize > 0 && s.BytesReceived()+int64(len(b)) > sc.cfg.MaxRequestEntitySize {
			sc.resetStream(s.id, RefusedStreamError)
			return
		}
	}

	if s.ReqBodyStreamed() {
		s.SetReqBodyState(ReqBodyOpen)
		s.bytesReceived += int64(len(b))
		if !s.proceedReq(s.Ctx(), b, endStream) {
			sc.resetStream(s.id, CancelError)
			return
		}
	} else {
		s.AppendReqBody(b)
	}

	if endStream {
		if s.ReqBodyStreamed() {
			sc.streams.DecStreaming()
		}
		s.SetReqBodyState(ReqBodyCloseDelivered)
		if !s.ReqBodyStreamed() {
			sc.queueForDispatch(s)
		}
	}
}

// queueForDispatch appends a fully-received request to pending_reqs and
// starts dispatch if the connection has room under
// max_concurrent_requests_per_connection (§4.6).
func (sc *Conn) queueForDispatch(s *Stream) {
	s.SetState(StateReqPending)
	s.Ctx().Request.SetBodyRaw(s.ReqBodyBytes())
	sc.streams.IncHalfClosed()
	sc.streams.EnqueuePending(s)
	sc.pumpPending()
}

// pumpPending dispatches queued requests until the concurrency cap is hit.
func (sc *Conn) pumpPending() {
	limit := sc.cfg.MaxConcurrentRequestsPerConnection
	for limit <= 0 || len(sc.streamsToProceed) < limit {
		s := sc.streams.PeekPending()
		if s == nil {
			return
		}
		sc.streams.DequeuePending()
		sc.streams.MarkProcessed(s.id)
		sc.dispatchRequest(s)
	}
}

// dispatchRequest hands s to the application handler on its own goroutine,
// so a slow or blocking handler never stalls the connection's read/write
// loops, and streams back the result once the handler returns.
func (sc *Conn) dispatchRequest(s *Stream) {
	sc.streamsToProceed = append(sc.streamsToProceed, s)
	s.SetState(StateSendHeaders)

	ctx := s.Ctx()
	go func() {
		sc.handler(ctx)
		sc.responseReady <- s
	}()
}

// dispatchStreaming hands s to the handler before its request body has
// finished arriving (§4.6): the handler pulls the body incrementally
// through the stream installed by enterStreamingMode. Unlike dispatchRequest
// it leaves s's state alone, since more DATA frames for s are still
// expected and handleDataFrame only accepts them in RECV_HEADERS/RECV_BODY.
func (sc *Conn) dispatchStreaming(s *Stream) {
	sc.streams.IncHalfClosed()
	sc.streamsToProceed = append(sc.streamsToProceed, s)

	ctx := s.Ctx()
	go func() {
		sc.handler(ctx)
		sc.responseReady <- s
	}()
}
