package http2

import (
	"sync"

	"github.com/valyala/bytebufferpool"
	"github.com/valyala/fasthttp"
)

// StreamState is the per-stream lifecycle position, forward-only and
// terminal at StateEndStream.
//
// https://tools.ietf.org/html/rfc7540#section-5.1 (generalized per §4.3)
type StreamState int8

const (
	StateIdle StreamState = iota
	StateRecvHeaders
	StateRecvBody
	StateReqPending
	StateSendHeaders
	StateSendBody
	StateSendBodyIsFinal
	StateEndStream
)

func (ss StreamState) String() string {
	switch ss {
	case StateIdle:
		return "IDLE"
	case StateRecvHeaders:
		return "RECV_HEADERS"
	case StateRecvBody:
		return "RECV_BODY"
	case StateReqPending:
		return "REQ_PENDING"
	case StateSendHeaders:
		return "SEND_HEADERS"
	case StateSendBody:
		return "SEND_BODY"
	case StateSendBodyIsFinal:
		return "SEND_BODY_IS_FINAL"
	case StateEndStream:
		return "END_STREAM"
	}
	return "UNKNOWN"
}

// ReqBodyState tracks request-body delivery, strictly increasing per stream
// (§3 invariants); CLOSE_DELIVERED is terminal and reached at most once.
type ReqBodyState int8

const (
	ReqBodyNone ReqBodyState = iota
	ReqBodyOpenBeforeFirstFrame
	ReqBodyOpen
	ReqBodyCloseQueued
	ReqBodyCloseDelivered
)

func (s ReqBodyState) String() string {
	switch s {
	case ReqBodyNone:
		return "NONE"
	case ReqBodyOpenBeforeFirstFrame:
		return "OPEN_BEFORE_FIRST_FRAME"
	case ReqBodyOpen:
		return "OPEN"
	case ReqBodyCloseQueued:
		return "CLOSE_QUEUED"
	case ReqBodyCloseDelivered:
		return "CLOSE_DELIVERED"
	}
	return "UNKNOWN"
}

// ReqBody is the request-body accumulator plus its streaming sub-state.
type ReqBody struct {
	state    ReqBodyState
	buf      *bytebufferpool.ByteBuffer
	streamed bool
}

func (rb *ReqBody) reset() {
	if rb.buf != nil {
		bytebufferpool.Put(rb.buf)
		rb.buf = nil
	}
	rb.state = ReqBodyNone
	rb.streamed = false
}

// ensureBuf lazily acquires the accumulator buffer on first body byte.
func (rb *ReqBody) ensureBuf() *bytebufferpool.ByteBuffer {
	if rb.buf == nil {
		rb.buf = bytebufferpool.Get()
	}
	return rb.buf
}

// StreamPriority is the last PRIORITY observed for a stream, whether carried
// on a standalone PRIORITY frame or the HEADERS priority prefix.
type StreamPriority struct {
	Dependency uint32
	Weight     byte
	Exclusive  bool
}

// PushInfo tracks server-push bookkeeping for a push (even-id) stream.
type PushInfo struct {
	ParentStreamID uint32
	PromiseSent    bool
}

// Stream is one bidirectional HTTP/2 stream within a connection.
//
// https://tools.ietf.org/html/rfc7540#section-5
type Stream struct {
	id    uint32
	state StreamState

	// Flow control, §4.5. Signed to accommodate transient negative windows
	// after a SETTINGS-initiated shrink.
	inputWindow     int64
	outputWindow    int64
	bytesUnnotified int64

	reqBody ReqBody

	blockedByServer bool

	node nodeHandle

	receivedPriority StreamPriority

	contentLength int64 // -1 when absent
	bytesReceived int64

	cacheDigests []byte

	isTunnelReq bool
	push        PushInfo

	ctx *fasthttp.RequestCtx

	// proceedReq is the write_req callback while in streaming body mode;
	// nil otherwise. Installed by Conn.enterStreamingMode, never by the
	// application directly. See ingress.go.
	proceedReq func(ctx *fasthttp.RequestCtx, chunk []byte, isEndStream bool) bool

	// respHeaderSent and respOffset track response-side write progress for
	// writer.go's DATA production off the scheduler.
	respHeaderSent bool
	respOffset     int
}

var streamPool = sync.Pool{
	New: func() interface{} { return &Stream{} },
}

// AcquireStream returns a pooled Stream for id, reset to StateIdle.
func AcquireStream(id uint32) *Stream {
	s := streamPool.Get().(*Stream)
	s.Reset()
	s.id = id
	s.contentLength = -1
	return s
}

// ReleaseStream returns s to the pool. Callers must have already detached
// s from the scheduler (see closed-stream ring in scheduler.go).
func ReleaseStream(s *Stream) {
	streamPool.Put(s)
}

func (s *Stream) Reset() {
	s.id = 0
	s.state = StateIdle
	s.inputWindow = 0
	s.outputWindow = 0
	s.bytesUnnotified = 0
	s.reqBody.reset()
	s.blockedByServer = false
	s.node = nilHandle
	s.receivedPriority = StreamPriority{}
	s.contentLength = -1
	s.bytesReceived = 0
	s.cacheDigests = nil
	s.isTunnelReq = false
	s.push = PushInfo{}
	s.ctx = nil
	s.proceedReq = nil
	s.respHeaderSent = false
	s.respOffset = 0
}

func (s *Stream) ID() uint32 { return s.id }

// IsPull reports whether this is a client-initiated (odd id) stream.
func (s *Stream) IsPull() bool { return s.id%2 == 1 }

// IsPush reports whether this is a server-initiated (even id) stream.
func (s *Stream) IsPush() bool { return s.id%2 == 0 }

func (s *Stream) State() StreamState { return s.state }

// SetState advances the stream's lifecycle state. The state machine is
// forward-only (§4.3); callers are expected to only move state forward,
// RST_STREAM/errors aside which jump straight to StateEndStream.
func (s *Stream) SetState(state StreamState) { s.state = state }

func (s *Stream) InputWindow() int64  { return s.inputWindow }
func (s *Stream) OutputWindow() int64 { return s.outputWindow }

func (s *Stream) BlockedByServer() bool { return s.blockedByServer }

func (s *Stream) SetBlockedByServer(v bool) { s.blockedByServer = v }

func (s *Stream) ReceivedPriority() StreamPriority { return s.receivedPriority }

func (s *Stream) SetReceivedPriority(p StreamPriority) { s.receivedPriority = p }

func (s *Stream) ContentLength() int64 { return s.contentLength }

func (s *Stream) SetContentLength(n int64) { s.contentLength = n }

func (s *Stream) BytesReceived() int64 { return s.bytesReceived }

func (s *Stream) IsTunnelReq() bool { return s.isTunnelReq }

func (s *Stream) SetTunnelReq(v bool) { s.isTunnelReq = v }

func (s *Stream) Push() *PushInfo { return &s.push }

func (s *Stream) Ctx() *fasthttp.RequestCtx { return s.ctx }

func (s *Stream) SetCtx(ctx *fasthttp.RequestCtx) { s.ctx = ctx }

// ReqBodyState returns the current request-body delivery state.
func (s *Stream) ReqBodyState() ReqBodyState { return s.reqBody.state }

// SetReqBodyState advances req_body.state. It never moves the state
// backwards; a caller attempting to do so is a programming error in this
// package, not a protocol condition, so it is a silent no-op rather than a
// panic — invariants are asserted in tests instead.
func (s *Stream) SetReqBodyState(state ReqBodyState) {
	if state >= s.reqBody.state {
		s.reqBody.state = state
	}
}

// ReqBodyStreamed reports whether the body is being delivered incrementally.
func (s *Stream) ReqBodyStreamed() bool { return s.reqBody.streamed }

func (s *Stream) SetReqBodyStreamed(v bool) { s.reqBody.streamed = v }

// AppendReqBody appends b to the buffered request body accumulator.
func (s *Stream) AppendReqBody(b []byte) {
	buf := s.reqBody.ensureBuf()
	buf.Write(b)
	s.bytesReceived += int64(len(b))
}

// ReqBodyBytes returns the buffered request body collected so far.
func (s *Stream) ReqBodyBytes() []byte {
	if s.reqBody.buf == nil {
		return nil
	}
	return s.reqBody.buf.B
}

// SetProceedReq installs the streaming-mode write_req callback.
func (s *Stream) SetProceedReq(fn func(ctx *fasthttp.RequestCtx, chunk []byte, isEndStream bool) bool) {
	s.proceedReq = fn
}

// ClearProceedReq detaches the streaming callback, used when a stream is
// reset mid-stream (§5 cancellation: clears proceed_req, moves
// req_body.state to CLOSE_DELIVERED — see Conn.resetStream).
func (s *Stream) ClearProceedReq() {
	s.proceedReq = nil
}

func (s *Stream) HasProceedReq() bool {
	return s.proceedReq != nil
}
