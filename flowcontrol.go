package http2

// FlowControl owns the connection-level send/receive windows and the
// replenishment policy for both connection and stream windows (§4.5).
// Per-stream window state lives on Stream itself; the methods here operate
// on a *Stream passed in, since all flow-control state for one connection
// is a single, single-threaded unit of bookkeeping.
type FlowControl struct {
	hostConnWindow   int64 // configured full connection receive window
	hostStreamWindow int64 // configured default per-stream receive window
	activeStreamSize int64 // widened window while a stream is actively streaming upload

	connInputWindow  int64
	connOutputWindow int64
}

// NewFlowControl builds the connection's flow-control state. hostConnWindow
// and hostStreamWindow seed both the initial receive windows and the
// targets replenishment restores them to.
func NewFlowControl(hostConnWindow, hostStreamWindow, activeStreamSize int64) *FlowControl {
	return &FlowControl{
		hostConnWindow:   hostConnWindow,
		hostStreamWindow: hostStreamWindow,
		activeStreamSize: activeStreamSize,
		connInputWindow:  hostConnWindow,
		connOutputWindow: defaultWindowSize64,
	}
}

const defaultWindowSize64 = int64(defaultWindowSize)

func (fc *FlowControl) ConnInputWindow() int64  { return fc.connInputWindow }
func (fc *FlowControl) ConnOutputWindow() int64 { return fc.connOutputWindow }

// OnConnRecvData accounts for n received DATA bytes against the connection
// receive window. Going negative here means the peer violated flow
// control: a connection-level FLOW_CONTROL_ERROR.
func (fc *FlowControl) OnConnRecvData(n int) error {
	fc.connInputWindow -= int64(n)
	if fc.connInputWindow < 0 {
		return NewGoAwayError(FlowControlError, "connection flow control window exceeded")
	}
	return nil
}

// ConnWindowUpdateNeeded reports the WINDOW_UPDATE increment to send, and
// whether one is due: when available drops to at most half of the
// configured host window, it is restored to full (§4.5 receive
// replenishment policy).
func (fc *FlowControl) ConnWindowUpdateNeeded() (increment uint32, ok bool) {
	if fc.connInputWindow > fc.hostConnWindow/2 {
		return 0, false
	}
	increment = uint32(fc.hostConnWindow - fc.connInputWindow)
	fc.connInputWindow = fc.hostConnWindow
	return increment, increment > 0
}

// OnConnSendData accounts for n bytes of DATA about to be sent.
func (fc *FlowControl) OnConnSendData(n int) {
	fc.connOutputWindow -= int64(n)
}

// OnConnWindowUpdate applies a peer WINDOW_UPDATE(stream=0).
func (fc *FlowControl) OnConnWindowUpdate(increment uint32) error {
	fc.connOutputWindow += int64(increment)
	if fc.connOutputWindow > maxWindowSize {
		return NewGoAwayError(FlowControlError, "connection flow control window overflow")
	}
	return nil
}

// InitStreamWindows seeds a newly opened stream's windows from the
// connection's negotiated defaults.
func (fc *FlowControl) InitStreamWindows(s *Stream, peerInitialWindow uint32) {
	s.inputWindow = fc.hostStreamWindow
	s.outputWindow = int64(peerInitialWindow)
	s.bytesUnnotified = 0
}

// OnStreamRecvData accounts for n received DATA bytes on s.
func (fc *FlowControl) OnStreamRecvData(s *Stream, n int) error {
	s.inputWindow -= int64(n)
	if s.inputWindow < 0 {
		return NewResetStreamError(FlowControlError, "stream flow control window exceeded")
	}
	return nil
}

// StreamWindowUpdateNeeded batches received bytes in bytes_unnotified and
// reports a WINDOW_UPDATE once the batched amount reaches the stream's
// currently-available window (§4.5 amortized strategy).
func (fc *FlowControl) StreamWindowUpdateNeeded(s *Stream, n int) (increment uint32, ok bool) {
	s.bytesUnnotified += int64(n)
	if s.bytesUnnotified < s.inputWindow || s.bytesUnnotified == 0 {
		return 0, false
	}
	increment = uint32(s.bytesUnnotified)
	s.inputWindow += s.bytesUnnotified
	s.bytesUnnotified = 0
	return increment, true
}

// WidenForStreaming grows s's receive window up to the host's
// active_stream_window_size when streaming upload mode begins on it,
// returning the WINDOW_UPDATE increment to send (0 if no growth needed).
func (fc *FlowControl) WidenForStreaming(s *Stream) uint32 {
	target := fc.activeStreamSize
	if target <= s.inputWindow {
		return 0
	}
	increment := uint32(target - s.inputWindow)
	s.inputWindow = target
	return increment
}

// OnStreamSendData accounts for n bytes of DATA about to be sent on s.
func (fc *FlowControl) OnStreamSendData(s *Stream, n int) {
	s.outputWindow -= int64(n)
}

// OnStreamWindowUpdate applies a peer WINDOW_UPDATE for stream s.
func (fc *FlowControl) OnStreamWindowUpdate(s *Stream, increment uint32) error {
	s.outputWindow += int64(increment)
	if s.outputWindow > maxWindowSize {
		return NewResetStreamError(FlowControlError, "stream flow control window overflow")
	}
	return nil
}

// ApplyInitialWindowDelta reacts to the peer changing SETTINGS
// INITIAL_WINDOW_SIZE: the delta is applied to every live stream's output
// window only, never to the connection window (§4.5).
func (fc *FlowControl) ApplyInitialWindowDelta(delta int64, streams *StreamRegistry) {
	streams.ForEach(func(s *Stream) {
		s.outputWindow += delta
	})
}
