package http2

// handleStreams is the stream-handling actor: it owns every Stream and the
// HEADERS/CONTINUATION assembly state, so all mutation of stream state and
// the scheduler tree happens from this one goroutine (§4.1, §4.2).
func (sc *Conn) handleStreams() {
	defer sc.drainStreamsToProceed()

	for {
		select {
		case fr, ok := <-sc.reader:
			if !ok {
				return
			}
			sc.dispatchFrame(fr)
			ReleaseFrameHeader(fr)

		case s := <-sc.responseReady:
			sc.onResponseReady(s)

		case <-sc.idleFired:
			sc.doIdleTimeout()

		case <-sc.pingFired:
			sc.doSendKeepalivePing()

		case stage := <-sc.shutdownStage:
			sc.advanceShutdown(stage)

		case <-sc.closer:
			return
		}
	}
}

// dispatchFrame routes one frame off the wire. While a HEADERS block is
// still open (expectation.pending), every frame on the wire must be a
// CONTINUATION for that same stream (§4.1); anything else is a connection
// error.
func (sc *Conn) dispatchFrame(fr *FrameHeader) {
	if sc.exp.pending() {
		if fr.Type() != FrameContinuation || fr.Stream() != sc.exp.continuationStream {
			sc.handleError(NewGoAwayError(ProtocolError, "expected CONTINUATION"))
			return
		}
		sc.handleContinuation(fr)
		return
	}

	if fr.Stream() == 0 {
		sc.handleConnFrame(fr)
		return
	}

	if fr.Type() == FramePushPromise {
		sc.handleError(NewGoAwayError(ProtocolError, "clients must not send PUSH_PROMISE"))
		return
	}

	switch fr.Type() {
	case FrameHeaders:
		sc.handleHeadersFrame(fr)
	case FrameContinuation:
		sc.handleError(NewGoAwayError(ProtocolError, "unexpected CONTINUATION"))
	case FrameData:
		sc.handleDataFrame(fr)
	case FramePriority:
		sc.handlePriorityFrame(fr)
	case FrameResetStream:
		sc.handleRstStreamFrame(fr)
	case FrameWindowUpdate:
		sc.handleStreamWindowUpdate(fr)
	default:
		sc.handleError(NewGoAwayError(ProtocolError, "unexpected stream-scoped frame"))
	}
}

// lookupOrOpenStream resolves id to a live Stream, opening a new one if id
// is the next legal pull id and the connection has room for it. An id that
// is no longer idle and has no live stream is a STREAM_CLOSED connection
// error; it never returns a nil Stream without an error.
func (sc *Conn) lookupOrOpenStream(id uint32, isHeaders bool) (*Stream, error) {
	if s := sc.streams.Get(id); s != nil {
		return s, nil
	}

	if !sc.streams.IsIdle(id) {
		// a HEADERS/DATA/etc. for an id already opened-and-closed is a
		// connection error; ids still idle-but-skipped are too (§4.2/§5.1).
		return nil, NewGoAwayError(StreamClosedError, "frame for closed stream")
	}

	if !isHeaders {
		return nil, NewGoAwayError(ProtocolError, "frame for idle stream")
	}

	if id%2 == 0 {
		return nil, NewGoAwayError(ProtocolError, "client opened an even-numbered stream")
	}

	if sc.streams.OpenPull() >= int(sc.ownSettings.MaxConcurrentStreams) {
		return nil, NewResetStreamError(RefusedStreamError, "max concurrent streams reached")
	}

	s := AcquireStream(id)
	s.node = sc.sched.Open(id)
	sc.fc.InitStreamWindows(s, sc.peerSettings.InitialWindowSize)
	sc.streams.Open(s)
	sc.receivedAnyRequest = true
	sc.unlinkIdleTimer()

	return s, nil
}

func (sc *Conn) handleHeadersFrame(fr *FrameHeader) {
	h := fr.Body().(*Headers)

	s, err := sc.lookupOrOpenStream(fr.Stream(), true)
	if err != nil {
		sc.handleError(err)
		return
	}
	if s == nil {
		return
	}

	if s.State() != StateIdle {
		sc.handleError(NewResetStreamError(StreamClosedError, "HEADERS on non-idle stream"))
		return
	}

	if h.HasPriority() {
		sc.applyPriority(s, h.Stream(), h.Weight(), h.Exclusive())
	}

	s.SetState(StateRecvHeaders)
	sc.headersStreamID = s.id
	sc.headersEndStream = h.EndStream()
	sc.headersUnparsed = append(sc.headersUnparsed[:0], h.Headers()...)

	if h.EndHeaders() {
		sc.finishHeaderBlock()
		return
	}

	sc.exp.continuationStream = s.id
}

func (sc *Conn) handleContinuation(fr *FrameHeader) {
	c := fr.Body().(*Continuation)
	sc.headersUnparsed = append(sc.headersUnparsed, c.Headers()...)

	if c.EndHeaders() {
		sc.exp.continuationStream = 0
		sc.finishHeaderBlock()
	}
}

// finishHeaderBlock decodes the assembled header block through the
// connection's single persistent HPACK decoder and hands the result to
// ingress processing (§4.6). HPACK decode failures are always connection
// errors (§4.9): the compressor state is now unrecoverable for either side.
func (sc *Conn) finishHeaderBlock() {
	streamID := sc.headersStreamID
	endStream := sc.headersEndStream
	block := sc.headersUnparsed
	sc.headersStreamID = 0
	sc.headersUnparsed = nil

	s := sc.streams.Get(streamID)
	if s == nil {
		return
	}

	fields, err := sc.hpack.Decode(nil, block)
	if err != nil {
		sc.handleError(err)
		return
	}

	sc.onRequestHeaders(s, fields, endStream)
}

// applyPriority reprioritizes s's scheduler node and updates the
// Chromium-tree heuristic and received_priority bookkeeping (§4.4).
func (sc *Conn) applyPriority(s *Stream, depStream uint32, weight byte, exclusive bool) {
	var parentWeight byte = defaultWeight
	if p := sc.streams.Get(depStream); p != nil {
		parentWeight = p.ReceivedPriority().Weight
	}
	sc.sched.ObservePlacement(exclusive, weight, parentWeight)
	sc.sched.Reprioritize(s.node, depStream, weight, exclusive)
	s.SetReceivedPriority(StreamPriority{Dependency: depStream, Weight: weight, Exclusive: exclusive})
}

func (sc *Conn) handlePriorityFrame(fr *FrameHeader) {
	p := fr.Body().(*Priority)

	s := sc.streams.Get(fr.Stream())
	if s == nil {
		if !sc.sched.CanTrackForPriority() {
			sc.handleError(NewGoAwayError(EnhanceYourCalm, "too many priority-only streams"))
			return
		}
		h := sc.sched.OpenForPriorityOnly(fr.Stream())
		sc.sched.ObservePlacement(p.Exclusive(), p.Weight(), defaultWeight)
		sc.sched.Reprioritize(h, p.Stream(), p.Weight(), p.Exclusive())
		return
	}

	sc.applyPriority(s, p.Stream(), p.Weight(), p.Exclusive())
}

func (sc *Conn) handleDataFrame(fr *FrameHeader) {
	d := fr.Body().(*Data)

	if err := sc.fc.OnConnRecvData(fr.Len()); err != nil {
		sc.handleError(err)
		return
	}
	if inc, ok := sc.fc.ConnWindowUpdateNeeded(); ok {
		sc.writeWindowUpdate(0, inc)
	}

	s, err := sc.lookupOrOpenStream(fr.Stream(), false)
	if err != nil {
		sc.handleError(err)
		return
	}
	if s == nil {
		return
	}

	if s.State() != StateRecvHeaders && s.State() != StateRecvBody {
		sc.resetStream(s.id, StreamClosedError)
		return
	}

	if err := sc.fc.OnStreamRecvData(s, fr.Len()); err != nil {
		sc.handleError(err)
		return
	}

	sc.onRequestData(s, d.Data(), d.EndStream())

	if !d.EndStream() {
		if inc, ok := sc.fc.StreamWindowUpdateNeeded(s, fr.Len()); ok {
			sc.writeWindowUpdate(s.id, inc)
		}
	}
}

func (sc *Conn) handleRstStreamFrame(fr *FrameHeader) {
	rst := fr.Body().(*RstStream)

	s := sc.streams.Get(fr.Stream())
	if s == nil {
		if sc.streams.IsIdle(fr.Stream()) {
			sc.handleError(NewGoAwayError(ProtocolError, "RST_STREAM on idle stream"))
		}
		return
	}

	sc.debugf("http2: peer reset stream=%d code=%s", s.id, rst.Code())
	s.ClearProceedReq()
	s.SetReqBodyState(ReqBodyCloseDelivered)
	sc.closeStream(s)
}

func (sc *Conn) handleStreamWindowUpdate(fr *FrameHeader) {
	wu := fr.Body().(*WindowUpdate)

	s := sc.streams.Get(fr.Stream())
	if s == nil {
		if sc.streams.IsIdle(fr.Stream()) {
			sc.handleError(NewGoAwayError(ProtocolError, "WINDOW_UPDATE on idle stream"))
		}
		return
	}

	if err := sc.fc.OnStreamWindowUpdate(s, wu.Increment()); err != nil {
		sc.handleError(err)
		return
	}

	if s.OutputWindow() > 0 {
		sc.sched.Activate(s.node)
		sc.activateWritable()
	}
}

// writeWindowUpdate enqueues a WINDOW_UPDATE for stream (0 for connection).
func (sc *Conn) writeWindowUpdate(stream uint32, increment uint32) {
	wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
	wu.SetIncrement(increment)

	fr := AcquireFrameHeader()
	fr.SetStream(stream)
	fr.SetBody(wu)
	sc.enqueueControl(fr)
}

// drainStreamsToProceed is called as handleStreams exits so any stream
// still parked in streams_to_proceed is released rather than leaked.
func (sc *Conn) drainStreamsToProceed() {
	sc.streamsToProceed = sc.streamsToProceed[:0]
}
