package http2

import (
	"bytes"
	"strconv"
	"sync/atomic"
)

// writeLoop is a pure I/O pump: it serializes whatever *FrameHeader values
// handleStreams (the single state-owning goroutine) enqueues on sc.writer,
// and never itself reads or mutates stream/scheduler state (§4.7).
func (sc *Conn) writeLoop() {
	for {
		select {
		case fr, ok := <-sc.writer:
			if !ok {
				return
			}
			// a nil frame is the close-after-flush sentinel (§4.8/§4.9):
			// everything queued ahead of it has been written, so it is now
			// safe to close the connection.
			if fr == nil {
				sc.closeNow()
				return
			}
			sc.writeFrame(fr)

		case <-sc.closer:
			return
		}
	}
}

func (sc *Conn) writeFrame(fr *FrameHeader) {
	atomic.StoreInt32(&sc.writeInFlight, 1)
	n := dataPayloadLen(fr)

	_, err := fr.WriteTo(sc.bw)
	if err == nil {
		err = sc.bw.Flush()
	}

	atomic.StoreInt32(&sc.writeInFlight, 0)
	ReleaseFrameHeader(fr)

	if n > 0 {
		if atomic.AddInt64(&sc.writeBufBytes, -int64(n)) <= writeBackpressureLow {
			sc.signalWriteDrained()
		}
	}

	if err != nil {
		sc.closeNow()
	}
}

// onResponseReady converts a finished fasthttp.RequestCtx into a response
// HEADERS frame and activates the stream for DATA production (§4.7). It is
// called only from handleStreams.
func (sc *Conn) onResponseReady(s *Stream) {
	for i, p := range sc.streamsToProceed {
		if p == s {
			sc.streamsToProceed = append(sc.streamsToProceed[:i], sc.streamsToProceed[i+1:]...)
			break
		}
	}

	if s.State() == StateEndStream {
		sc.pumpPending()
		return
	}

	sc.writeResponseHeaders(s)

	if len(s.Ctx().Response.Body()) == 0 {
		sc.finishResponse(s)
	} else {
		s.SetState(StateSendBody)
		sc.sched.Activate(s.node)
	}

	sc.pumpData()
	sc.pumpPending()
}

// writeResponseHeaders HPACK-encodes the response's pseudo-headers and
// fields and enqueues a HEADERS frame for s, grounded on the same
// field-by-field mapping the teacher's request-side adaptor uses, in
// reverse (§4.7).
func (sc *Conn) writeResponseHeaders(s *Stream) {
	res := &s.Ctx().Response

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	h := AcquireFrame(FrameHeaders).(*Headers)

	hf.SetKeyBytes(StringStatus)
	hf.SetValue(strconv.Itoa(res.Header.StatusCode()))
	h.AppendHeaderField(sc.hpack, hf, true)

	hf.SetKeyBytes(StringContentLength)
	hf.SetValue(strconv.Itoa(len(res.Body())))
	h.AppendHeaderField(sc.hpack, hf, true)

	res.Header.VisitAll(func(k, v []byte) {
		hf.SetBytes(bytes.ToLower(k), v)
		h.AppendHeaderField(sc.hpack, hf, true)
	})

	h.SetEndHeaders(true)
	h.SetEndStream(len(res.Body()) == 0)
	s.respHeaderSent = true

	fr := AcquireFrameHeader()
	fr.SetStream(s.id)
	fr.SetBody(h)
	sc.enqueueControl(fr)
}

// pumpData asks the scheduler for the next sendable stream, repeatedly,
// producing DATA frames until the connection's output window or the
// scheduler's active set is exhausted. Only called from handleStreams.
func (sc *Conn) pumpData() {
	for {
		if sc.fc.ConnOutputWindow() <= 0 {
			return
		}

		h := sc.sched.NextSender()
		if h == nilHandle {
			return
		}

		s := sc.streams.Get(sc.sched.StreamID(h))
		if s == nil {
			sc.sched.Deactivate(h)
			continue
		}

		if !sc.writeStreamData(s) {
			return
		}
	}
}

// writeStreamData sends one DATA frame's worth of s's response body. When
// s's (or the connection's) output window is exhausted it deactivates s and
// returns true, so pumpData moves on to the next active stream. It returns
// false only when the final frame it produced carried no bytes.
func (sc *Conn) writeStreamData(s *Stream) bool {
	body := s.Ctx().Response.Body()
	remaining := body[s.respOffset:]

	avail := sc.fc.ConnOutputWindow()
	if sw := s.OutputWindow(); sw < avail {
		avail = sw
	}
	if avail <= 0 {
		sc.sched.Deactivate(s.node)
		return true
	}

	chunk := int64(len(remaining))
	if chunk > avail {
		chunk = avail
	}
	if chunk > int64(sc.peerSettings.MaxFrameSize) {
		chunk = int64(sc.peerSettings.MaxFrameSize)
	}

	isFinal := s.respOffset+int(chunk) >= len(body)

	d := AcquireFrame(FrameData).(*Data)
	d.SetData(remaining[:chunk])
	d.SetEndStream(isFinal)

	fr := AcquireFrameHeader()
	fr.SetStream(s.id)
	fr.SetBody(d)
	sc.enqueueControl(fr)

	sc.fc.OnConnSendData(int(chunk))
	sc.fc.OnStreamSendData(s, int(chunk))
	s.respOffset += int(chunk)

	if isFinal {
		sc.sched.Deactivate(s.node)
		sc.finishResponse(s)
		return chunk > 0
	}

	return true
}

// finishResponse retires s once its response has been fully written (§4.3):
// it becomes END_STREAM and is removed from the registry and scheduler.
func (sc *Conn) finishResponse(s *Stream) {
	s.SetState(StateSendBodyIsFinal)
	sc.closeStream(s)
}
