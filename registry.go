package http2

// streamIDCounters tracks the monotonic id watermarks used to classify a
// stream id as idle vs. opened vs. closed (§3 pull_stream_ids/push_stream_ids).
type streamIDCounters struct {
	maxOpen      uint32
	maxProcessed uint32
}

// StreamRegistry is the connection-scoped mapping from stream id to Stream,
// plus the FIFO of streams waiting for application dispatch and the id
// watermarks used to classify idle/closed ids (§3, §4.3, §4.6).
type StreamRegistry struct {
	streams map[uint32]*Stream

	pendingReqs []*Stream

	pullIDs     streamIDCounters
	pushMaxOpen uint32

	openPull             int
	openPush             int
	halfClosed           int
	blockedByServer      int
	tunnels              int
	streamingInProgress  int
}

// NewStreamRegistry returns an empty registry for one connection.
func NewStreamRegistry() *StreamRegistry {
	return &StreamRegistry{
		streams: make(map[uint32]*Stream),
	}
}

// Open records a newly created stream. Callers must have already validated
// that id is a legal next id for its direction (odd/even, greater than the
// current watermark); Open simply advances the watermark and inserts.
func (r *StreamRegistry) Open(s *Stream) {
	r.streams[s.id] = s
	if s.IsPull() {
		if s.id > r.pullIDs.maxOpen {
			r.pullIDs.maxOpen = s.id
		}
		r.openPull++
	} else {
		if s.id > r.pushMaxOpen {
			r.pushMaxOpen = s.id
		}
		r.openPush++
	}
}

// Get returns the live stream for id, or nil.
func (r *StreamRegistry) Get(id uint32) *Stream {
	return r.streams[id]
}

// Delete removes id from the live set (§3 invariant: streams contains
// exactly the ids with state != END_STREAM). It does not itself release
// the Stream back to its pool; callers do that after detaching the
// scheduler node.
func (r *StreamRegistry) Delete(s *Stream) {
	delete(r.streams, s.id)
	if s.IsPull() {
		r.openPull--
	} else {
		r.openPush--
	}
	if s.blockedByServer {
		r.blockedByServer--
	}
	if s.isTunnelReq {
		r.tunnels--
	}
	if s.reqBody.streamed && s.reqBody.state != ReqBodyCloseDelivered {
		r.streamingInProgress--
	}
}

// Len reports the number of live streams.
func (r *StreamRegistry) Len() int { return len(r.streams) }

// MaxOpenPull returns pull_stream_ids.max_open.
func (r *StreamRegistry) MaxOpenPull() uint32 { return r.pullIDs.maxOpen }

// MaxProcessedPull returns pull_stream_ids.max_processed — the highest
// pull id the application has actually been handed for dispatch.
func (r *StreamRegistry) MaxProcessedPull() uint32 { return r.pullIDs.maxProcessed }

// MarkProcessed advances max_processed after dispatching id.
func (r *StreamRegistry) MarkProcessed(id uint32) {
	if id > r.pullIDs.maxProcessed {
		r.pullIDs.maxProcessed = id
	}
}

// MaxOpenPush returns push_stream_ids.max_open.
func (r *StreamRegistry) MaxOpenPush() uint32 { return r.pushMaxOpen }

// IsIdle reports whether id is "idle" for its direction: strictly greater
// than the highest id opened so far in that direction (§3, glossary).
func (r *StreamRegistry) IsIdle(id uint32) bool {
	if id%2 == 1 {
		return id > r.pullIDs.maxOpen
	}
	return id > r.pushMaxOpen
}

// EnqueuePending appends s to the pending_reqs FIFO (§3 invariant: only
// REQ_PENDING streams live here).
func (r *StreamRegistry) EnqueuePending(s *Stream) {
	r.pendingReqs = append(r.pendingReqs, s)
}

// PeekPending returns the head of pending_reqs without removing it, or nil.
func (r *StreamRegistry) PeekPending() *Stream {
	if len(r.pendingReqs) == 0 {
		return nil
	}
	return r.pendingReqs[0]
}

// DequeuePending removes and returns the head of pending_reqs, or nil.
func (r *StreamRegistry) DequeuePending() *Stream {
	if len(r.pendingReqs) == 0 {
		return nil
	}
	s := r.pendingReqs[0]
	r.pendingReqs[0] = nil
	r.pendingReqs = r.pendingReqs[1:]
	return s
}

// RemovePending drops s from pending_reqs if present (used when a pending
// stream is reset before it is ever dispatched).
func (r *StreamRegistry) RemovePending(s *Stream) {
	for i, p := range r.pendingReqs {
		if p == s {
			r.pendingReqs = append(r.pendingReqs[:i], r.pendingReqs[i+1:]...)
			return
		}
	}
}

func (r *StreamRegistry) PendingLen() int { return len(r.pendingReqs) }

func (r *StreamRegistry) OpenPull() int { return r.openPull }
func (r *StreamRegistry) OpenPush() int { return r.openPush }

func (r *StreamRegistry) IncHalfClosed()   { r.halfClosed++ }
func (r *StreamRegistry) DecHalfClosed()   { r.halfClosed-- }
func (r *StreamRegistry) HalfClosed() int  { return r.halfClosed }

// SetBlockedByServer toggles s's idle-timeout-suppression bit and keeps the
// registry's aggregate counter in sync (§3 invariant).
func (r *StreamRegistry) SetBlockedByServer(s *Stream, v bool) {
	if s.blockedByServer == v {
		return
	}
	s.blockedByServer = v
	if v {
		r.blockedByServer++
	} else {
		r.blockedByServer--
	}
}

func (r *StreamRegistry) BlockedByServer() int { return r.blockedByServer }

func (r *StreamRegistry) MarkTunnel(s *Stream) {
	if !s.isTunnelReq {
		s.isTunnelReq = true
		r.tunnels++
	}
}

func (r *StreamRegistry) Tunnels() int { return r.tunnels }

func (r *StreamRegistry) IncStreaming() { r.streamingInProgress++ }
func (r *StreamRegistry) DecStreaming() { r.streamingInProgress-- }
func (r *StreamRegistry) Streaming() int { return r.streamingInProgress }

// ForEach invokes fn for every live stream, in unspecified order (the core
// exposes this as foreach_request, §6).
func (r *StreamRegistry) ForEach(fn func(s *Stream)) {
	for _, s := range r.streams {
		fn(s)
	}
}
