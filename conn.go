package http2

import (
	"bufio"
	"errors"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fastrand"
)

// ConnState is the connection-lifetime position (§3).
type ConnState int32

const (
	ConnOpen ConnState = iota
	ConnHalfClosed
	ConnIsClosing
)

func (s ConnState) String() string {
	switch s {
	case ConnOpen:
		return "OPEN"
	case ConnHalfClosed:
		return "HALF_CLOSED"
	case ConnIsClosing:
		return "IS_CLOSING"
	}
	return "UNKNOWN"
}

// expectation is the two-variant tagged parser state from §9 design notes:
// either the pipeline is ready to dispatch any frame, or it is mid-way
// through a HEADERS+CONTINUATION sequence for one stream.
type expectation struct {
	continuationStream uint32 // 0 means "no continuation pending"
}

func (e *expectation) pending() bool { return e.continuationStream != 0 }

// Conn is the singleton per-socket connection actor (§3). Every field is
// touched only from the connection's own goroutines (readLoop, writeLoop,
// timers); there is no shared mutable state across connections.
type Conn struct {
	c  net.Conn
	br *bufio.Reader
	bw *bufio.Writer

	handler RequestHandler
	logger  Logger
	cfg     Config

	state ConnState

	peerSettings Settings
	ownSettings  Settings
	settingsAcked bool

	hpack *HPACK
	fc    *FlowControl
	sched *Scheduler
	streams *StreamRegistry

	// writeInFlight is set for the duration of an actual socket write+flush;
	// doIdleTimeout checks it to avoid killing a connection that is merely
	// slow to drain, not idle. Accessed from both handleStreams and
	// writeLoop, hence atomic.
	writeInFlight int32

	streamsToProceed []*Stream

	headersUnparsed []byte
	exp             expectation
	headersStreamID uint32 // stream the pending HEADERS/CONTINUATION block belongs to
	headersEndStream bool

	closeRefStreamID uint32 // last_stream_id recorded at first GOAWAY

	idleTimer     *time.Timer
	shutdownTimer *time.Timer
	pingTimer     *time.Timer

	receivedAnyRequest    bool
	earlyDataBlockedStreams int

	pushMemo map[string]struct{}

	// writeBufBytes is the outstanding DATA payload bytes enqueued on
	// sc.writer but not yet flushed to the socket; readLoop pauses pulling
	// more frames off the wire once this exceeds writeBackpressureHigh, and
	// resumes once a flush brings it back under writeBackpressureLow (§4.7).
	writeBufBytes int64

	reader        chan *FrameHeader
	writer        chan *FrameHeader
	closer        chan struct{}
	responseReady chan *Stream
	idleFired     chan struct{}
	pingFired     chan struct{}
	shutdownStage chan int
	writeDrained  chan struct{}
	closeOnce     sync.Once
}

// writeBackpressureHigh/Low are the soft watermarks on unflushed DATA bytes
// used to pause/resume readLoop (§4.7).
const (
	writeBackpressureHigh = 32 << 10
	writeBackpressureLow  = 16 << 10
)

// NewConn builds a connection actor over c. handler dispatches completed
// requests (process_request, §6); cfg is copied and defaulted.
func NewConn(c net.Conn, handler RequestHandler, cfg Config, logger Logger) *Conn {
	cfg.fillDefaults()
	if logger == nil {
		logger = defaultLogger
	}

	sc := &Conn{
		c:       c,
		br:      bufio.NewReaderSize(c, 4096),
		bw:      bufio.NewWriterSize(c, 4096),
		handler: handler,
		logger:  logger,
		cfg:     cfg,
		streams: NewStreamRegistry(),
		sched:   NewScheduler(cfg.ClosedStreamRingSize, cfg.MaxStreamsForPriority),
		reader:        make(chan *FrameHeader, 128),
		writer:        make(chan *FrameHeader, 128),
		closer:        make(chan struct{}),
		responseReady: make(chan *Stream, 32),
		idleFired:     make(chan struct{}, 1),
		pingFired:     make(chan struct{}, 1),
		shutdownStage: make(chan int, 1),
		writeDrained:  make(chan struct{}, 1),
		pushMemo:      make(map[string]struct{}),
	}

	sc.ownSettings.Reset()
	sc.ownSettings.MaxConcurrentStreams = cfg.MaxConcurrentStreams
	sc.ownSettings.InitialWindowSize = uint32(cfg.StreamWindowSize)

	sc.peerSettings.Reset()

	sc.hpack = NewHPACK(sc.ownSettings.HeaderTableSize)
	sc.fc = NewFlowControl(int64(cfg.ConnectionWindowSize), int64(cfg.StreamWindowSize), int64(cfg.ActiveStreamWindowSize))

	return sc
}

var defaultLogger Logger = discardLogger{}

type discardLogger struct{}

func (discardLogger) Printf(string, ...interface{}) {}

func (sc *Conn) debugf(format string, args ...interface{}) {
	if sc.cfg.Debug {
		sc.logger.Printf(format, args...)
	}
}

// readPreface verifies the client's 24-byte connection preface (§6).
func (sc *Conn) readPreface() error {
	buf := make([]byte, len(clientPreface))
	if _, err := io.ReadFull(sc.br, buf); err != nil {
		return err
	}
	if string(buf) != clientPreface {
		return ErrBadPreface
	}
	return nil
}

const clientPreface = "PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n"

// writePreface sends the server preface: a SETTINGS frame followed by a
// connection-level WINDOW_UPDATE sized to the gap between the host's
// connection and stream windows (§6).
func (sc *Conn) writePreface() error {
	fr := AcquireFrameHeader()
	fr.SetBody(&sc.ownSettings)
	if _, err := fr.WriteTo(sc.bw); err != nil {
		ReleaseFrameHeader(fr)
		return err
	}
	ReleaseFrameHeader(fr)

	gap := int64(sc.cfg.ConnectionWindowSize) - int64(sc.cfg.StreamWindowSize)
	if gap > 0 {
		wu := AcquireFrame(FrameWindowUpdate).(*WindowUpdate)
		wu.SetIncrement(uint32(gap))
		fr = AcquireFrameHeader()
		fr.SetBody(wu)
		if _, err := fr.WriteTo(sc.bw); err != nil {
			ReleaseFrameHeader(fr)
			return err
		}
		ReleaseFrameHeader(fr)
	}

	return sc.bw.Flush()
}

// Serve runs the connection to completion: preface exchange, then the
// read/write/stream-handling loops, until the socket closes or a fatal
// protocol error tears the connection down.
func (sc *Conn) Serve() error {
	if err := sc.readPreface(); err != nil {
		sc.c.Close()
		return err
	}
	if err := sc.writePreface(); err != nil {
		sc.c.Close()
		return err
	}

	sc.armIdleTimer()
	if sc.cfg.PingInterval > 0 {
		sc.pingTimer = time.AfterFunc(sc.jitteredPingInterval(), sc.signalPing)
	}

	go sc.writeLoop()
	go sc.handleStreams()

	err := sc.readLoop()
	if errors.Is(err, io.EOF) {
		err = nil
	}

	sc.closeNow()

	return err
}

// readLoop pulls frames off the wire and hands every one of them,
// stream-scoped and connection-scoped alike, to handleStreams via sc.reader:
// handleStreams is the single goroutine that owns all connection and stream
// state, matching the teacher's handleStreams ("the HPACK table is accessed
// synchronously").
func (sc *Conn) readLoop() (err error) {
	defer func() {
		if r := recover(); r != nil {
			sc.logger.Printf("http2: readLoop panic: %v\n%s", r, debug.Stack())
		}
	}()

	for err == nil {
		sc.waitForWriteBudget()

		var fr *FrameHeader
		fr, err = ReadFrameFromWithSize(sc.br, uint32(sc.ownSettings.MaxFrameSize))
		if err != nil {
			if errors.Is(err, ErrUnknownFrameType) {
				err = nil
				continue
			}
			break
		}

		select {
		case sc.reader <- fr:
		case <-sc.closer:
			ReleaseFrameHeader(fr)
			return nil
		}
	}

	return
}

// waitForWriteBudget blocks readLoop while the outbound DATA buffer exceeds
// its soft cap, so a peer that reads slowly can't make this connection
// accumulate unbounded unsent response bytes in memory (§4.7). It only
// pauses reading off the wire; it never touches connection/stream state.
func (sc *Conn) waitForWriteBudget() {
	for atomic.LoadInt64(&sc.writeBufBytes) > writeBackpressureHigh {
		select {
		case <-sc.writeDrained:
		case <-sc.closer:
			return
		}
	}
}

func (sc *Conn) signalWriteDrained() {
	select {
	case sc.writeDrained <- struct{}{}:
	default:
	}
}

// handleConnFrame processes a stream-id-0 frame: SETTINGS, connection
// WINDOW_UPDATE, PING, GOAWAY. Called only from handleStreams.
func (sc *Conn) handleConnFrame(fr *FrameHeader) {
	switch fr.Type() {
	case FrameSettings:
		st := fr.Body().(*Settings)
		if st.IsAck() {
			sc.settingsAcked = true
			return
		}
		sc.handleSettings(st)

	case FrameWindowUpdate:
		wu := fr.Body().(*WindowUpdate)
		if err := sc.fc.OnConnWindowUpdate(wu.Increment()); err != nil {
			sc.handleError(err)
		} else {
			sc.activateWritable()
		}

	case FramePing:
		ping := fr.Body().(*Ping)
		if ping.Ack() {
			return
		}
		sc.handlePing(ping)

	case FrameGoAway:
		ga := fr.Body().(*GoAway)
		if ga.Code() != NoError {
			sc.debugf("http2: peer GOAWAY code=%s data=%s", ga.Code(), ga.Data())
		}
		sc.closeNow()

	default:
		sc.handleError(NewGoAwayError(ProtocolError, "unexpected connection-scoped frame"))
	}
}

func (sc *Conn) handleSettings(st *Settings) {
	prevInitialWindow := int64(sc.peerSettings.InitialWindowSize)
	st.CopyTo(&sc.peerSettings)

	delta := int64(sc.peerSettings.InitialWindowSize) - prevInitialWindow
	if delta != 0 {
		sc.fc.ApplyInitialWindowDelta(delta, sc.streams)
		sc.activateWritable()
	}

	sc.hpack.SetMaxEncodeTableSize(sc.peerSettings.HeaderTableSize)

	ack := &Settings{ack: true}
	fr := AcquireFrameHeader()
	fr.SetBody(ack)
	sc.enqueueControl(fr)
}

// writeGoAway enqueues a GOAWAY frame. lastStreamID tells the peer the
// highest-numbered stream that may still be processed (§4.8, §4.9).
func (sc *Conn) writeGoAway(lastStreamID uint32, code ErrorCode, message string) {
	ga := AcquireFrame(FrameGoAway).(*GoAway)
	ga.SetStream(lastStreamID)
	ga.SetCode(code)
	if message != "" {
		ga.SetData([]byte(message))
	}

	fr := AcquireFrameHeader()
	fr.SetBody(ga)
	sc.enqueueControl(fr)
}

func (sc *Conn) handlePing(ping *Ping) {
	reply := AcquireFrame(FramePing).(*Ping)
	reply.SetData(ping.Data())
	reply.SetAck(true)

	fr := AcquireFrameHeader()
	fr.SetBody(reply)
	sc.enqueueControl(fr)
}

// signalPing is the time.AfterFunc callback; it only wakes handleStreams,
// which does the actual send from doSendKeepalivePing (that goroutine is
// the sole owner of sc's connection state).
func (sc *Conn) signalPing() {
	select {
	case sc.pingFired <- struct{}{}:
	default:
	}
}

func (sc *Conn) doSendKeepalivePing() {
	ping := AcquireFrame(FramePing).(*Ping)
	ping.SetData([]byte("h2keepal"))

	fr := AcquireFrameHeader()
	fr.SetBody(ping)
	sc.enqueueControl(fr)

	if sc.cfg.PingInterval > 0 {
		sc.pingTimer.Reset(sc.jitteredPingInterval())
	}
}

// jitteredPingInterval spreads keepalive pings across up to +10% of
// PingInterval so a host running many connections that all started at
// once doesn't send them all in lockstep.
func (sc *Conn) jitteredPingInterval() time.Duration {
	span := uint32(sc.cfg.PingInterval / 10)
	if span == 0 {
		return sc.cfg.PingInterval
	}
	return sc.cfg.PingInterval + time.Duration(fastrand.Uint32n(span))
}

// handleError maps an Error to the right enqueue path (§4.9): connection
// scope enqueues GOAWAY and begins close-after-flush; stream scope enqueues
// RST_STREAM and resets just that stream.
func (sc *Conn) handleError(err error) {
	herr, ok := err.(Error)
	if !ok {
		sc.logger.Printf("http2: %v", err)
		return
	}

	if herr.IsConnectionFatal() {
		sc.writeGoAway(sc.streams.MaxOpenPull(), herr.Code(), herr.message)
		sc.closeAfterFlush()
		return
	}

	sc.logger.Printf("http2: stream error: %v", herr)
}

// resetStream sends RST_STREAM for id and, if the stream is live, drives it
// through the standard close path. It clears any in-flight streaming
// callback before invoking the reset, per Open Question (a): req_body.state
// reaches CLOSE_DELIVERED before the application can observe the reset.
func (sc *Conn) resetStream(id uint32, code ErrorCode) {
	if s := sc.streams.Get(id); s != nil {
		s.ClearProceedReq()
		s.SetReqBodyState(ReqBodyCloseDelivered)
		sc.closeStream(s)
	}

	rst := AcquireFrame(FrameResetStream).(*RstStream)
	rst.SetCode(code)

	fr := AcquireFrameHeader()
	fr.SetStream(id)
	fr.SetBody(rst)
	sc.enqueueControl(fr)
}

// closeStream moves s to END_STREAM, detaches it from the registry and
// scheduler (parking its priority node in the closed-stream ring), and
// releases it back to the pool.
func (sc *Conn) closeStream(s *Stream) {
	if s.State() == StateEndStream {
		return
	}
	wasHalfClosed := s.State() >= StateReqPending
	s.SetState(StateEndStream)

	sc.streams.RemovePending(s)
	sc.streams.SetBlockedByServer(s, false)
	sc.streams.Delete(s)
	if wasHalfClosed {
		sc.streams.DecHalfClosed()
	}

	if s.node != nilHandle {
		sc.sched.Close(s.node)
	}

	ReleaseStream(s)
	sc.maybeTransitionClosing()
}

func (sc *Conn) maybeTransitionClosing() {
	if sc.state == ConnHalfClosed && sc.streams.Len() == 0 && sc.streams.PendingLen() == 0 {
		sc.state = ConnIsClosing
		sc.closeNow()
	}
}

// enqueueControl queues a frame on sc.writer for writeLoop to serialize.
// Control frames (SETTINGS/ACK, WINDOW_UPDATE, PING/ACK, RST_STREAM, GOAWAY,
// PUSH_PROMISE, response HEADERS/trailers) are queued directly by handlers
// (§4.7); DATA frames are produced on demand by pumpData (writer.go) on
// handleStreams and queued through this same path.
func (sc *Conn) enqueueControl(fr *FrameHeader) {
	n := dataPayloadLen(fr)
	if n > 0 {
		atomic.AddInt64(&sc.writeBufBytes, int64(n))
	}

	select {
	case sc.writer <- fr:
	case <-sc.closer:
		if n > 0 {
			atomic.AddInt64(&sc.writeBufBytes, -int64(n))
		}
		ReleaseFrameHeader(fr)
	}
}

// dataPayloadLen returns the DATA payload size of fr, or 0 for any other
// frame type. Only DATA volume is worth tracking for write backpressure:
// every other frame type is small and already rate-limited elsewhere.
func dataPayloadLen(fr *FrameHeader) int {
	if d, ok := fr.Body().(*Data); ok {
		return len(d.Data())
	}
	return 0
}

// activateWritable asks the scheduler for any DATA frames newly unblocked
// by a window change, enqueuing them on sc.writer. Only called from
// handleStreams, which is the sole owner of sc.sched/sc.streams/sc.fc — see
// pumpData in writer.go.
func (sc *Conn) activateWritable() {
	sc.pumpData()
}

// DebugState snapshots the connection's bookkeeping for introspection and
// tests (get_debug_state, §6).
func (sc *Conn) DebugState() ConnDebugState {
	return ConnDebugState{
		State:               sc.state.String(),
		OpenPullStreams:     sc.streams.OpenPull(),
		OpenPushStreams:     sc.streams.OpenPush(),
		HalfClosedStreams:   sc.streams.HalfClosed(),
		BlockedByServer:     sc.streams.BlockedByServer(),
		Tunnels:             sc.streams.Tunnels(),
		StreamingInProgress: sc.streams.Streaming(),
		MaxOpenPullID:       sc.streams.MaxOpenPull(),
		MaxOpenPushID:       sc.streams.MaxOpenPush(),
		IsChromiumTree:      sc.sched.IsChromiumTree(),
		ConnInputWindow:     sc.fc.ConnInputWindow(),
		ConnOutputWindow:    sc.fc.ConnOutputWindow(),
	}
}

func (sc *Conn) armIdleTimer() {
	if sc.cfg.IdleTimeout <= 0 {
		return
	}
	sc.idleTimer = time.AfterFunc(sc.cfg.IdleTimeout, sc.signalIdle)
}

func (sc *Conn) unlinkIdleTimer() {
	if sc.idleTimer != nil {
		sc.idleTimer.Stop()
	}
}

// signalIdle is the time.AfterFunc callback; see signalPing.
func (sc *Conn) signalIdle() {
	select {
	case sc.idleFired <- struct{}{}:
	default:
	}
}

func (sc *Conn) doIdleTimeout() {
	if atomic.LoadInt32(&sc.writeInFlight) != 0 {
		sc.closeNow()
		return
	}
	sc.writeGoAway(sc.streams.MaxOpenPull(), NoError, "idle timeout")
	sc.closeAfterFlush()
}

// closeAfterFlush drains any DATA newly unblocked, then enqueues a close
// sentinel behind everything already queued on sc.writer (including the
// GOAWAY the caller just enqueued), so the socket only closes once the peer
// had a chance to read it (§4.8/§4.9 "GOAWAY then close").
func (sc *Conn) closeAfterFlush() {
	sc.activateWritable()

	select {
	case sc.writer <- nil:
	case <-sc.closer:
	}
}

func (sc *Conn) closeNow() {
	sc.closeOnce.Do(func() {
		if sc.pingTimer != nil {
			sc.pingTimer.Stop()
		}
		if sc.shutdownTimer != nil {
			sc.shutdownTimer.Stop()
		}
		sc.unlinkIdleTimer()
		close(sc.closer)
		sc.c.Close()
	})
}
