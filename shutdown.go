package http2

import "time"

const (
	shutdownStageBegin = iota + 1
	shutdownStagePreciseGoAway
	shutdownStageForceClose
)

// maxStreamID is the largest legal stream id (31 bits), used as the
// last_stream_id of the first, permissive GOAWAY of a graceful shutdown.
const maxStreamID uint32 = 1<<31 - 1

// Shutdown begins graceful connection teardown (§4.8): an immediate
// NO_ERROR GOAWAY that still permits in-flight streams to finish, followed
// roughly a second later by a second GOAWAY pinning the exact cutoff, and a
// forced close if streams still haven't drained after the configured grace
// period. Safe to call from any goroutine.
func (sc *Conn) Shutdown() {
	sc.signalShutdown(shutdownStageBegin)
}

func (sc *Conn) signalShutdown(stage int) {
	select {
	case sc.shutdownStage <- stage:
	default:
	}
}

// advanceShutdown runs one stage of the sequence. Only called from
// handleStreams.
func (sc *Conn) advanceShutdown(stage int) {
	switch stage {
	case shutdownStageBegin:
		if sc.state != ConnOpen {
			return
		}
		sc.state = ConnHalfClosed
		sc.writeGoAway(maxStreamID, NoError, "graceful shutdown")
		sc.shutdownTimer = time.AfterFunc(time.Second, func() {
			sc.signalShutdown(shutdownStagePreciseGoAway)
		})

	case shutdownStagePreciseGoAway:
		lastStream := sc.streams.MaxOpenPull()
		sc.closeRefStreamID = lastStream
		sc.writeGoAway(lastStream, NoError, "graceful shutdown")

		if sc.streams.Len() == 0 && sc.streams.PendingLen() == 0 {
			sc.state = ConnIsClosing
			sc.closeNow()
			return
		}

		sc.shutdownTimer = time.AfterFunc(sc.cfg.GracefulShutdownTimeout, func() {
			sc.signalShutdown(shutdownStageForceClose)
		})

	case shutdownStageForceClose:
		sc.state = ConnIsClosing
		sc.closeNow()
	}
}
