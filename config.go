package http2

import (
	"time"

	"github.com/valyala/fasthttp"
)

// Config carries the host-supplied knobs recognized by the connection core
// (§6 "Configuration"). It is plain data — no env/flag parsing library is
// wired here, since the teacher pack never reaches for one to load this
// kind of struct; callers build it directly or via ServerConfig.
type Config struct {
	// IdleTimeout arms a timer when the connection starts serving. If it
	// fires, the connection sends GOAWAY(NO_ERROR, "idle timeout") and
	// closes once that is flushed (or closes at once while a write is in
	// flight). The timer is stopped when the first stream opens and is not
	// re-armed afterwards; incoming frames do not reset it.
	IdleTimeout time.Duration

	// GracefulShutdownTimeout is the final forced-close grace period after
	// the second GOAWAY of the shutdown sequence (§4.8).
	GracefulShutdownTimeout time.Duration

	// MaxConcurrentRequestsPerConnection gates dispatch from pending_reqs.
	MaxConcurrentRequestsPerConnection int

	// MaxConcurrentStreamingRequestsPerConnection gates entry into
	// streaming request-body mode.
	MaxConcurrentStreamingRequestsPerConnection int

	// StreamRequestBody decides, once a request's headers (but not yet its
	// body) have arrived, whether that request should be streamed to the
	// handler incrementally instead of buffered (§4.6). Nil disables
	// streaming entirely. It runs on the connection's single state-owning
	// goroutine and must not block.
	StreamRequestBody func(ctx *fasthttp.RequestCtx) bool

	// MaxStreamsForPriority bounds idle/closed streams retained purely for
	// PRIORITY bookkeeping; exceeding it is ENHANCE_YOUR_CALM.
	MaxStreamsForPriority int

	// ActiveStreamWindowSize is the widened per-stream receive window used
	// while a request body is being actively streamed.
	ActiveStreamWindowSize int32

	// MaxRequestEntitySize bounds a request body, buffered or streamed;
	// exceeding it is REFUSED_STREAM.
	MaxRequestEntitySize int64

	// ConnectionWindowSize is the full connection-level receive window
	// restored to on replenishment.
	ConnectionWindowSize int32

	// StreamWindowSize is the default per-stream receive window granted to
	// newly opened streams.
	StreamWindowSize int32

	// MaxConcurrentStreams is SETTINGS_MAX_CONCURRENT_STREAMS, advertised
	// to the peer in the server preface.
	MaxConcurrentStreams uint32

	// ClosedStreamRingSize is the capacity of recently_closed_streams.
	ClosedStreamRingSize int

	// PingInterval, when non-zero, arms a periodic keep-alive PING.
	PingInterval time.Duration

	Debug bool
}

// DefaultConfig returns the knob values this package falls back to when a
// Config field is left zero.
func DefaultConfig() Config {
	return Config{
		IdleTimeout:                                  120 * time.Second,
		GracefulShutdownTimeout:                       5 * time.Second,
		MaxConcurrentRequestsPerConnection:            250,
		MaxConcurrentStreamingRequestsPerConnection:   20,
		MaxStreamsForPriority:                         100,
		ActiveStreamWindowSize:                        1 << 20,
		MaxRequestEntitySize:                          8 << 20,
		ConnectionWindowSize:                          1 << 20,
		StreamWindowSize:                              int32(defaultWindowSize),
		MaxConcurrentStreams:                          defaultConcurrentStreams,
		ClosedStreamRingSize:                          10,
		PingInterval:                                  0,
	}
}

func (c *Config) fillDefaults() {
	d := DefaultConfig()
	if c.IdleTimeout == 0 {
		c.IdleTimeout = d.IdleTimeout
	}
	if c.GracefulShutdownTimeout == 0 {
		c.GracefulShutdownTimeout = d.GracefulShutdownTimeout
	}
	if c.MaxConcurrentRequestsPerConnection == 0 {
		c.MaxConcurrentRequestsPerConnection = d.MaxConcurrentRequestsPerConnection
	}
	if c.MaxConcurrentStreamingRequestsPerConnection == 0 {
		c.MaxConcurrentStreamingRequestsPerConnection = d.MaxConcurrentStreamingRequestsPerConnection
	}
	if c.MaxStreamsForPriority == 0 {
		c.MaxStreamsForPriority = d.MaxStreamsForPriority
	}
	if c.ActiveStreamWindowSize == 0 {
		c.ActiveStreamWindowSize = d.ActiveStreamWindowSize
	}
	if c.MaxRequestEntitySize == 0 {
		c.MaxRequestEntitySize = d.MaxRequestEntitySize
	}
	if c.ConnectionWindowSize == 0 {
		c.ConnectionWindowSize = d.ConnectionWindowSize
	}
	if c.StreamWindowSize == 0 {
		c.StreamWindowSize = d.StreamWindowSize
	}
	if c.MaxConcurrentStreams == 0 {
		c.MaxConcurrentStreams = d.MaxConcurrentStreams
	}
	if c.ClosedStreamRingSize == 0 {
		c.ClosedStreamRingSize = d.ClosedStreamRingSize
	}
}
