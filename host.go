package http2

import (
	"github.com/valyala/fasthttp"
)

// RequestHandler is the host's process_request collaborator (§6): given a
// fully-formed request, it produces a response on the same RequestCtx.
// Request dispatch itself is out of scope (§1); this is just the seam.
type RequestHandler = fasthttp.RequestHandler

// Logger is the host's logging collaborator, matching fasthttp's own
// interface so a *log.Logger can be passed directly.
type Logger = fasthttp.Logger

// ConnDebugState is a point-in-time snapshot of a connection's internal
// bookkeeping, the realization of get_debug_state (§6). It exists for
// tests and operational introspection, not for protocol behavior.
type ConnDebugState struct {
	State              string
	OpenPullStreams    int
	OpenPushStreams    int
	HalfClosedStreams  int
	BlockedByServer    int
	Tunnels            int
	StreamingInProgress int
	MaxOpenPullID      uint32
	MaxOpenPushID      uint32
	IsChromiumTree     bool
	ConnInputWindow    int64
	ConnOutputWindow   int64
}
