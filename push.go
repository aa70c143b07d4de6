package http2

import (
	"fmt"

	"github.com/valyala/fasthttp"
	"github.com/valyala/fastrand"
)

// maxPushMemoEntries bounds pushMemo so a connection handling an endless
// stream of distinct paths can't grow it without limit.
const maxPushMemoEntries = 4096

// PushPath offers a resource the client didn't ask for yet, associated with
// srcStream's request (§6 push_path). It is a no-op, not an error, when the
// peer has disabled push or the connection is shutting down — callers are
// not expected to guard every push call on negotiation state themselves.
// isCritical is accepted for caller symmetry with the host API; this core
// does not yet reorder pushes by it (see DESIGN.md).
func (sc *Conn) PushPath(srcStream *Stream, absPath string, isCritical bool) error {
	if sc.peerSettings.DisablePush || sc.state != ConnOpen {
		return nil
	}

	memoKey := fmt.Sprintf("%d:%s", srcStream.id, absPath)
	if _, pushed := sc.pushMemo[memoKey]; pushed {
		return nil
	}

	if sc.streams.OpenPush() >= int(sc.cfg.MaxConcurrentStreams) {
		return nil
	}

	pushID := sc.nextPushStreamID()

	s := AcquireStream(pushID)
	s.node = sc.sched.Open(pushID)
	sc.fc.InitStreamWindows(s, sc.peerSettings.InitialWindowSize)
	sc.streams.Open(s)
	s.Push().ParentStreamID = srcStream.id

	ctx := new(fasthttp.RequestCtx)
	ctx.Init(&fasthttp.Request{}, sc.c.RemoteAddr(), sc.logger)
	ctx.Request.Header.SetMethodBytes(StringGET)
	ctx.Request.SetRequestURI(absPath)
	ctx.Request.URI().SetSchemeBytes(srcStream.Ctx().URI().Scheme())
	ctx.Request.URI().SetHostBytes(srcStream.Ctx().URI().Host())
	s.SetCtx(ctx)

	if err := sc.sendPushPromise(s, srcStream.id); err != nil {
		sc.closeStream(s)
		return err
	}

	sc.rememberPush(memoKey)
	s.Push().PromiseSent = true
	sc.dispatchRequest(s)

	return nil
}

// rememberPush records key as pushed. When the memo is at capacity, one
// existing entry is evicted at random (map iteration order is already
// randomized by the runtime; fastrand picks how many entries to skip before
// evicting, so eviction isn't biased toward whatever key the runtime would
// otherwise visit first).
func (sc *Conn) rememberPush(key string) {
	if len(sc.pushMemo) >= maxPushMemoEntries {
		skip := fastrand.Uint32n(uint32(len(sc.pushMemo)))
		for k := range sc.pushMemo {
			if skip == 0 {
				delete(sc.pushMemo, k)
				break
			}
			skip--
		}
	}
	sc.pushMemo[key] = struct{}{}
}

func (sc *Conn) nextPushStreamID() uint32 {
	id := sc.streams.MaxOpenPush() + 2
	if id == 0 {
		id = 2
	}
	return id
}

// sendPushPromise HPACK-encodes the promised request's pseudo-headers and
// enqueues a PUSH_PROMISE on srcStreamID, the stream the pushed resource is
// associated with (§6.6).
func (sc *Conn) sendPushPromise(pushStream *Stream, srcStreamID uint32) error {
	req := &pushStream.Ctx().Request

	hf := AcquireHeaderField()
	defer ReleaseHeaderField(hf)

	pp := AcquireFrame(FramePushPromise).(*PushPromise)
	pp.SetStream(pushStream.id)
	pp.SetEndHeaders(true)

	var block []byte
	hf.SetKeyBytes(StringMethod)
	hf.SetValueBytes(req.Header.Method())
	block = sc.hpack.AppendHeader(block, hf, true)

	hf.SetKeyBytes(StringPath)
	hf.SetValueBytes(req.URI().Path())
	block = sc.hpack.AppendHeader(block, hf, true)

	hf.SetKeyBytes(StringScheme)
	hf.SetValueBytes(req.URI().Scheme())
	block = sc.hpack.AppendHeader(block, hf, true)

	hf.SetKeyBytes(StringAuthority)
	hf.SetValueBytes(req.URI().Host())
	block = sc.hpack.AppendHeader(block, hf, true)

	pp.SetHeader(block)

	fr := AcquireFrameHeader()
	fr.SetStream(srcStreamID)
	fr.SetBody(pp)
	sc.enqueueControl(fr)

	return nil
}
