package http2

import (
	"bytes"
	"sync"
)

// streamingBody bridges DATA frames delivered by the connection's actor
// goroutine to the handler goroutine's blocking Reads of the request body,
// once streaming mode is entered (§4.6). push/closeWithError are only ever
// called from handleStreams; Read runs on the handler's own goroutine. It
// never blocks the actor: a slow handler just leaves bytes buffered here.
type streamingBody struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	notify chan struct{}
	err    error
}

func newStreamingBody() *streamingBody {
	return &streamingBody{notify: make(chan struct{}, 1)}
}

// push appends one DATA frame's payload.
func (b *streamingBody) push(p []byte) {
	if len(p) == 0 {
		return
	}
	b.mu.Lock()
	b.buf.Write(p)
	b.mu.Unlock()
	b.wake()
}

// closeWithError marks the body finished; err is what Read returns once the
// buffered bytes are drained.
func (b *streamingBody) closeWithError(err error) {
	b.mu.Lock()
	if b.err == nil {
		b.err = err
	}
	b.mu.Unlock()
	b.wake()
}

func (b *streamingBody) wake() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Read implements io.Reader for fasthttp's request body stream.
func (b *streamingBody) Read(p []byte) (int, error) {
	for {
		b.mu.Lock()
		if b.buf.Len() > 0 {
			n, _ := b.buf.Read(p)
			b.mu.Unlock()
			return n, nil
		}
		err := b.err
		b.mu.Unlock()
		if err != nil {
			return 0, err
		}
		<-b.notify
	}
}
