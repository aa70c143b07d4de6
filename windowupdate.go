package http2

import (
	"github.com/mverax/h2core/http2utils"
)


var _ Frame = &WindowUpdate{}

// WindowUpdate represents the WINDOW_UPDATE frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.9
type WindowUpdate struct {
	increment uint32
}

func (wu *WindowUpdate) Type() FrameType {
	return FrameWindowUpdate
}

// Reset ...
func (wu *WindowUpdate) Reset() {
	wu.increment = 0
}

// CopyTo ...
func (wu *WindowUpdate) CopyTo(w *WindowUpdate) {
	w.increment = wu.increment
}

// Increment returns the window size increment, 1..2^31-1.
func (wu *WindowUpdate) Increment() uint32 {
	return wu.increment
}

// SetIncrement sets the window size increment.
func (wu *WindowUpdate) SetIncrement(increment uint32) {
	wu.increment = increment & (1<<31 - 1)
}

func (wu *WindowUpdate) Deserialize(fr *FrameHeader) error {
	if len(fr.payload) < 4 {
		wu.increment = 0
		return ErrMissingBytes
	}

	wu.increment = http2utils.BytesToUint32(fr.payload) & (1<<31 - 1)
	if wu.increment == 0 {
		if fr.Stream() == 0 {
			return NewGoAwayError(ProtocolError, "window update increment of 0")
		}
		return NewResetStreamError(ProtocolError, "window update increment of 0")
	}

	return nil
}

func (wu *WindowUpdate) Serialize(fr *FrameHeader) {
	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], wu.increment)
}
