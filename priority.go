package http2

import (
	"github.com/mverax/h2core/http2utils"
)


var _ Frame = &Priority{}

// Priority represents the PRIORITY frame.
//
// https://tools.ietf.org/html/rfc7540#section-6.3
type Priority struct {
	stream    uint32
	weight    byte
	exclusive bool
}

func (pry *Priority) Type() FrameType {
	return FramePriority
}

// Reset resets priority fields.
func (pry *Priority) Reset() {
	pry.stream = 0
	pry.weight = 0
	pry.exclusive = false
}

func (pry *Priority) CopyTo(p *Priority) {
	p.stream = pry.stream
	p.weight = pry.weight
	p.exclusive = pry.exclusive
}

// Stream returns the stream id this PRIORITY frame depends on.
func (pry *Priority) Stream() uint32 {
	return pry.stream
}

// SetStream sets the dependency stream id.
func (pry *Priority) SetStream(stream uint32) {
	pry.stream = stream & (1<<31 - 1)
}

// Weight returns the raw wire weight byte (0..255, representing 1..256).
func (pry *Priority) Weight() byte {
	return pry.weight
}

// SetWeight sets the raw wire weight byte.
func (pry *Priority) SetWeight(w byte) {
	pry.weight = w
}

// Exclusive reports whether the dependency is exclusive.
func (pry *Priority) Exclusive() bool {
	return pry.exclusive
}

// SetExclusive sets the exclusive bit.
func (pry *Priority) SetExclusive(v bool) {
	pry.exclusive = v
}

// Deserialize decodes the payload. A stream depending on itself is rejected
// at decode time, per §4.4.
func (pry *Priority) Deserialize(fr *FrameHeader) (err error) {
	if len(fr.payload) < 5 {
		return ErrMissingBytes
	}

	dep := http2utils.BytesToUint32(fr.payload)
	pry.exclusive = dep&(1<<31) != 0
	pry.stream = dep & (1<<31 - 1)
	pry.weight = fr.payload[4]

	if pry.stream == fr.Stream() {
		return NewGoAwayError(ProtocolError, "stream that depends on itself")
	}

	return nil
}

func (pry *Priority) Serialize(fr *FrameHeader) {
	dep := pry.stream & (1<<31 - 1)
	if pry.exclusive {
		dep |= 1 << 31
	}

	fr.payload = http2utils.AppendUint32Bytes(fr.payload[:0], dep)
	fr.payload = append(fr.payload, pry.weight)
}
