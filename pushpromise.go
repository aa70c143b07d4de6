package http2

import (
	"github.com/mverax/h2core/http2utils"
)


var _ Frame = &PushPromise{}

// PushPromise https://tools.ietf.org/html/rfc7540#section-6.6
type PushPromise struct {
	pad    bool
	ended  bool
	stream uint32
	header []byte // header block fragment
}

func (pp *PushPromise) Type() FrameType {
	return FramePushPromise
}

func (pp *PushPromise) Reset() {
	pp.pad = false
	pp.ended = false
	pp.stream = 0
	pp.header = pp.header[:0]
}

func (pp *PushPromise) CopyTo(other *PushPromise) {
	other.pad = pp.pad
	other.ended = pp.ended
	other.stream = pp.stream
	other.header = append(other.header[:0], pp.header...)
}

// Header returns the header block fragment (the promised request's headers).
func (pp *PushPromise) Header() []byte {
	return pp.header
}

func (pp *PushPromise) SetHeader(h []byte) {
	pp.header = append(pp.header[:0], h...)
}

// Stream returns the promised stream id.
func (pp *PushPromise) Stream() uint32 {
	return pp.stream
}

// SetStream sets the promised stream id.
func (pp *PushPromise) SetStream(stream uint32) {
	pp.stream = stream & (1<<31 - 1)
}

// EndHeaders reports whether the header block is complete in this frame.
func (pp *PushPromise) EndHeaders() bool {
	return pp.ended
}

// SetEndHeaders sets the END_HEADERS flag.
func (pp *PushPromise) SetEndHeaders(v bool) {
	pp.ended = v
}

func (pp *PushPromise) Write(b []byte) (int, error) {
	n := len(b)
	pp.header = append(pp.header, b...)
	return n, nil
}

func (pp *PushPromise) Deserialize(fr *FrameHeader) error {
	payload := fr.payload

	if fr.Flags().Has(FlagPadded) {
		var err error
		payload, err = http2utils.CutPadding(payload, fr.Len())
		if err != nil {
			return err
		}
	}

	if len(payload) < 4 {
		return ErrMissingBytes
	}

	pp.stream = http2utils.BytesToUint32(payload) & (1<<31 - 1)
	pp.header = append(pp.header[:0], payload[4:]...)
	pp.ended = fr.Flags().Has(FlagEndHeaders)

	return nil
}

func (pp *PushPromise) Serialize(fr *FrameHeader) {
	if pp.ended {
		fr.SetFlags(fr.Flags().Add(FlagEndHeaders))
	}

	payload := http2utils.AppendUint32Bytes(fr.payload[:0], pp.stream)
	payload = append(payload, pp.header...)

	if pp.pad {
		fr.SetFlags(fr.Flags().Add(FlagPadded))
		payload = http2utils.AddPadding(payload)
	}

	fr.payload = payload
}
