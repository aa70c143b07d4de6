package http2

import (
	"github.com/mverax/h2core/http2utils"
)


var (
	_ Frame            = &Headers{}
	_ FrameWithHeaders = &Headers{}
)

// Headers defines a FrameHeaders
//
// https://tools.ietf.org/html/rfc7540#section-6.2
type Headers struct {
	hasPadding bool
	stream     uint32
	weight     uint8
	exclusive  bool
	endStream  bool
	endHeaders bool
	rawHeaders []byte // this field is used to store uncompleted headers.
}

// Reset ...
func (h *Headers) Reset() {
	h.hasPadding = false
	h.stream = 0
	h.weight = 0
	h.exclusive = false
	h.endStream = false
	h.endHeaders = false
	h.rawHeaders = h.rawHeaders[:0]
}

// CopyTo copies h fields to h2.
func (h *Headers) CopyTo(h2 *Headers) {
	h2.hasPadding = h.hasPadding
	h2.stream = h.stream
	h2.weight = h.weight
	h2.exclusive = h.exclusive
	h2.endStream = h.endStream
	h2.endHeaders = h.endHeaders
	h2.rawHeaders = append(h2.rawHeaders[:0], h.rawHeaders...)
}

func (h *Headers) Type() FrameType {
	return FrameHeaders
}

// Headers ...
func (h *Headers) Headers() []byte {
	return h.rawHeaders
}

// SetHeaders ...
func (h *Headers) SetHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders[:0], b...)
}

// AppendRawHeaders appends b to the raw headers.
func (h *Headers) AppendRawHeaders(b []byte) {
	h.rawHeaders = append(h.rawHeaders, b...)
}

func (h *Headers) AppendHeaderField(hp *HPACK, hf *HeaderField, store bool) {
	h.rawHeaders = hp.AppendHeader(h.rawHeaders, hf, store)
}

// EndStream ...
func (h *Headers) EndStream() bool {
	return h.endStream
}

// SetEndStream ...
func (h *Headers) SetEndStream(value bool) {
	h.endStream = value
}

// EndHeaders ...
func (h *Headers) EndHeaders() bool {
	return h.endHeaders
}

// SetEndHeaders ...
func (h *Headers) SetEndHeaders(value bool) {
	h.endHeaders = value
}

// Stream ...
func (h *Headers) Stream() uint32 {
	return h.stream
}

// SetStream ...
func (h *Headers) SetStream(stream uint32) {
	h.stream = stream
}

// Weight ...
func (h *Headers) Weight() byte {
	return h.weight
}

// Exclusive reports whether the priority prefix's dependency is exclusive.
func (h *Headers) Exclusive() bool {
	return h.exclusive
}

// SetExclusive sets the priority prefix's exclusive bit.
func (h *Headers) SetExclusive(v bool) {
	h.exclusive = v
}

// SetWeight ...
func (h *Headers) SetWeight(w byte) {
	h.weight = w
}

// Padding ...
func (h *Headers) Padding() bool {
	return h.hasPadding
}

// SetPadding ...
func (h *Headers) SetPadding(value bool) {
	h.hasPadding = value
}

// HasPriority reports whether this HEADERS frame carries the optional
// dependency/weight prefix, judged from the decoded values: it is true when
// the exclusive bit is set or the dependency or weight is non-zero. Whether
// FlagPriority was present is not recorded, so a prefix of stream 0,
// weight 0 and no exclusive bit reads as no prefix.
func (h *Headers) HasPriority() bool {
	return h.exclusive || h.stream != 0 || h.weight != 0
}

func (h *Headers) Deserialize(frh *FrameHeader) (err error) {
	flags := frh.Flags()
	payload := frh.payload

	if flags.Has(FlagPadded) {
		payload, err = http2utils.CutPadding(payload, len(payload))
		if err != nil {
			return err
		}
	}

	if flags.Has(FlagPriority) {
		if len(payload) < 5 { // 4 (dependency) + 1 (weight) = 5
			return ErrMissingBytes
		}

		dep := http2utils.BytesToUint32(payload)
		h.exclusive = dep&(1<<31) != 0
		h.stream = dep & (1<<31 - 1)
		h.weight = payload[4]
		payload = payload[5:]

		if h.stream == frh.Stream() {
			return NewGoAwayError(ProtocolError, "stream that depends on itself")
		}
	}

	h.endStream = flags.Has(FlagEndStream)
	h.endHeaders = flags.Has(FlagEndHeaders)
	h.rawHeaders = append(h.rawHeaders[:0], payload...)

	return nil
}

func (h *Headers) Serialize(frh *FrameHeader) {
	if h.endStream {
		frh.SetFlags(frh.Flags().Add(FlagEndStream))
	}

	if h.endHeaders {
		frh.SetFlags(frh.Flags().Add(FlagEndHeaders))
	}

	payload := frh.payload[:0]

	if h.HasPriority() {
		frh.SetFlags(frh.Flags().Add(FlagPriority))

		dep := h.stream & (1<<31 - 1)
		if h.exclusive {
			dep |= 1 << 31
		}
		payload = http2utils.AppendUint32Bytes(payload, dep)
		payload = append(payload, h.weight)
	}

	payload = append(payload, h.rawHeaders...)

	if h.hasPadding {
		frh.SetFlags(frh.Flags().Add(FlagPadded))
		payload = http2utils.AddPadding(payload)
	}

	frh.payload = payload
}
