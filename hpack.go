package http2

import (
	"bytes"

	"golang.org/x/net/http2/hpack"
)

// HPACK holds the pair of header compression contexts a connection keeps
// for its lifetime: one dynamic table for headers it decodes from the peer,
// one for headers it encodes to the peer. Unlike frames, a connection's
// HPACK state is not poolable across connections — the dynamic table is
// part of the protocol state the peer is tracking too.
//
// https://tools.ietf.org/html/rfc7541
type HPACK struct {
	encBuf bytes.Buffer
	enc    *hpack.Encoder
	dec    *hpack.Decoder
}

// NewHPACK builds the HPACK contexts for one connection, bounding the
// decoder's dynamic table at maxDynamicTableSize (the value this endpoint
// advertises via SETTINGS_HEADER_TABLE_SIZE).
func NewHPACK(maxDynamicTableSize uint32) *HPACK {
	h := &HPACK{}
	h.enc = hpack.NewEncoder(&h.encBuf)
	h.dec = hpack.NewDecoder(maxDynamicTableSize, nil)
	return h
}

// SetMaxDecodeTableSize adjusts the table size this endpoint allows its
// peer to grow the encoding table to, reacting to a local SETTINGS change.
func (h *HPACK) SetMaxDecodeTableSize(size uint32) {
	h.dec.SetMaxDynamicTableSize(size)
}

// SetMaxEncodeTableSize reacts to the peer's SETTINGS_HEADER_TABLE_SIZE,
// capping how large a table our own encoder is allowed to build.
func (h *HPACK) SetMaxEncodeTableSize(size uint32) {
	h.enc.SetMaxDynamicTableSize(size)
}

// AppendHeader HPACK-encodes hf and appends the wire bytes to dst. store
// controls whether the field is eligible for the dynamic table: literal
// fields that should never be indexed (e.g. one-off or sensitive values)
// pass store=false, which this package maps onto HPACK's never-indexed
// literal representation.
func (h *HPACK) AppendHeader(dst []byte, hf *HeaderField, store bool) []byte {
	h.encBuf.Reset()

	f := hpack.HeaderField{
		Name:      hf.Key(),
		Value:     hf.Value(),
		Sensitive: !store,
	}

	// WriteField never fails against a bytes.Buffer.
	_ = h.enc.WriteField(f)

	return append(dst, h.encBuf.Bytes()...)
}

// Decode parses a complete header block (already reassembled across any
// CONTINUATION frames) into fields, appending onto dst.
func (h *HPACK) Decode(dst []HeaderField, block []byte) ([]HeaderField, error) {
	fields, err := h.dec.DecodeFull(block)
	if err != nil {
		return dst, NewGoAwayError(CompressionError, err.Error())
	}

	for i := range fields {
		var hf HeaderField
		hf.SetKey(fields[i].Name)
		hf.SetValue(fields[i].Value)
		dst = append(dst, hf)
	}

	return dst, nil
}
