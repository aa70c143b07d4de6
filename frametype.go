package http2

import (
	"sync"
)

// FrameType is the HTTP/2 frame type octet.
//
// https://tools.ietf.org/html/rfc7540#section-11.2
type FrameType uint8

const (
	FrameData         FrameType = 0x0
	FrameHeaders      FrameType = 0x1
	FramePriority     FrameType = 0x2
	FrameResetStream  FrameType = 0x3
	FrameSettings     FrameType = 0x4
	FramePushPromise  FrameType = 0x5
	FramePing         FrameType = 0x6
	FrameGoAway       FrameType = 0x7
	FrameWindowUpdate FrameType = 0x8
	FrameContinuation FrameType = 0x9

	minFrameType = FrameData
	maxFrameType = FrameContinuation
)

func (ft FrameType) String() string {
	switch ft {
	case FrameData:
		return "Data"
	case FrameHeaders:
		return "Headers"
	case FramePriority:
		return "Priority"
	case FrameResetStream:
		return "RstStream"
	case FrameSettings:
		return "Settings"
	case FramePushPromise:
		return "PushPromise"
	case FramePing:
		return "Ping"
	case FrameGoAway:
		return "GoAway"
	case FrameWindowUpdate:
		return "WindowUpdate"
	case FrameContinuation:
		return "Continuation"
	}
	return "Unknown"
}

// FrameFlags are the flag bits carried in a frame header.
//
// A handful of per-type flags are reused across frame types (e.g. FlagAck and
// FlagEndStream share the same bit, as in the RFC); callers only ever test the
// flag meaningful for the frame type in hand.
type FrameFlags uint8

const (
	FlagAck        FrameFlags = 0x1
	FlagEndStream  FrameFlags = 0x1
	FlagEndHeaders FrameFlags = 0x4
	FlagPadded     FrameFlags = 0x8
	FlagPriority   FrameFlags = 0x20
)

// Has reports whether f contains flag.
func (f FrameFlags) Has(flag FrameFlags) bool {
	return f&flag == flag
}

// Add returns f with flag set.
func (f FrameFlags) Add(flag FrameFlags) FrameFlags {
	return f | flag
}

// Del returns f with flag cleared.
func (f FrameFlags) Del(flag FrameFlags) FrameFlags {
	return f &^ flag
}

// Frame is a decoded/encodable payload for one of the frame types above.
//
// Frame encode/decode is treated as a pure, swappable collaborator (§1): this
// interface is the seam the connection core dispatches through, independent of
// the byte-level wire format each implementation chooses.
type Frame interface {
	Type() FrameType
	Reset()
	Deserialize(fr *FrameHeader) error
	Serialize(fr *FrameHeader)
}

// FrameWithHeaders is implemented by frame types that carry a raw HPACK
// header-block fragment (HEADERS, CONTINUATION, PUSH_PROMISE).
type FrameWithHeaders interface {
	Headers() []byte
}

var framePools = [maxFrameType + 1]sync.Pool{
	FrameData:         {New: func() interface{} { return new(Data) }},
	FrameHeaders:      {New: func() interface{} { return new(Headers) }},
	FramePriority:     {New: func() interface{} { return new(Priority) }},
	FrameResetStream:  {New: func() interface{} { return new(RstStream) }},
	FrameSettings:     {New: func() interface{} { return new(Settings) }},
	FramePushPromise:  {New: func() interface{} { return new(PushPromise) }},
	FramePing:         {New: func() interface{} { return new(Ping) }},
	FrameGoAway:       {New: func() interface{} { return new(GoAway) }},
	FrameWindowUpdate: {New: func() interface{} { return new(WindowUpdate) }},
	FrameContinuation: {New: func() interface{} { return new(Continuation) }},
}

// AcquireFrame returns a pooled Frame implementation for kind.
func AcquireFrame(kind FrameType) Frame {
	if kind < minFrameType || kind > maxFrameType {
		return nil
	}
	return framePools[kind].Get().(Frame)
}

// ReleaseFrame resets fr and returns it to its type's pool.
func ReleaseFrame(fr Frame) {
	if fr == nil {
		return
	}
	fr.Reset()
	framePools[fr.Type()].Put(fr)
}
