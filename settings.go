package http2

import (
	"github.com/mverax/h2core/http2utils"
)

var _ Frame = &Settings{}

const (
	// default Settings parameters, per §6.5.2.
	defaultHeaderTableSize   uint32 = 4096
	defaultConcurrentStreams uint32 = 100
	defaultWindowSize        uint32 = 1<<16 - 1
	defaultMaxFrameSize      uint32 = 1 << 14

	maxWindowSize = 1<<31 - 1
	maxFrameSize  = 1<<24 - 1

	// settings parameter identifiers (https://httpwg.org/specs/rfc7540.html#SettingValues)
	settingHeaderTableSize      uint16 = 0x1
	settingEnablePush           uint16 = 0x2
	settingMaxConcurrentStreams uint16 = 0x3
	settingInitialWindowSize    uint16 = 0x4
	settingMaxFrameSize         uint16 = 0x5
	settingMaxHeaderListSize    uint16 = 0x6
)

// Settings carries the SETTINGS frame parameters exchanged at connection
// start and whenever either endpoint changes its advertised limits.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	HeaderTableSize      uint32
	DisablePush          bool
	MaxConcurrentStreams uint32
	InitialWindowSize    uint32
	MaxFrameSize         uint32
	MaxHeaderListSize    uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset resets settings to their RFC 7540 §6.5.2 default values.
func (st *Settings) Reset() {
	st.ack = false
	st.HeaderTableSize = defaultHeaderTableSize
	st.DisablePush = false
	st.MaxConcurrentStreams = defaultConcurrentStreams
	st.InitialWindowSize = defaultWindowSize
	st.MaxFrameSize = defaultMaxFrameSize
	st.MaxHeaderListSize = 0
}

// CopyTo copies st's fields to other.
func (st *Settings) CopyTo(other *Settings) {
	other.ack = st.ack
	other.HeaderTableSize = st.HeaderTableSize
	other.DisablePush = st.DisablePush
	other.MaxConcurrentStreams = st.MaxConcurrentStreams
	other.InitialWindowSize = st.InitialWindowSize
	other.MaxFrameSize = st.MaxFrameSize
	other.MaxHeaderListSize = st.MaxHeaderListSize
}

// IsAck reports whether this frame just acknowledges the peer's settings,
// in which case its payload must be empty (§6.5).
func (st *Settings) IsAck() bool {
	return st.ack
}

// SetAck marks this frame as a SETTINGS ack.
func (st *Settings) SetAck(v bool) {
	st.ack = v
}

// MaxWindowSize returns the protocol ceiling for a flow-control window,
// independent of whatever InitialWindowSize either side has negotiated.
func (st *Settings) MaxWindowSize() uint32 {
	return maxWindowSize
}

// Deserialize decodes a SETTINGS payload: a list of 6-byte (id, value)
// entries. Unknown identifiers are ignored per §6.5.2. An ack frame must
// carry no payload; a non-ack frame's payload length must be a multiple of 6.
func (st *Settings) Deserialize(fr *FrameHeader) error {
	st.ack = fr.Flags().Has(FlagAck)

	payload := fr.payload
	if st.ack {
		if len(payload) != 0 {
			return NewGoAwayError(FrameSizeError, "settings ack with non-empty payload")
		}
		return nil
	}

	if len(payload)%6 != 0 {
		return NewGoAwayError(FrameSizeError, "settings payload not a multiple of 6")
	}

	for i := 0; i+6 <= len(payload); i += 6 {
		id := uint16(payload[i])<<8 | uint16(payload[i+1])
		value := http2utils.BytesToUint32(payload[i+2 : i+6])

		switch id {
		case settingHeaderTableSize:
			st.HeaderTableSize = value
		case settingEnablePush:
			if value > 1 {
				return NewGoAwayError(ProtocolError, "invalid enable_push value")
			}
			st.DisablePush = value == 0
		case settingMaxConcurrentStreams:
			st.MaxConcurrentStreams = value
		case settingInitialWindowSize:
			if value > maxWindowSize {
				return NewGoAwayError(FlowControlError, "initial window size exceeds maximum")
			}
			st.InitialWindowSize = value
		case settingMaxFrameSize:
			if value < defaultMaxFrameSize || value > maxFrameSize {
				return NewGoAwayError(ProtocolError, "invalid max frame size")
			}
			st.MaxFrameSize = value
		case settingMaxHeaderListSize:
			st.MaxHeaderListSize = value
		}
	}

	return nil
}

// Serialize encodes st's parameters as a SETTINGS payload. An ack frame
// carries no payload regardless of the field values.
func (st *Settings) Serialize(fr *FrameHeader) {
	if st.ack {
		fr.SetFlags(fr.Flags().Add(FlagAck))
		fr.payload = fr.payload[:0]
		return
	}

	payload := fr.payload[:0]
	payload = appendSetting(payload, settingHeaderTableSize, st.HeaderTableSize)
	if st.DisablePush {
		payload = appendSetting(payload, settingEnablePush, 0)
	} else {
		payload = appendSetting(payload, settingEnablePush, 1)
	}
	payload = appendSetting(payload, settingMaxConcurrentStreams, st.MaxConcurrentStreams)
	payload = appendSetting(payload, settingInitialWindowSize, st.InitialWindowSize)
	payload = appendSetting(payload, settingMaxFrameSize, st.MaxFrameSize)
	if st.MaxHeaderListSize != 0 {
		payload = appendSetting(payload, settingMaxHeaderListSize, st.MaxHeaderListSize)
	}

	fr.payload = payload
}

func appendSetting(dst []byte, id uint16, value uint32) []byte {
	dst = append(dst, byte(id>>8), byte(id))
	return http2utils.AppendUint32Bytes(dst, value)
}
