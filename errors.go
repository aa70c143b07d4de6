package http2

import (
	"errors"
	"fmt"
)

// ErrorCode is an HTTP/2 error code as carried on RST_STREAM and GOAWAY.
//
// https://tools.ietf.org/html/rfc7540#section-7
type ErrorCode uint32

const (
	NoError              ErrorCode = 0x0
	ProtocolError        ErrorCode = 0x1
	InternalError        ErrorCode = 0x2
	FlowControlError     ErrorCode = 0x3
	SettingsTimeoutError ErrorCode = 0x4
	StreamClosedError    ErrorCode = 0x5
	FrameSizeError       ErrorCode = 0x6
	RefusedStreamError   ErrorCode = 0x7
	CancelError          ErrorCode = 0x8
	CompressionError     ErrorCode = 0x9
	ConnectError         ErrorCode = 0xa
	EnhanceYourCalm      ErrorCode = 0xb
	InadequateSecurity   ErrorCode = 0xc
	HTTP11Required       ErrorCode = 0xd
)

var errorCodeNames = [...]string{
	NoError:              "NO_ERROR",
	ProtocolError:        "PROTOCOL_ERROR",
	InternalError:        "INTERNAL_ERROR",
	FlowControlError:     "FLOW_CONTROL_ERROR",
	SettingsTimeoutError: "SETTINGS_TIMEOUT",
	StreamClosedError:    "STREAM_CLOSED",
	FrameSizeError:       "FRAME_SIZE_ERROR",
	RefusedStreamError:   "REFUSED_STREAM",
	CancelError:          "CANCEL",
	CompressionError:     "COMPRESSION_ERROR",
	ConnectError:         "CONNECT_ERROR",
	EnhanceYourCalm:      "ENHANCE_YOUR_CALM",
	InadequateSecurity:   "INADEQUATE_SECURITY",
	HTTP11Required:       "HTTP_1_1_REQUIRED",
}

func (c ErrorCode) String() string {
	if int(c) < len(errorCodeNames) && errorCodeNames[c] != "" {
		return errorCodeNames[c]
	}
	return fmt.Sprintf("UNKNOWN(0x%x)", uint32(c))
}

// scope distinguishes connection-fatal errors (GOAWAY) from stream-scoped
// errors (RST_STREAM), per the error taxonomy in §7.
type scope uint8

const (
	scopeConnection scope = iota
	scopeStream
)

// Error is the value every protocol-facing error in this package is, or
// wraps, so the dispatcher in conn.go can route it to the right enqueue path
// without re-deriving severity from string matching.
type Error struct {
	scope   scope
	code    ErrorCode
	message string
}

// NewGoAwayError builds a connection-fatal error mapped to a GOAWAY frame.
func NewGoAwayError(code ErrorCode, message string) error {
	return Error{scope: scopeConnection, code: code, message: message}
}

// NewResetStreamError builds a stream-scoped error mapped to RST_STREAM.
func NewResetStreamError(code ErrorCode, message string) error {
	return Error{scope: scopeStream, code: code, message: message}
}

func (e Error) Error() string {
	if e.message == "" {
		return e.code.String()
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Code returns the RFC 7540 error code carried by e.
func (e Error) Code() ErrorCode { return e.code }

// IsConnectionFatal reports whether e must close the whole connection.
func (e Error) IsConnectionFatal() bool { return e.scope == scopeConnection }

var (
	// ErrBadPreface is returned when the client's connection preface does not
	// match the literal 24 bytes required by §6; per §4.9 this closes the
	// socket immediately, without a GOAWAY.
	ErrBadPreface = errors.New("http2: bad connection preface")

	ErrMissingBytes     = errors.New("http2: frame payload is too short")
	ErrPayloadExceeds   = errors.New("http2: frame payload exceeds negotiated max frame size")
	ErrUnknownFrameType = errors.New("http2: unknown frame type")
	errFrameMismatch    = errors.New("http2: frame body doesn't match its header type")
)
