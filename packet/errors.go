package packet

import (
	"github.com/pkg/errors"
)

// Error codec errors. Text of each value is the reason sent to the client in -ERR
type Error byte

// nolint: golint
const (
	// ErrUnknownOperation control line starts with unknown verb
	ErrUnknownOperation Error = iota + 1
	// ErrParser malformed control line or header block
	ErrParser
	// ErrMaxPayload declared payload size exceeds max_payload
	ErrMaxPayload
	// ErrMaxControlLine control line longer than allowed
	ErrMaxControlLine
	// ErrInvalidSubject subject is empty, has empty tokens or misplaced wildcards
	ErrInvalidSubject
	// ErrSlowConsumer outbound buffer overflow
	ErrSlowConsumer
	// ErrUnsupported operation recognized but not supported by this server
	ErrUnsupported
	// ErrHeadersNotSupported HPUB received from client that did not negotiate headers
	ErrHeadersNotSupported
	// ErrInvalidHeader header block does not start with NATS/1.0 or is not terminated
	ErrInvalidHeader
	// ErrInvalidArgs encoder received inconsistent operation
	ErrInvalidArgs
)

// Error returns the reason string of the codec error
func (e Error) Error() string {
	switch e {
	case ErrUnknownOperation:
		return "Unknown Protocol Operation"
	case ErrParser:
		return "Parser Error"
	case ErrMaxPayload:
		return "Maximum Payload Violation"
	case ErrMaxControlLine:
		return "Maximum Control Line Exceeded"
	case ErrInvalidSubject:
		return "Invalid Subject"
	case ErrSlowConsumer:
		return "Slow Consumer"
	case ErrUnsupported:
		return "Unsupported Protocol Operation"
	case ErrHeadersNotSupported:
		return "Headers Not Supported"
	case ErrInvalidHeader:
		return "Invalid Header Block"
	case ErrInvalidArgs:
		return "Invalid Arguments"
	}

	return "Unknown Error"
}

// IsProtocolError reports whether err (or its cause) is a codec error
func IsProtocolError(err error) bool {
	_, ok := errors.Cause(err).(Error)
	return ok
}

// Reason extracts text suitable for -ERR from any error
func Reason(err error) string {
	if e, ok := errors.Cause(err).(Error); ok {
		return e.Error()
	}

	return err.Error()
}
