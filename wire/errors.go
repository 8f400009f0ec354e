package wire

import (
	"errors"
	"fmt"
)

// Kind classifies protocol call failures.
type Kind int

const (
	// KindConnection is a dial, send or receive failure.
	KindConnection Kind = iota
	// KindServer is a response carrying the error marker.
	KindServer
	// KindProtocol is a malformed or truncated response.
	KindProtocol
	// KindSource is a local failure reading a streamed request body.
	KindSource
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindServer:
		return "server"
	case KindProtocol:
		return "protocol"
	case KindSource:
		return "source"
	default:
		return "unknown"
	}
}

// Error is a failed protocol call.
type Error struct {
	Kind Kind
	// Op is the command name or transport step that failed.
	Op  string
	Msg string
	Err error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s: %s: %v", e.Kind, e.Op, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s %s: %s", e.Kind, e.Op, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a protocol error and whether err is one.
func KindOf(err error) (Kind, bool) {
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return wireErr.Kind, true
	}
	return 0, false
}

// IsConnectionError reports whether err is a transport failure.
func IsConnectionError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindConnection
}

// IsServerError reports whether err is an error-marker response.
func IsServerError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindServer
}

// IsProtocolError reports whether err is a protocol violation.
func IsProtocolError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindProtocol
}

// IsSourceError reports whether err is a local request body read failure.
func IsSourceError(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindSource
}

// ProtocolViolation builds a KindProtocol error for op.
func ProtocolViolation(op, format string, args ...any) *Error {
	return &Error{Kind: KindProtocol, Op: op, Msg: fmt.Sprintf(format, args...)}
}
