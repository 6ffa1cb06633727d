package rpc

import (
	"errors"
	"fmt"
)

var (
	ErrTimeout        = errors.New("rpc: timeout")
	ErrClosed         = errors.New("rpc: socket closed")
	ErrNoAddress      = errors.New("rpc: no address")
	ErrUnauthorized   = errors.New("rpc: unauthorized")
	ErrShortSecret    = errors.New("rpc: cluster secret must be at least 32 characters")
	ErrFrameTooShort  = errors.New("rpc: frame too short")
	ErrUnknownFlag    = errors.New("rpc: unknown frame flag")
	ErrAlreadyRunning = errors.New("rpc: server already running")
	ErrNotRunning     = errors.New("rpc: server not running")
)

// ErrorKind classifies a failed call
type ErrorKind string

const (
	KindTimeout      ErrorKind = "timeout"
	KindNoSuchMethod ErrorKind = "no-such-method"
	KindTransport    ErrorKind = "transport"
	KindRemote       ErrorKind = "remote"
	KindInvalid      ErrorKind = "invalid"
	KindUnauthorized ErrorKind = "unauthorized"
	KindEncoding     ErrorKind = "encoding"
)

// CallError is returned by every failed client call
type CallError struct {
	Method     Method
	Address    string
	Kind       ErrorKind
	Commentary string
	Err        error
}

func (e *CallError) Error() string {
	if e.Commentary != "" {
		return fmt.Sprintf("rpc %s to %s failed (%s): %s", e.Method, e.Address, e.Kind, e.Commentary)
	}
	if e.Err != nil {
		return fmt.Sprintf("rpc %s to %s failed (%s): %v", e.Method, e.Address, e.Kind, e.Err)
	}
	return fmt.Sprintf("rpc %s to %s failed (%s)", e.Method, e.Address, e.Kind)
}

func (e *CallError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *CallError in err's chain, or "" if there is
// none.
func KindOf(err error) ErrorKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return ""
}

// IsTimeout reports whether err is a timed-out call
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || KindOf(err) == KindTimeout
}

// remoteError is returned by handlers to choose the reply kind
type remoteError struct {
	kind ErrorKind
	err  error
}

func (e *remoteError) Error() string { return e.err.Error() }
func (e *remoteError) Unwrap() error { return e.err }

// Invalid marks err as a rejected request
func Invalid(err error) error {
	return &remoteError{kind: KindInvalid, err: err}
}

func kindForHandlerError(err error) ErrorKind {
	var re *remoteError
	if errors.As(err, &re) {
		return re.kind
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindUnauthorized
	}
	return KindRemote
}
