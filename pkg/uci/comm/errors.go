package comm

import (
	"errors"
	"fmt"
)

var (
	// ErrBusy indicates a reentrant read, a concurrent write, or a command
	// issued while another one is awaiting response.
	ErrBusy = errors.New("busy")
	// ErrTimeout indicates the command deadline elapsed without response.
	ErrTimeout = errors.New("command timeout")
	// ErrCancelled indicates the command is cancelled by session teardown.
	ErrCancelled = errors.New("command cancelled")
	// ErrPending indicates the result of a command is not available yet.
	ErrPending = errors.New("command pending")
	// ErrNotReady indicates the dispatcher is not initialized.
	ErrNotReady = errors.New("not ready")
	// ErrClosed indicates the session is closed.
	ErrClosed = errors.New("session closed")
	// ErrSessionExists indicates Init is called while a session is live.
	ErrSessionExists = errors.New("session already exists")
	// ErrNoSession indicates Get is called without a live session.
	ErrNoSession = errors.New("no session")
)

// TransportError wraps link failures. It is fatal to the session.
type TransportError struct {
	Op  string
	Err error
}

// Error implements error.
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

// Unwrap returns the cause.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// FramingError reports bytes or packets discarded while framing.
type FramingError struct {
	Header    Header
	Reason    string
	Discarded int
}

// Error implements error.
func (e *FramingError) Error() string {
	return fmt.Sprintf("framing %s: %s, %d bytes discarded", e.Header, e.Reason, e.Discarded)
}

// DispatchError reports a frame the dispatcher can't route.
type DispatchError struct {
	Header Header
	Reason string
}

// Error implements error.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch %s: %s", e.Header, e.Reason)
}

// InitError wraps failures of establishing a session or initializing
// the platform.
type InitError struct {
	Err error
}

// Error implements error.
func (e *InitError) Error() string {
	return "init: " + e.Err.Error()
}

// Unwrap returns the cause.
func (e *InitError) Unwrap() error {
	return e.Err
}

// IsFatal tells if the session is gone after err.
func IsFatal(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr) || errors.Is(err, ErrClosed)
}
