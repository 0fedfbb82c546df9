package comm

import (
	"io"
	"sync"
)

// OpenFunc opens the link for the process-wide session.
type OpenFunc func() (io.ReadWriter, error)

var (
	singleton     *Session
	singletonLock sync.Mutex
)

// Init establishes the process-wide session.
// It fails with ErrSessionExists if a live session exists, and with
// *InitError if the link can't be opened.
// Packets are received by driving Read or Run of the returned session.
func Init(open OpenFunc, h FrameHandler, opts Options) (*Session, error) {
	singletonLock.Lock()
	defer singletonLock.Unlock()
	if singleton != nil && !singleton.isClosed() {
		return nil, ErrSessionExists
	}
	rw, err := open()
	if err != nil {
		return nil, &InitError{Err: err}
	}
	s := NewSession(rw, opts)
	s.Handler = h
	singleton = s
	return s, nil
}

// Get returns the process-wide session.
func Get() (*Session, error) {
	singletonLock.Lock()
	defer singletonLock.Unlock()
	if singleton == nil || singleton.isClosed() {
		return nil, ErrNoSession
	}
	return singleton, nil
}

// Exit closes and releases the process-wide session.
func Exit() error {
	singletonLock.Lock()
	s := singleton
	singleton = nil
	singletonLock.Unlock()
	if s == nil {
		return ErrNoSession
	}
	return s.Close()
}
