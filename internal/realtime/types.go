package realtime

import (
	"errors"
)

var (
	// ErrNotConnected is returned by personal delivery when the target user
	// has no live connection.
	ErrNotConnected = errors.New("user has no active realtime connection")

	// ErrSendBufferFull is returned by Session.Enqueue when the peer cannot
	// keep up with the event stream.
	ErrSendBufferFull = errors.New("session send buffer overflow")

	// ErrSessionClosed is returned by Session.Enqueue after the session has
	// been closed.
	ErrSessionClosed = errors.New("session closed")
)

// Session is a single live realtime connection.  Implementations must make
// Enqueue non-blocking - delivery happens on the session's own writer
// goroutine, never on the broadcaster's.
type Session interface {
	Enqueue(payload []byte) error
	Close()
}
