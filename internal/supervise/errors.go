package supervise

import "errors"

var (
	// ErrNotSupervised is returned when no supervisor is attached to a service.
	ErrNotSupervised = errors.New("service is not supervised")

	// ErrUnknownBackend is returned for an unrecognised backend name.
	ErrUnknownBackend = errors.New("unknown supervision backend")

	// ErrUnknownService is returned when the backend has no such service.
	ErrUnknownService = errors.New("unknown service")

	// ErrBusy is returned when the command queue of the exec backend is full.
	ErrBusy = errors.New("supervisor command queue full")

	// ErrClosed is returned after the backend has been closed.
	ErrClosed = errors.New("supervisor closed")
)
