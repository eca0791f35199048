package clientstate

import "errors"

var (
	// ErrNotFound is returned by Load when no state is recorded for the
	// requested object. Delete is a no-op on a missing object.
	ErrNotFound = errors.New("clientstate: object not found")

	// ErrBackendClosed is returned by a backend once Close has been
	// called on it.
	ErrBackendClosed = errors.New("clientstate: backend is closed")
)
