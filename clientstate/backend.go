package clientstate

import "context"

// Backend is the minimal persistence contract a client-state store needs
// underneath it: save, load, delete and close against per-object state
// blobs keyed by channel or channel-group name. Generic over T so the
// same backend shape can serve whichever payload type a caller stores
// its per-object custom state as.
type Backend[T any] interface {
	// Save stores or overwrites the state recorded for object.
	Save(ctx context.Context, object string, value T) error

	// Load retrieves the state recorded for object.
	Load(ctx context.Context, object string) (T, error)

	// Delete removes the state recorded for object.
	Delete(ctx context.Context, object string) error

	// Close releases whatever resources the backend holds.
	Close() error
}
