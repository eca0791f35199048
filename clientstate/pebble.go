package clientstate

import (
	"context"
	"errors"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/fxamacker/cbor/v2"
)

// PebbleBackend is a Backend over an embedded Pebble LSM tree, for a
// client that wants its per-object custom state to survive a process
// restart without depending on an external server.
type PebbleBackend[T any] struct {
	db     *pebble.DB
	mu     sync.RWMutex
	closed bool
	prefix []byte
}

// PebbleBackendConfig configures a PebbleBackend.
type PebbleBackendConfig struct {
	Path   string
	Prefix string // Optional prefix for keys (useful when sharing a DB)
	Opts   *pebble.Options
}

// NewPebbleBackend opens (or creates) the Pebble database at config.Path.
func NewPebbleBackend[T any](config PebbleBackendConfig) (*PebbleBackend[T], error) {
	opts := config.Opts
	if opts == nil {
		opts = &pebble.Options{
			ErrorIfExists: false,
		}
	}

	db, err := pebble.Open(config.Path, opts)
	if err != nil {
		return nil, err
	}

	prefix := []byte(config.Prefix)
	if len(prefix) == 0 {
		prefix = []byte("clientstate:")
	}

	return &PebbleBackend[T]{
		db:     db,
		prefix: prefix,
	}, nil
}

// objectKey prefixes object so multiple backends can share one DB.
func (p *PebbleBackend[T]) objectKey(object string) []byte {
	fullKey := make([]byte, len(p.prefix)+len(object))
	copy(fullKey, p.prefix)
	copy(fullKey[len(p.prefix):], object)
	return fullKey
}

// Save stores or overwrites the state recorded for object, CBOR-encoded.
func (p *PebbleBackend[T]) Save(ctx context.Context, object string, value T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrBackendClosed
	}
	p.mu.RUnlock()

	data, err := cbor.Marshal(value)
	if err != nil {
		return err
	}

	return p.db.Set(p.objectKey(object), data, pebble.Sync)
}

// Load retrieves the state recorded for object.
func (p *PebbleBackend[T]) Load(ctx context.Context, object string) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return zero, ErrBackendClosed
	}
	p.mu.RUnlock()

	data, closer, err := p.db.Get(p.objectKey(object))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return zero, ErrNotFound
		}
		return zero, err
	}
	defer closer.Close()

	var value T
	if err := cbor.Unmarshal(data, &value); err != nil {
		return zero, err
	}

	return value, nil
}

// Delete removes the state recorded for object.
func (p *PebbleBackend[T]) Delete(ctx context.Context, object string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrBackendClosed
	}
	p.mu.RUnlock()

	return p.db.Delete(p.objectKey(object), pebble.Sync)
}

// Close closes the underlying Pebble database.
func (p *PebbleBackend[T]) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrBackendClosed
	}

	p.closed = true
	return p.db.Close()
}
