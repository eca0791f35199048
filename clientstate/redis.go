package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend is a Backend over Redis, for deployments that keep
// per-object custom state in a shared store reachable from every
// client process rather than pinned to one machine.
type RedisBackend[T any] struct {
	client *redis.Client
	mu     sync.RWMutex
	closed bool
	ttl    time.Duration // Optional TTL for keys
	prefix string
}

// RedisBackendConfig configures a RedisBackend.
type RedisBackendConfig struct {
	Addr     string
	Password string
	DB       int
	Prefix   string        // Optional prefix for keys (e.g. "clientstate:")
	TTL      time.Duration // Optional: TTL for keys (0 = no TTL)
	Options  *redis.Options
}

// NewRedisBackend connects to Redis and verifies reachability with a
// Ping before returning.
func NewRedisBackend[T any](config RedisBackendConfig) (*RedisBackend[T], error) {
	var client *redis.Client

	if config.Options != nil {
		client = redis.NewClient(config.Options)
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:     config.Addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := config.Prefix
	if prefix == "" {
		prefix = "clientstate:"
	}

	return &RedisBackend[T]{
		client: client,
		ttl:    config.TTL,
		prefix: prefix,
	}, nil
}

// objectKey prefixes object with the configured namespace.
func (r *RedisBackend[T]) objectKey(object string) string {
	return r.prefix + object
}

// Save stores or overwrites the state recorded for object, JSON-encoded.
func (r *RedisBackend[T]) Save(ctx context.Context, object string, value T) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrBackendClosed
	}
	r.mu.RUnlock()

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	if err := r.client.Set(ctx, r.objectKey(object), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save value: %w", err)
	}

	return nil
}

// Load retrieves the state recorded for object.
func (r *RedisBackend[T]) Load(ctx context.Context, object string) (T, error) {
	var zero T
	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return zero, ErrBackendClosed
	}
	r.mu.RUnlock()

	data, err := r.client.Get(ctx, r.objectKey(object)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("failed to load value: %w", err)
	}

	var value T
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal value: %w", err)
	}

	return value, nil
}

// Delete removes the state recorded for object.
func (r *RedisBackend[T]) Delete(ctx context.Context, object string) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return ErrBackendClosed
	}
	r.mu.RUnlock()

	if err := r.client.Del(ctx, r.objectKey(object)).Err(); err != nil {
		return fmt.Errorf("failed to delete value: %w", err)
	}

	return nil
}

// Close closes the underlying Redis client.
func (r *RedisBackend[T]) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrBackendClosed
	}

	r.closed = true
	return r.client.Close()
}
