// Package clientstate implements the subscribe engine's per-object
// client-state store: merge/set/remove over per-object state blobs,
// keyed by channel or channel-group name, backed by a pluggable
// Backend (memory, Redis, or Pebble).
package clientstate

import (
	"context"
	"encoding/json"
)

// Store merges and persists per-object custom presence state to serve
// the Request Builder's merged-state lookups and the Event Fan-out's
// self state-change writes.
type Store struct {
	backing Backend[json.RawMessage]
}

// New wraps backing as a client-state store.
func New(backing Backend[json.RawMessage]) *Store {
	return &Store{backing: backing}
}

// Set overwrites the state for object, invoked on a self-targeted
// state-change presence event.
func (s *Store) Set(ctx context.Context, object string, state json.RawMessage) error {
	return s.backing.Save(ctx, object, state)
}

// Remove deletes the state recorded for each of objects, invoked on
// unsubscribe. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, objects ...string) error {
	for _, obj := range objects {
		if err := s.backing.Delete(ctx, obj); err != nil && err != ErrNotFound {
			return err
		}
	}
	return nil
}

// Merge combines state (a JSON object) into whatever is already recorded
// for each of forObjects, field by field, and persists the result. It
// returns the merged view, one entry per object.
func (s *Store) Merge(ctx context.Context, state json.RawMessage, forObjects ...string) (map[string]json.RawMessage, error) {
	merged, err := s.StateMergedWith(ctx, state, forObjects...)
	if err != nil {
		return nil, err
	}
	for obj, value := range merged {
		if err := s.backing.Save(ctx, obj, value); err != nil {
			return nil, err
		}
	}
	return merged, nil
}

// StateMergedWith computes what Merge would persist without writing it,
// used by the Request Builder to assemble the `state` query parameter
// without mutating the store on every subscribe.
func (s *Store) StateMergedWith(ctx context.Context, state json.RawMessage, forObjects ...string) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(forObjects))
	var incoming map[string]json.RawMessage
	if len(state) > 0 {
		if err := json.Unmarshal(state, &incoming); err != nil {
			// Malformed incoming state is silently dropped rather than
			// propagated.
			incoming = nil
		}
	}

	for _, obj := range forObjects {
		existing, err := s.backing.Load(ctx, obj)
		if err != nil && err != ErrNotFound {
			return nil, err
		}

		current := map[string]json.RawMessage{}
		if len(existing) > 0 {
			_ = json.Unmarshal(existing, &current)
		}
		for k, v := range incoming {
			current[k] = v
		}

		encoded, err := json.Marshal(current)
		if err != nil {
			continue
		}
		out[obj] = encoded
	}
	return out, nil
}
