package clientstate

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetAndMerge(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend[json.RawMessage]())

	require.NoError(t, s.Set(ctx, "room", json.RawMessage(`{"mood":"happy"}`)))

	merged, err := s.Merge(ctx, json.RawMessage(`{"color":"blue"}`), "room")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(merged["room"], &got))
	assert.Equal(t, "happy", got["mood"])
	assert.Equal(t, "blue", got["color"])
}

func TestMerge_OverwritesExistingKeys(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend[json.RawMessage]())

	require.NoError(t, s.Set(ctx, "room", json.RawMessage(`{"mood":"happy"}`)))
	merged, err := s.Merge(ctx, json.RawMessage(`{"mood":"sad"}`), "room")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(merged["room"], &got))
	assert.Equal(t, "sad", got["mood"])
}

func TestStateMergedWith_DoesNotPersist(t *testing.T) {
	ctx := context.Background()
	backing := NewMemoryBackend[json.RawMessage]()
	s := New(backing)

	_, err := s.StateMergedWith(ctx, json.RawMessage(`{"mood":"happy"}`), "room")
	require.NoError(t, err)

	_, err = backing.Load(ctx, "room")
	assert.ErrorIs(t, err, ErrNotFound, "StateMergedWith must be a read-only preview")
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend[json.RawMessage]())

	require.NoError(t, s.Set(ctx, "room", json.RawMessage(`{"a":1}`)))
	require.NoError(t, s.Remove(ctx, "room", "nonexistent"))

	_, err := s.StateMergedWith(ctx, nil, "room")
	require.NoError(t, err)
}

func TestMerge_MultipleObjects(t *testing.T) {
	ctx := context.Background()
	s := New(NewMemoryBackend[json.RawMessage]())

	merged, err := s.Merge(ctx, json.RawMessage(`{"x":1}`), "a", "b")
	require.NoError(t, err)
	assert.Len(t, merged, 2)
	assert.Contains(t, merged, "a")
	assert.Contains(t, merged, "b")
}
