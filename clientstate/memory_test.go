package clientstate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testState struct {
	Mood string
	Away bool
}

func TestMemoryBackend_Save(t *testing.T) {
	tests := []struct {
		name    string
		object  string
		value   testState
		wantErr bool
	}{
		{
			name:    "save new value",
			object:  "room",
			value:   testState{Mood: "happy"},
			wantErr: false,
		},
		{
			name:    "overwrite existing value",
			object:  "room",
			value:   testState{Mood: "sad"},
			wantErr: false,
		},
		{
			name:    "save with empty object name",
			object:  "",
			value:   testState{Mood: "neutral"},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend[testState]()
			defer backend.Close()

			err := backend.Save(context.Background(), tt.object, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMemoryBackend_SaveWithCanceledContext(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.Save(ctx, "room", testState{Mood: "happy"})
	assert.Error(t, err)
}

func TestMemoryBackend_SaveAfterClose(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	backend.Close()

	err := backend.Save(context.Background(), "room", testState{Mood: "happy"})
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestMemoryBackend_Load(t *testing.T) {
	tests := []struct {
		name      string
		setupData map[string]testState
		object    string
		want      testState
		wantErr   error
	}{
		{
			name:      "load existing value",
			setupData: map[string]testState{"room": {Mood: "happy"}},
			object:    "room",
			want:      testState{Mood: "happy"},
			wantErr:   nil,
		},
		{
			name:      "load non-existing object",
			setupData: map[string]testState{},
			object:    "lobby",
			want:      testState{},
			wantErr:   ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend[testState]()
			defer backend.Close()

			for k, v := range tt.setupData {
				require.NoError(t, backend.Save(context.Background(), k, v))
			}

			got, err := backend.Load(context.Background(), tt.object)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestMemoryBackend_LoadWithCanceledContext(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Load(ctx, "room")
	assert.Error(t, err)
}

func TestMemoryBackend_LoadAfterClose(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	backend.Close()

	_, err := backend.Load(context.Background(), "room")
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestMemoryBackend_Delete(t *testing.T) {
	tests := []struct {
		name      string
		setupData map[string]testState
		object    string
	}{
		{
			name:      "delete existing value",
			setupData: map[string]testState{"room": {Mood: "happy"}},
			object:    "room",
		},
		{
			name:      "delete non-existing object",
			setupData: map[string]testState{},
			object:    "lobby",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := NewMemoryBackend[testState]()
			defer backend.Close()

			for k, v := range tt.setupData {
				require.NoError(t, backend.Save(context.Background(), k, v))
			}

			require.NoError(t, backend.Delete(context.Background(), tt.object))

			_, err := backend.Load(context.Background(), tt.object)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemoryBackend_DeleteWithCanceledContext(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := backend.Delete(ctx, "room")
	assert.Error(t, err)
}

func TestMemoryBackend_DeleteAfterClose(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	backend.Close()

	err := backend.Delete(context.Background(), "room")
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestMemoryBackend_CloseIsNotIdempotent(t *testing.T) {
	backend := NewMemoryBackend[testState]()
	require.NoError(t, backend.Close())
	assert.ErrorIs(t, backend.Close(), ErrBackendClosed)
}
