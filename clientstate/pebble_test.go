package clientstate

import (
	"context"
	"testing"

	"github.com/cockroachdb/pebble"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPebbleBackend(t *testing.T) {
	tests := []struct {
		name   string
		config PebbleBackendConfig
	}{
		{
			name: "create with default options",
			config: PebbleBackendConfig{
				Path:   t.TempDir(),
				Prefix: "test:",
			},
		},
		{
			name: "create with custom options",
			config: PebbleBackendConfig{
				Path:   t.TempDir(),
				Prefix: "custom:",
				Opts:   &pebble.Options{ErrorIfExists: false},
			},
		},
		{
			name: "create with empty prefix",
			config: PebbleBackendConfig{
				Path: t.TempDir(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewPebbleBackend[testState](tt.config)
			require.NoError(t, err)
			require.NotNil(t, backend)
			backend.Close()
		})
	}
}

func TestNewPebbleBackend_InvalidPath(t *testing.T) {
	config := PebbleBackendConfig{
		Path:   "/invalid/path/that/does/not/exist/and/cannot/be/created",
		Prefix: "test:",
	}

	_, err := NewPebbleBackend[testState](config)
	assert.Error(t, err)
}

func TestNewPebbleBackend_ErrorIfExists(t *testing.T) {
	tmpDir := t.TempDir()

	backend1, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   tmpDir,
		Prefix: "test:",
	})
	require.NoError(t, err)
	backend1.Close()

	_, err = NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   tmpDir,
		Prefix: "test:",
		Opts:   &pebble.Options{ErrorIfExists: true},
	})
	assert.Error(t, err)
}

func TestPebbleBackend_Save(t *testing.T) {
	tests := []struct {
		name   string
		object string
		value  testState
	}{
		{name: "save new value", object: "room", value: testState{Mood: "happy"}},
		{name: "overwrite existing value", object: "room", value: testState{Mood: "sad"}},
		{name: "save with empty object name", object: "", value: testState{Mood: "neutral"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
				Path:   t.TempDir(),
				Prefix: "test:",
			})
			require.NoError(t, err)
			defer backend.Close()

			assert.NoError(t, backend.Save(context.Background(), tt.object, tt.value))
		})
	}
}

func TestPebbleBackend_SaveInvalidValue(t *testing.T) {
	backend, err := NewPebbleBackend[chan int](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	defer backend.Close()

	ch := make(chan int)
	err = backend.Save(context.Background(), "room", ch)
	assert.Error(t, err)
}

func TestPebbleBackend_SaveWithCanceledContext(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = backend.Save(ctx, "room", testState{Mood: "happy"})
	assert.Error(t, err)
}

func TestPebbleBackend_SaveAfterClose(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	backend.Close()

	err = backend.Save(context.Background(), "room", testState{Mood: "happy"})
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestPebbleBackend_Load(t *testing.T) {
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
			backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
				Path:   t.TempDir(),
				Prefix: "test:",
			})
			require.NoError(t, err)
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

func TestPebbleBackend_LoadCorruptedData(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	defer backend.Close()

	fullKey := backend.objectKey("corrupt")
	err = backend.db.Set(fullKey, []byte("invalid cbor data"), pebble.Sync)
	require.NoError(t, err)

	_, err = backend.Load(context.Background(), "corrupt")
	assert.Error(t, err)
}

func TestPebbleBackend_LoadWithCanceledContext(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = backend.Load(ctx, "room")
	assert.Error(t, err)
}

func TestPebbleBackend_LoadAfterClose(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	backend.Close()

	_, err = backend.Load(context.Background(), "room")
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestPebbleBackend_Delete(t *testing.T) {
	tests := []struct {
		name      string
		setupData map[string]testState
		object    string
	}{
		{name: "delete existing value", setupData: map[string]testState{"room": {Mood: "happy"}}, object: "room"},
		{name: "delete non-existing object", setupData: map[string]testState{}, object: "lobby"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
				Path:   t.TempDir(),
				Prefix: "test:",
			})
			require.NoError(t, err)
			defer backend.Close()

			for k, v := range tt.setupData {
				require.NoError(t, backend.Save(context.Background(), k, v))
			}

			require.NoError(t, backend.Delete(context.Background(), tt.object))

			_, err = backend.Load(context.Background(), tt.object)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPebbleBackend_DeleteWithCanceledContext(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	defer backend.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = backend.Delete(ctx, "room")
	assert.Error(t, err)
}

func TestPebbleBackend_DeleteAfterClose(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	backend.Close()

	err = backend.Delete(context.Background(), "room")
	assert.ErrorIs(t, err, ErrBackendClosed)
}

func TestPebbleBackend_CloseIsNotIdempotent(t *testing.T) {
	backend, err := NewPebbleBackend[testState](PebbleBackendConfig{
		Path:   t.TempDir(),
		Prefix: "test:",
	})
	require.NoError(t, err)
	require.NoError(t, backend.Close())
	assert.ErrorIs(t, backend.Close(), ErrBackendClosed)
}

func TestPebbleBackend_PrefixIsolation(t *testing.T) {
	dir := t.TempDir()

	a, err := NewPebbleBackend[testState](PebbleBackendConfig{Path: dir, Prefix: "a:"})
	require.NoError(t, err)
	defer a.Close()

	require.NoError(t, a.Save(context.Background(), "room", testState{Mood: "happy"}))

	got, err := a.Load(context.Background(), "room")
	require.NoError(t, err)
	assert.Equal(t, testState{Mood: "happy"}, got)

	b := &PebbleBackend[testState]{db: a.db, prefix: []byte("b:")}
	_, err = b.Load(context.Background(), "room")
	assert.ErrorIs(t, err, ErrNotFound, "a backend with another prefix must not see this prefix's keys")
}
