package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStorage struct {
	getErr error
	setErr error
	sets   int
}

func (f *failingStorage) Get(context.Context, string) (string, bool, error) {
	return "", false, f.getErr
}

func (f *failingStorage) Set(context.Context, string, string) error {
	f.sets++
	return f.setErr
}

func TestNewSessionID_Format(t *testing.T) {
	pattern := regexp.MustCompile(`^sess_[0-9a-f]{16}$`)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := NewSessionID()
		require.Regexp(t, pattern, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestSessionStore_StableAcrossCalls(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore(NewMemoryStorage())

	first := store.GetOrCreateSessionID(ctx)
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, store.GetOrCreateSessionID(ctx))
	}
}

func TestSessionStore_NoSessionUntilFirstUse(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryStorage()
	store := NewSessionStore(mem)

	_, ok := store.SessionID(ctx)
	assert.False(t, ok)
	_, ok, _ = mem.Get(ctx, SessionKey)
	assert.False(t, ok)

	id := store.GetOrCreateSessionID(ctx)

	stored, ok, err := mem.Get(ctx, SessionKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, id, stored)
}

func TestSessionStore_ReusesPersistedID(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profile", "storage.json")

	first := NewSessionStore(NewFileStorage(path)).GetOrCreateSessionID(ctx)

	// A fresh store over the same file behaves like a page reload.
	reloaded := NewSessionStore(NewFileStorage(path))
	id, ok := reloaded.SessionID(ctx)
	require.True(t, ok)
	assert.Equal(t, first, id)
	assert.Equal(t, first, reloaded.GetOrCreateSessionID(ctx))
}

func TestSessionStore_SetFailureDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	backend := &failingStorage{setErr: errors.New("quota exceeded")}
	store := NewSessionStore(backend)

	id := store.GetOrCreateSessionID(ctx)
	require.NotEmpty(t, id)
	assert.True(t, store.Degraded())
	assert.Equal(t, id, store.GetOrCreateSessionID(ctx))
	assert.Equal(t, 1, backend.sets)
}

func TestSessionStore_GetFailureDegradesToMemory(t *testing.T) {
	ctx := context.Background()
	backend := &failingStorage{getErr: ErrStorageUnavailable}
	store := NewSessionStore(backend)

	id := store.GetOrCreateSessionID(ctx)
	require.NotEmpty(t, id)
	assert.True(t, store.Degraded())
	assert.Zero(t, backend.sets, "no write after a failed read")
	assert.Equal(t, id, store.GetOrCreateSessionID(ctx))
}

func TestSessionStore_NilStorage(t *testing.T) {
	store := NewSessionStore(nil)
	id := store.GetOrCreateSessionID(context.Background())
	assert.Equal(t, id, store.GetOrCreateSessionID(context.Background()))
}

func TestFileStorage_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, _, err := NewFileStorage(path).Get(context.Background(), SessionKey)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	store := NewSessionStore(NewFileStorage(path))
	assert.NotEmpty(t, store.GetOrCreateSessionID(context.Background()))
	assert.True(t, store.Degraded())
}

func TestFileStorage_KeepsOtherKeys(t *testing.T) {
	ctx := context.Background()
	fs := NewFileStorage(filepath.Join(t.TempDir(), "storage.json"))

	require.NoError(t, fs.Set(ctx, "theme", "dark"))
	require.NoError(t, fs.Set(ctx, SessionKey, "sess_0011223344556677"))

	v, ok, err := fs.Get(ctx, "theme")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "dark", v)
}

func TestRedisStorage_UnreachableIsUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	rs := NewRedisStorage(client, "")

	_, _, err := rs.Get(context.Background(), SessionKey)
	require.ErrorIs(t, err, ErrStorageUnavailable)

	err = rs.Set(context.Background(), SessionKey, "sess_x")
	require.ErrorIs(t, err, ErrStorageUnavailable)

	store := NewSessionStore(rs)
	assert.NotEmpty(t, store.GetOrCreateSessionID(context.Background()))
	assert.True(t, store.Degraded())
}
