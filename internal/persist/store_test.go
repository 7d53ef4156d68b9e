package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruvnet/tokenfield/internal/errors"
)

func testStoreRoundtrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	snap := &Snapshot{Blob: []byte("blob-bytes"), Log: []byte(`{"actions":[]}`)}
	require.NoError(t, store.SaveSnapshot(ctx, "session-1", snap))
	require.NoError(t, store.SaveSnapshot(ctx, "session-2", &Snapshot{Blob: []byte("other")}))

	loaded, err := store.LoadSnapshot(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, snap.Blob, loaded.Blob)
	assert.Equal(t, snap.Log, loaded.Log)

	// Blob-only sessions carry no sidecar log.
	loaded, err = store.LoadSnapshot(ctx, "session-2")
	require.NoError(t, err)
	assert.Nil(t, loaded.Log)

	sessions, err := store.ListSessions(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"session-1", "session-2"}, sessions)

	require.NoError(t, store.Delete(ctx, "session-1"))
	_, err = store.LoadSnapshot(ctx, "session-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CorruptDocument))
}

func TestMemoryStore_Roundtrip(t *testing.T) {
	store := NewMemoryStore()
	defer store.Close()
	testStoreRoundtrip(t, store)
}

func TestFileStore_Roundtrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	testStoreRoundtrip(t, store)
}

func TestFileStore_MissingSession(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LoadSnapshot(context.Background(), "ghost")
	require.Error(t, err)
}
