package filestore

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	store, err := createLocalStore(map[string]interface{}{"dir": t.TempDir()})
	require.NoError(t, err)
	return store
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.Save(ctx, "doc.txt", strings.NewReader("hello"), 5)
	require.NoError(t, err)

	rc, err := store.Open(ctx, "doc.txt")
	require.NoError(t, err)
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	require.NoError(t, store.Delete(ctx, "doc.txt"))
	_, err = store.Open(ctx, "doc.txt")
	require.Error(t, err)
}

func TestLocalStoreRejectsPathKeys(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	for _, key := range []string{"../escape", "a/b", "", "a\\b"} {
		err := store.Save(ctx, key, strings.NewReader("x"), 1)
		require.Error(t, err, "key %q", key)
	}
}

func TestLocalStoreDeleteMissing(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.Delete(context.Background(), "never-there.bin"))
}

func TestLocalStoreRequiresDir(t *testing.T) {
	_, err := createLocalStore(map[string]interface{}{})
	require.Error(t, err)
}
