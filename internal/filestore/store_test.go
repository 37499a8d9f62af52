package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/insightai/internal/config"
	"github.com/xxxsen/insightai/internal/model"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
)

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestLocalStore_SaveOpenNestedKey(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}}, Deps{})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "faiss_index/index.json.gz", NewBytesReader([]byte("v1")), 2))
	require.NoError(t, store.Save(ctx, "faiss_index/index.json.gz", NewBytesReader([]byte("v2")), 2))

	rc, err := store.Open(ctx, "faiss_index/index.json.gz")
	require.NoError(t, err)
	require.Equal(t, "v2", readAll(t, rc))

	entries, err := os.ReadDir(filepath.Join(dir, "faiss_index"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestLocalStore_MissingKey(t *testing.T) {
	store, err := createLocalStore(map[string]interface{}{"dir": t.TempDir()}, Deps{})
	require.NoError(t, err)
	_, err = store.Open(context.Background(), "nope")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestNormalizeKey(t *testing.T) {
	key, err := normalizeKey("/a\\b/c.gz")
	require.NoError(t, err)
	require.Equal(t, "a/b/c.gz", key)

	for _, bad := range []string{"", "  ", "../x", "a/../../x", "a//b"} {
		_, err := normalizeKey(bad)
		require.Error(t, err, bad)
	}
}

type memBlobs struct {
	items map[string]*model.IndexBlob
}

func (m *memBlobs) Put(ctx context.Context, blob *model.IndexBlob) error {
	m.items[blob.Key] = blob
	return nil
}

func (m *memBlobs) Get(ctx context.Context, key string) (*model.IndexBlob, error) {
	blob, ok := m.items[key]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return blob, nil
}

func TestPostgresStore(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "postgres"}, Deps{})
	require.Error(t, err)

	blobs := &memBlobs{items: map[string]*model.IndexBlob{}}
	store, err := New(config.FileStoreConfig{Type: "postgres"}, Deps{Blobs: blobs})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "/idx", NewBytesReader([]byte("payload")), 7))
	require.Contains(t, blobs.items, "idx")

	rc, err := store.Open(ctx, "idx")
	require.NoError(t, err)
	require.Equal(t, "payload", readAll(t, rc))

	_, err = store.Open(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestNew_UnsupportedType(t *testing.T) {
	_, err := New(config.FileStoreConfig{Type: "ftp"}, Deps{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{}, Deps{})
	require.Error(t, err)
}
