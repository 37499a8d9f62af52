package filestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xxxsen/insightai/internal/model"
)

// BlobRepo is satisfied by repo.BlobRepo.
type BlobRepo interface {
	Put(ctx context.Context, blob *model.IndexBlob) error
	Get(ctx context.Context, key string) (*model.IndexBlob, error)
}

type postgresStore struct {
	blobs BlobRepo
}

func init() {
	Register("postgres", createPostgresStore)
}

func createPostgresStore(_ interface{}, deps Deps) (Store, error) {
	if deps.Blobs == nil {
		return nil, fmt.Errorf("postgres store requires a database")
	}
	return &postgresStore{blobs: deps.Blobs}, nil
}

func (s *postgresStore) Type() string {
	return "postgres"
}

func (s *postgresStore) Save(ctx context.Context, key string, r ReadSeekCloser, size int64) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	return s.blobs.Put(ctx, &model.IndexBlob{
		Key:   key,
		Data:  data,
		Mtime: time.Now().Unix(),
	})
}

func (s *postgresStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	blob, err := s.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(blob.Data)), nil
}
