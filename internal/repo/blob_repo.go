package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/insightai/internal/model"
	"github.com/xxxsen/insightai/internal/pkg/dbutil"
	appErr "github.com/xxxsen/insightai/internal/pkg/errors"
)

// BlobRepo stores serialized index generations in postgres.
type BlobRepo struct {
	db *sql.DB
}

func NewBlobRepo(db *sql.DB) *BlobRepo {
	return &BlobRepo{db: db}
}

func (r *BlobRepo) Put(ctx context.Context, blob *model.IndexBlob) error {
	const query = `
		INSERT INTO index_blobs (key, data, mtime)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			mtime = EXCLUDED.mtime
	`
	_, err := r.db.ExecContext(ctx, query, blob.Key, blob.Data, blob.Mtime)
	return err
}

func (r *BlobRepo) Get(ctx context.Context, key string) (*model.IndexBlob, error) {
	where := map[string]interface{}{"key": key, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect("index_blobs", where, []string{"key", "data", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var blob model.IndexBlob
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&blob.Key, &blob.Data, &blob.Mtime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &blob, nil
}

func (r *BlobRepo) Delete(ctx context.Context, key string) error {
	sqlStr, args, err := builder.BuildDelete("index_blobs", map[string]interface{}{"key": key})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
