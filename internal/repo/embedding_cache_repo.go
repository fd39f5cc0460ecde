package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

const embeddingCacheTable = "embedding_cache"

// EmbeddingCacheRepo is the durable tier of the query embedding cache.
type EmbeddingCacheRepo struct {
	db *sql.DB
}

func NewEmbeddingCacheRepo(db *sql.DB) *EmbeddingCacheRepo {
	return &EmbeddingCacheRepo{db: db}
}

// Lookup returns ErrNotFound when no vector is stored under key. A stored
// row with an empty vector counts as missing.
func (r *EmbeddingCacheRepo) Lookup(ctx context.Context, key model.EmbeddingKey) (*model.CachedEmbedding, error) {
	where := map[string]interface{}{
		"model_name":   key.ModelName,
		"task_type":    key.TaskType,
		"content_hash": key.ContentHash,
		"_limit":       []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect(embeddingCacheTable, where, []string{"embedding", "ctime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var (
		vec  pgvector.Vector
		item = &model.CachedEmbedding{EmbeddingKey: key}
	)
	if err := r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&vec, &item.Ctime); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErr.ErrNotFound
		}
		return nil, fmt.Errorf("lookup embedding %s: %w", key.String(), err)
	}
	item.Vector = vec.Slice()
	if len(item.Vector) == 0 {
		return nil, appErr.ErrNotFound
	}
	return item, nil
}

// Upsert stores item, replacing the vector and refreshing ctime when the key
// already exists so the cleanup job measures age from the last write.
func (r *EmbeddingCacheRepo) Upsert(ctx context.Context, item *model.CachedEmbedding) error {
	if len(item.Vector) == 0 {
		return fmt.Errorf("empty embedding for %s: %w", item.String(), appErr.ErrInvalid)
	}
	const query = `
		INSERT INTO embedding_cache (model_name, task_type, content_hash, embedding, ctime)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (model_name, task_type, content_hash) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			ctime = GREATEST(embedding_cache.ctime, EXCLUDED.ctime)
	`
	if _, err := r.db.ExecContext(ctx, query,
		item.ModelName, item.TaskType, item.ContentHash,
		pgvector.NewVector(item.Vector), item.Ctime); err != nil {
		return fmt.Errorf("save embedding %s: %w", item.String(), err)
	}
	return nil
}

// DeleteBefore removes entries written before cutoff (unix millis) and
// reports how many went.
func (r *EmbeddingCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete(embeddingCacheTable, map[string]interface{}{"ctime <": cutoff})
	if err != nil {
		return 0, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, fmt.Errorf("delete embeddings before %d: %w", cutoff, err)
	}
	return res.RowsAffected()
}
