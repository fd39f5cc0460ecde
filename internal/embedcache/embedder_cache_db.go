package embedcache

import (
	"context"
	"errors"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/timeutil"
)

// Store is the durable embedding cache, backed by repo.EmbeddingCacheRepo.
// Lookup reports a miss with ErrNotFound.
type Store interface {
	Lookup(ctx context.Context, key model.EmbeddingKey) (*model.CachedEmbedding, error)
	Upsert(ctx context.Context, item *model.CachedEmbedding) error
}

func WrapDBCacheToEmbedder(e ai.IEmbedder, store Store) ai.IEmbedder {
	if e == nil || store == nil {
		return e
	}
	return &dbEmbedder{next: e, store: store}
}

type dbEmbedder struct {
	next  ai.IEmbedder
	store Store
}

// Embed reads through the store. Store failures are logged and the
// provider is asked instead.
func (d *dbEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	logger := logutil.GetLogger(ctx)
	key := buildCacheKey(d.next.ModelName(), taskType, text)
	item, err := d.store.Lookup(ctx, key)
	switch {
	case err == nil:
		metrics.EmbeddingCacheHits.WithLabelValues(tierDB).Inc()
		logger.Debug("embedding cache hit", zap.String("tier", tierDB), zap.String("task_type", taskType))
		return item.Vector, nil
	case !errors.Is(err, appErr.ErrNotFound):
		logger.Warn("read embedding cache failed", zap.String("tier", tierDB), zap.Error(err))
	}
	res, err := d.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if len(res) == 0 {
		return res, nil
	}
	if err := d.store.Upsert(ctx, &model.CachedEmbedding{
		EmbeddingKey: key,
		Vector:       res,
		Ctime:        timeutil.NowUnixMilli(),
	}); err != nil {
		logger.Warn("failed to cache embedding", zap.String("tier", tierDB), zap.Error(err))
	}
	return res, nil
}

func (d *dbEmbedder) ModelName() string {
	return d.next.ModelName()
}
