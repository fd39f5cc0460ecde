package embedcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
)

// WrapLruCacheToEmbedder keeps recent query vectors in process memory.
// Concurrent misses for the same key share one call to the next tier.
func WrapLruCacheToEmbedder(e ai.IEmbedder, size int, ttl time.Duration) ai.IEmbedder {
	if e == nil || size <= 0 || ttl <= 0 {
		return e
	}
	return &lruEmbedder{
		next:  e,
		cache: expirable.NewLRU[model.EmbeddingKey, []float32](size, nil, ttl),
	}
}

type lruEmbedder struct {
	next  ai.IEmbedder
	cache *expirable.LRU[model.EmbeddingKey, []float32]
	group singleflight.Group
}

func (l *lruEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	key := buildCacheKey(l.next.ModelName(), taskType, text)
	if cached, ok := l.cache.Get(key); ok {
		metrics.EmbeddingCacheHits.WithLabelValues(tierLRU).Inc()
		logutil.GetLogger(ctx).Debug("embedding cache hit", zap.String("tier", tierLRU), zap.String("task_type", taskType))
		return cloneEmbedding(cached), nil
	}
	v, err, shared := l.group.Do(key.String(), func() (interface{}, error) {
		res, err := l.next.Embed(ctx, text, taskType)
		if err != nil {
			return nil, err
		}
		if len(res) > 0 {
			l.cache.Add(key, cloneEmbedding(res))
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		logutil.GetLogger(ctx).Debug("embedding shared with concurrent caller", zap.String("task_type", taskType))
	}
	return cloneEmbedding(v.([]float32)), nil
}

func (l *lruEmbedder) ModelName() string {
	return l.next.ModelName()
}
