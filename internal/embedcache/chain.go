package embedcache

import (
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xxxsen/docqa/internal/ai"
)

type ChainConfig struct {
	LRUSize  int
	LRUTTL   time.Duration
	RedisTTL time.Duration
}

// Wrap puts the cache tiers in front of e, fastest first: LRU, Redis, then
// the durable store. A nil tier is skipped.
func Wrap(e ai.IEmbedder, rdb redis.Cmdable, store Store, cfg ChainConfig) ai.IEmbedder {
	if store != nil {
		e = WrapDBCacheToEmbedder(e, store)
	}
	if rdb != nil {
		e = WrapRedisCacheToEmbedder(e, rdb, cfg.RedisTTL)
	}
	return WrapLruCacheToEmbedder(e, cfg.LRUSize, cfg.LRUTTL)
}
