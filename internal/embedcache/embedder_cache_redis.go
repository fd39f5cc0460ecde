package embedcache

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
)

const redisKeyPrefix = "docqa:"

// WrapRedisCacheToEmbedder shares query vectors between service instances.
// Redis errors never fail the call.
func WrapRedisCacheToEmbedder(e ai.IEmbedder, rdb redis.Cmdable, ttl time.Duration) ai.IEmbedder {
	if e == nil || rdb == nil || ttl <= 0 {
		return e
	}
	return &redisEmbedder{next: e, rdb: rdb, ttl: ttl}
}

type redisEmbedder struct {
	next ai.IEmbedder
	rdb  redis.Cmdable
	ttl  time.Duration
}

func (r *redisEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	logger := logutil.GetLogger(ctx)
	key := redisKeyPrefix + buildCacheKey(r.next.ModelName(), taskType, text).String()
	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		values, derr := decodeVector(raw)
		if derr == nil {
			metrics.EmbeddingCacheHits.WithLabelValues(tierRedis).Inc()
			logger.Debug("embedding cache hit", zap.String("tier", tierRedis), zap.String("task_type", taskType))
			return values, nil
		}
		logger.Warn("drop corrupt embedding cache entry", zap.String("key", key), zap.Error(derr))
	case !errors.Is(err, redis.Nil):
		logger.Warn("read embedding cache failed", zap.String("tier", tierRedis), zap.Error(err))
	}
	res, err := r.next.Embed(ctx, text, taskType)
	if err != nil {
		return nil, err
	}
	if err := r.rdb.Set(ctx, key, encodeVector(res), r.ttl).Err(); err != nil {
		logger.Warn("failed to cache embedding", zap.String("tier", tierRedis), zap.Error(err))
	}
	return res, nil
}

func (r *redisEmbedder) ModelName() string {
	return r.next.ModelName()
}

// encodeVector packs the vector as little-endian float32 values.
func encodeVector(values []float32) []byte {
	buf := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf) == 0 || len(buf)%4 != 0 {
		return nil, fmt.Errorf("invalid vector payload length %d", len(buf))
	}
	out := make([]float32, len(buf)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return out, nil
}
