package rag

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
)

const (
	fallbackReasonUnconfigured = "unconfigured"
	fallbackReasonTimeout      = "timeout"
	fallbackReasonError        = "error"
	fallbackReasonMalformed    = "malformed"
)

// Reranker rescores candidates with a cross-encoder. It never fails: any
// provider problem degrades to the combined-score order.
type Reranker struct {
	provider ai.IReranker
	timeout  time.Duration
}

func NewReranker(provider ai.IReranker, cfg Config) *Reranker {
	cfg = cfg.Normalized()
	return &Reranker{provider: provider, timeout: cfg.RerankTimeout}
}

func (r *Reranker) Rerank(ctx context.Context, query string, candidates []model.Chunk, topN int) []model.Chunk {
	if topN <= 0 || len(candidates) <= topN {
		return cloneChunks(candidates)
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("candidates", len(candidates)), zap.Int("top_n", topN))
	if r == nil || r.provider == nil {
		metrics.RerankFallbackTotal.WithLabelValues(fallbackReasonUnconfigured).Inc()
		return Fallback(candidates, topN)
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Content
	}
	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	start := time.Now()
	results, err := r.provider.Rerank(rctx, query, docs, topN)
	metrics.RerankDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		reason := fallbackReasonError
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ai.ErrTimeout) || rctx.Err() != nil {
			reason = fallbackReasonTimeout
		}
		metrics.RerankFallbackTotal.WithLabelValues(reason).Inc()
		logger.Warn("rerank failed, using combined score order", zap.String("reason", reason), zap.Error(err))
		return Fallback(candidates, topN)
	}
	if err := validateRerankResults(results, len(candidates)); err != nil {
		metrics.RerankFallbackTotal.WithLabelValues(fallbackReasonMalformed).Inc()
		logger.Warn("rerank response rejected, using combined score order", zap.Error(err))
		return Fallback(candidates, topN)
	}

	out := make([]model.Chunk, 0, len(results))
	for _, res := range results {
		c := cloneChunk(candidates[res.Index])
		score := res.RelevanceScore
		c.RerankerScore = &score
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return *out[i].RerankerScore > *out[j].RerankerScore
	})
	if len(out) > topN {
		out = out[:topN]
	}
	return out
}

func validateRerankResults(results []ai.RerankResult, n int) error {
	if len(results) == 0 {
		return fmt.Errorf("empty rerank result")
	}
	seen := make(map[int]struct{}, len(results))
	for _, res := range results {
		if res.Index < 0 || res.Index >= n {
			return fmt.Errorf("rerank index %d out of range [0,%d)", res.Index, n)
		}
		if _, ok := seen[res.Index]; ok {
			return fmt.Errorf("duplicate rerank index %d", res.Index)
		}
		if !finite(res.RelevanceScore) {
			return fmt.Errorf("rerank index %d: score is not finite", res.Index)
		}
		seen[res.Index] = struct{}{}
	}
	return nil
}

// Fallback returns the first topN chunks ordered by combined score. The
// result depends only on the input.
func Fallback(candidates []model.Chunk, topN int) []model.Chunk {
	out := cloneChunks(candidates)
	SortByCombinedScore(out)
	if topN >= 0 && len(out) > topN {
		out = out[:topN]
	}
	return out
}

func cloneChunk(c model.Chunk) model.Chunk {
	if c.BoundingBox != nil {
		bbox := *c.BoundingBox
		c.BoundingBox = &bbox
	}
	if c.FTSScore != nil {
		v := *c.FTSScore
		c.FTSScore = &v
	}
	if c.RerankerScore != nil {
		v := *c.RerankerScore
		c.RerankerScore = &v
	}
	return c
}

func cloneChunks(in []model.Chunk) []model.Chunk {
	out := make([]model.Chunk, len(in))
	for i, c := range in {
		out[i] = cloneChunk(c)
	}
	return out
}
