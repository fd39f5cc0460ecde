package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
)

type ChunkRetriever interface {
	Retrieve(ctx context.Context, in RetrieveInput) ([]model.Chunk, error)
}

// Aggregator answers one query across several documents: a retrieval per
// document, one merged candidate list, one rerank pass.
type Aggregator struct {
	retriever ChunkRetriever
	reranker  *Reranker
	cfg       Config
}

func NewAggregator(retriever ChunkRetriever, reranker *Reranker, cfg Config) *Aggregator {
	return &Aggregator{retriever: retriever, reranker: reranker, cfg: cfg.Normalized()}
}

type AggregateInput struct {
	Query     string
	Embedding []float32
	Documents []model.Document
}

// Retrieve returns reranked chunks tagged with the document they came from.
// A document whose retrieval fails is left out; the call fails only when
// every document failed.
func (a *Aggregator) Retrieve(ctx context.Context, in AggregateInput) ([]model.Chunk, error) {
	if len(in.Documents) == 0 {
		return nil, fmt.Errorf("no documents to aggregate")
	}
	logger := logutil.GetLogger(ctx).With(zap.Int("documents", len(in.Documents)))

	results := make([][]model.Chunk, len(in.Documents))
	errs := make([]error, len(in.Documents))
	var g errgroup.Group
	g.SetLimit(a.cfg.MaxParallel)
	for i, doc := range in.Documents {
		g.Go(func() error {
			chunks, err := a.retriever.Retrieve(ctx, RetrieveInput{
				Embedding:   in.Embedding,
				QueryText:   in.Query,
				DocumentIDs: []string{doc.ID},
				Limit:       a.cfg.PerDocumentLimit,
			})
			if err != nil {
				errs[i] = fmt.Errorf("document %s: %w", doc.ID, err)
				return nil
			}
			results[i] = chunks
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, err := range errs {
		if err == nil {
			continue
		}
		failed++
		metrics.DocumentRetrievalFailures.Inc()
		logger.Warn("document retrieval failed, excluding document",
			zap.String("document_id", in.Documents[i].ID), zap.Error(err))
	}
	if failed == len(in.Documents) {
		return nil, fmt.Errorf("all %d document retrievals failed: %w", failed, errors.Join(errs...))
	}

	merged := mergeTagged(in.Documents, results)
	SortByCombinedScore(merged)
	if len(merged) > a.cfg.MergeCap {
		merged = merged[:a.cfg.MergeCap]
	}
	byID := make(map[string]model.Chunk, len(merged))
	for _, c := range merged {
		byID[c.ID] = c
	}

	reranked := a.reranker.Rerank(ctx, in.Query, merged, a.cfg.RerankTopN)
	out := make([]model.Chunk, 0, len(reranked))
	for _, c := range reranked {
		tagged, ok := byID[c.ID]
		if !ok {
			logger.Warn("drop reranked chunk without provenance", zap.String("chunk_id", c.ID))
			continue
		}
		c.DocumentID = tagged.DocumentID
		c.DocumentName = tagged.DocumentName
		out = append(out, c)
	}
	logger.Debug("aggregation finished", zap.Int("failed", failed), zap.Int("merged", len(merged)), zap.Int("chunks", len(out)))
	return out, nil
}

// mergeTagged flattens per-document results in document order, stamping
// each chunk with its document. A chunk id seen twice keeps the copy with
// the higher combined score.
func mergeTagged(docs []model.Document, results [][]model.Chunk) []model.Chunk {
	merged := make([]model.Chunk, 0)
	pos := make(map[string]int)
	for i, chunks := range results {
		for _, c := range chunks {
			c = cloneChunk(c)
			c.DocumentID = docs[i].ID
			c.DocumentName = docs[i].Name
			if at, ok := pos[c.ID]; ok {
				if c.CombinedScore > merged[at].CombinedScore {
					merged[at] = c
				}
				continue
			}
			pos[c.ID] = len(merged)
			merged = append(merged, c)
		}
	}
	return merged
}
