package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/model"
)

type SearchParams struct {
	Embedding    []float32
	QueryText    string
	DocumentIDs  []string
	Limit        int
	VectorWeight float64
}

// SearchRow is one row returned by a RetrievalBackend. FTSScore is nil when
// the lexical path did not score the row.
type SearchRow struct {
	ID            string
	DocumentID    string
	Content       string
	PageNumber    int
	BoundingBox   *model.BoundingBox
	VectorScore   float64
	FTSScore      *float64
	CombinedScore float64
}

// RetrievalBackend runs a hybrid vector + lexical search. An empty QueryText
// asks for vector-only scoring. Rows come back ordered by CombinedScore,
// highest first.
type RetrievalBackend interface {
	Search(ctx context.Context, params SearchParams) ([]SearchRow, error)
}

func (r SearchRow) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("row id is empty")
	}
	if r.PageNumber < 0 {
		return fmt.Errorf("row %s: negative page number %d", r.ID, r.PageNumber)
	}
	if !finite(r.VectorScore) {
		return fmt.Errorf("row %s: vector score is not finite", r.ID)
	}
	if r.FTSScore != nil && !finite(*r.FTSScore) {
		return fmt.Errorf("row %s: fts score is not finite", r.ID)
	}
	return nil
}

type Retriever struct {
	backend RetrievalBackend
	cfg     Config
}

func NewRetriever(backend RetrievalBackend, cfg Config) *Retriever {
	return &Retriever{backend: backend, cfg: cfg.Normalized()}
}

type RetrieveInput struct {
	Embedding   []float32
	QueryText   string
	DocumentIDs []string
	Limit       int
}

// Retrieve returns chunks ordered by combined score. A failing lexical path
// degrades to vector-only scoring; a failing vector path is returned as an
// error.
func (r *Retriever) Retrieve(ctx context.Context, in RetrieveInput) ([]model.Chunk, error) {
	if len(in.Embedding) == 0 {
		return nil, fmt.Errorf("query embedding is empty")
	}
	if len(in.DocumentIDs) == 0 {
		return nil, fmt.Errorf("document scope is empty")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = r.cfg.CandidateLimit
	}
	logger := logutil.GetLogger(ctx).With(zap.Strings("document_ids", in.DocumentIDs), zap.Int("limit", limit))

	query := strings.TrimSpace(in.QueryText)
	weight := r.cfg.VectorWeight
	var rows []SearchRow
	var err error
	hybrid := false
	if query != "" && r.cfg.EnableLexical {
		rows, err = r.backend.Search(ctx, SearchParams{
			Embedding:    in.Embedding,
			QueryText:    query,
			DocumentIDs:  in.DocumentIDs,
			Limit:        limit,
			VectorWeight: weight,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("lexical search failed, falling back to vector only", zap.Error(err))
		} else {
			hybrid = true
		}
	}
	if !hybrid {
		weight = 1
		rows, err = r.backend.Search(ctx, SearchParams{
			Embedding:    in.Embedding,
			DocumentIDs:  in.DocumentIDs,
			Limit:        limit,
			VectorWeight: weight,
		})
		if err != nil {
			logger.Error("vector search failed", zap.Error(err))
			return nil, fmt.Errorf("vector search: %w", err)
		}
	}

	chunks := make([]model.Chunk, 0, len(rows))
	for _, row := range rows {
		if err := row.Validate(); err != nil {
			logger.Warn("drop invalid search row", zap.Error(err))
			continue
		}
		chunks = append(chunks, rowToChunk(row, weight))
	}
	SortByCombinedScore(chunks)
	if len(chunks) > limit {
		chunks = chunks[:limit]
	}
	logger.Debug("retrieval finished", zap.Int("chunks", len(chunks)), zap.Float64("vector_weight", weight))
	return chunks, nil
}

func rowToChunk(row SearchRow, weight float64) model.Chunk {
	c := model.Chunk{
		ID:          row.ID,
		DocumentID:  row.DocumentID,
		Content:     row.Content,
		PageNumber:  row.PageNumber,
		VectorScore: row.VectorScore,
	}
	if row.BoundingBox != nil {
		bbox := *row.BoundingBox
		c.BoundingBox = &bbox
	}
	if weight >= 1 {
		c.CombinedScore = row.VectorScore
		return c
	}
	// rows without a lexical match contribute nothing on the lexical side
	fts := 0.0
	if row.FTSScore != nil {
		fts = *row.FTSScore
		c.FTSScore = &fts
	}
	c.CombinedScore = FuseScores(row.VectorScore, fts, weight)
	return c
}

// SortByCombinedScore orders chunks by combined score, highest first. Ties
// keep their incoming order.
func SortByCombinedScore(chunks []model.Chunk) {
	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].CombinedScore > chunks[j].CombinedScore
	})
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
