package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/rag"
)

// hybridSearchQuery scores every chunk of the scoped ready documents by
// cosine similarity and, when the chunk matches the query terms, by
// normalised cover density rank. fts_score is NULL for chunks without a
// lexical match.
const hybridSearchQuery = `
	SELECT id, document_id, content, page_number, bbox, vector_score, fts_score,
		$4::float8 * vector_score + (1 - $4::float8) * COALESCE(fts_score, 0) AS combined_score
	FROM (
		SELECT c.id, c.document_id, c.content, c.page_number, c.bbox, c.chunk_index,
			1 - (c.embedding <=> $1) AS vector_score,
			CASE WHEN c.tsv @@ plainto_tsquery('english', $2)
				THEN ts_rank_cd(c.tsv, plainto_tsquery('english', $2), 32)
			END AS fts_score
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE c.document_id = ANY($3) AND d.status = 'ready'
	) scored
	ORDER BY combined_score DESC, document_id, chunk_index
	LIMIT $5
`

const vectorSearchQuery = `
	SELECT c.id, c.document_id, c.content, c.page_number, c.bbox,
		1 - (c.embedding <=> $1) AS vector_score
	FROM document_chunks c
	JOIN documents d ON d.id = c.document_id
	WHERE c.document_id = ANY($2) AND d.status = 'ready'
	ORDER BY c.embedding <=> $1, c.document_id, c.chunk_index
	LIMIT $3
`

// ChunkSearchRepo is the Postgres RetrievalBackend: pgvector for the
// semantic side, a generated tsvector column for the lexical side.
type ChunkSearchRepo struct {
	db *sql.DB
}

func NewChunkSearchRepo(db *sql.DB) *ChunkSearchRepo {
	return &ChunkSearchRepo{db: db}
}

func (r *ChunkSearchRepo) Search(ctx context.Context, params rag.SearchParams) ([]rag.SearchRow, error) {
	if len(params.DocumentIDs) == 0 {
		return []rag.SearchRow{}, nil
	}
	vec := pgvector.NewVector(params.Embedding)
	if params.QueryText == "" {
		return r.vectorSearch(ctx, vec, params)
	}
	rows, err := r.db.QueryContext(ctx, hybridSearchQuery,
		vec, params.QueryText, pq.Array(params.DocumentIDs), params.VectorWeight, params.Limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	defer func() { _ = rows.Close() }()
	results := make([]rag.SearchRow, 0, params.Limit)
	for rows.Next() {
		var (
			row  rag.SearchRow
			bbox []byte
			fts  sql.NullFloat64
		)
		if err := rows.Scan(&row.ID, &row.DocumentID, &row.Content, &row.PageNumber, &bbox,
			&row.VectorScore, &fts, &row.CombinedScore); err != nil {
			return nil, err
		}
		if fts.Valid {
			v := fts.Float64
			row.FTSScore = &v
		}
		if row.BoundingBox, err = decodeBoundingBox(bbox); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", row.ID, err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func (r *ChunkSearchRepo) vectorSearch(ctx context.Context, vec pgvector.Vector, params rag.SearchParams) ([]rag.SearchRow, error) {
	rows, err := r.db.QueryContext(ctx, vectorSearchQuery, vec, pq.Array(params.DocumentIDs), params.Limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()
	results := make([]rag.SearchRow, 0, params.Limit)
	for rows.Next() {
		var (
			row  rag.SearchRow
			bbox []byte
		)
		if err := rows.Scan(&row.ID, &row.DocumentID, &row.Content, &row.PageNumber, &bbox, &row.VectorScore); err != nil {
			return nil, err
		}
		row.CombinedScore = row.VectorScore
		if row.BoundingBox, err = decodeBoundingBox(bbox); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", row.ID, err)
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

func decodeBoundingBox(raw []byte) (*model.BoundingBox, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var bbox model.BoundingBox
	if err := json.Unmarshal(raw, &bbox); err != nil {
		return nil, fmt.Errorf("decode bbox: %w", err)
	}
	return &bbox, nil
}
