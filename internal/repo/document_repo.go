package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
)

var documentFields = []string{"id", "user_id", "project_id", "name", "status", "facts", "ctime", "mtime"}

// DocumentRepo reads the documents the pipeline may answer from. Only
// documents in the ready state are ever returned.
type DocumentRepo struct {
	db *sql.DB
}

func NewDocumentRepo(db *sql.DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) ListReadyByIDs(ctx context.Context, userID string, ids []string) ([]model.Document, error) {
	if len(ids) == 0 {
		return []model.Document{}, nil
	}
	in := make([]interface{}, 0, len(ids))
	for _, id := range ids {
		in = append(in, id)
	}
	where := map[string]interface{}{
		"user_id":  userID,
		"status":   model.DocumentStatusReady,
		"id in":    in,
		"_orderby": "ctime asc",
	}
	return r.list(ctx, where)
}

func (r *DocumentRepo) ListReadyByProject(ctx context.Context, userID, projectID string) ([]model.Document, error) {
	where := map[string]interface{}{
		"user_id":    userID,
		"project_id": projectID,
		"status":     model.DocumentStatusReady,
		"_orderby":   "ctime asc",
	}
	return r.list(ctx, where)
}

func (r *DocumentRepo) ListReadyByConversation(ctx context.Context, conversationID string) ([]model.Document, error) {
	const query = `
		SELECT d.id, d.user_id, d.project_id, d.name, d.status, d.facts, d.ctime, d.mtime
		FROM documents d
		JOIN conversation_documents cd ON cd.document_id = d.id
		WHERE cd.conversation_id = $1 AND d.status = $2
		ORDER BY d.ctime ASC
	`
	rows, err := r.db.QueryContext(ctx, query, conversationID, model.DocumentStatusReady)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanDocuments(rows)
}

func (r *DocumentRepo) list(ctx context.Context, where map[string]interface{}) ([]model.Document, error) {
	sqlStr, args, err := builder.BuildSelect("documents", where, documentFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	return scanDocuments(rows)
}

func scanDocuments(rows *sql.Rows) ([]model.Document, error) {
	docs := make([]model.Document, 0)
	for rows.Next() {
		var (
			doc   model.Document
			facts []byte
		)
		if err := rows.Scan(&doc.ID, &doc.UserID, &doc.ProjectID, &doc.Name, &doc.Status, &facts, &doc.Ctime, &doc.Mtime); err != nil {
			return nil, err
		}
		if len(facts) > 0 && string(facts) != "null" {
			if err := json.Unmarshal(facts, &doc.Facts); err != nil {
				return nil, fmt.Errorf("document %s: decode facts: %w", doc.ID, err)
			}
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}
