package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/dbutil"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
)

var messageFields = []string{"id", "conversation_id", "role", "content", "sources", "confidence", "ctime"}

// ConversationRepo stores conversations and their append-only messages.
type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// GetOrCreate inserts conv unless a conversation with the same id exists,
// then returns the stored row. created reports whether this call inserted
// it. documentIDs are linked only on creation. A conversation owned by
// another user yields ErrForbidden.
func (r *ConversationRepo) GetOrCreate(ctx context.Context, conv *model.Conversation, documentIDs []string) (*model.Conversation, bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer func() { _ = tx.Rollback() }()

	const insert = `
		INSERT INTO conversations (id, user_id, project_id, title, ctime, mtime)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
		RETURNING id
	`
	var id string
	created := true
	err = tx.QueryRowContext(ctx, insert, conv.ID, conv.UserID, conv.ProjectID, conv.Title, conv.Ctime, conv.Mtime).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		created = false
	} else if err != nil {
		return nil, false, fmt.Errorf("insert conversation: %w", err)
	}
	if created {
		for _, docID := range documentIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO conversation_documents (conversation_id, document_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				conv.ID, docID); err != nil {
				return nil, false, fmt.Errorf("link document %s: %w", docID, err)
			}
		}
	}

	stored, err := getConversation(ctx, tx, conv.ID)
	if err != nil {
		return nil, false, err
	}
	if stored.UserID != conv.UserID {
		return nil, false, appErr.ErrForbidden
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}
	return stored, created, nil
}

func (r *ConversationRepo) Get(ctx context.Context, userID, id string) (*model.Conversation, error) {
	conv, err := getConversation(ctx, r.db, id)
	if err != nil {
		return nil, err
	}
	if conv.UserID != userID {
		return nil, appErr.ErrNotFound
	}
	return conv, nil
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getConversation(ctx context.Context, q queryRower, id string) (*model.Conversation, error) {
	const query = `SELECT id, user_id, project_id, title, ctime, mtime FROM conversations WHERE id = $1`
	var conv model.Conversation
	err := q.QueryRowContext(ctx, query, id).Scan(&conv.ID, &conv.UserID, &conv.ProjectID, &conv.Title, &conv.Ctime, &conv.Mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// AppendMessage inserts msg and bumps the conversation mtime in one
// transaction.
func (r *ConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	var sources []byte
	if len(msg.Sources) > 0 {
		raw, err := json.Marshal(msg.Sources)
		if err != nil {
			return fmt.Errorf("encode sources: %w", err)
		}
		sources = raw
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	data := map[string]interface{}{
		"id":              msg.ID,
		"conversation_id": msg.ConversationID,
		"role":            msg.Role,
		"content":         msg.Content,
		"sources":         sources,
		"confidence":      string(msg.Confidence),
		"ctime":           msg.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("conversation_messages", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := tx.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return fmt.Errorf("message %s already stored: %w", msg.ID, appErr.ErrInvalid)
		}
		return fmt.Errorf("insert message: %w", err)
	}
	res, err := tx.ExecContext(ctx, `UPDATE conversations SET mtime = GREATEST(mtime, $1) WHERE id = $2`, msg.Ctime, msg.ConversationID)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return tx.Commit()
}

// ListRecent returns the newest n messages in chronological order.
func (r *ConversationRepo) ListRecent(ctx context.Context, conversationID string, n int) ([]model.Message, error) {
	if n <= 0 {
		return []model.Message{}, nil
	}
	where := map[string]interface{}{
		"conversation_id": conversationID,
		"_orderby":        "seq desc",
		"_limit":          []uint{0, uint(n)},
	}
	msgs, err := r.listMessages(ctx, where)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (r *ConversationRepo) ListAll(ctx context.Context, conversationID string) ([]model.Message, error) {
	where := map[string]interface{}{
		"conversation_id": conversationID,
		"_orderby":        "seq asc",
	}
	return r.listMessages(ctx, where)
}

func (r *ConversationRepo) listMessages(ctx context.Context, where map[string]interface{}) ([]model.Message, error) {
	sqlStr, args, err := builder.BuildSelect("conversation_messages", where, messageFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	msgs := make([]model.Message, 0)
	for rows.Next() {
		var (
			msg        model.Message
			sources    []byte
			confidence string
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &sources, &confidence, &msg.Ctime); err != nil {
			return nil, err
		}
		msg.Confidence = model.Confidence(confidence)
		if len(sources) > 0 && string(sources) != "null" {
			if err := json.Unmarshal(sources, &msg.Sources); err != nil {
				return nil, fmt.Errorf("message %s: decode sources: %w", msg.ID, err)
			}
		}
		msgs = append(msgs, msg)
	}
	return msgs, rows.Err()
}
