package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/ai"
	"github.com/xxxsen/docqa/internal/metrics"
	"github.com/xxxsen/docqa/internal/model"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/timeutil"
	"github.com/xxxsen/docqa/internal/rag"
	"github.com/xxxsen/docqa/internal/stream"
)

const (
	maxQueryRunes = 4000
	titleRunes    = 80
)

type DocumentStore interface {
	ListReadyByIDs(ctx context.Context, userID string, ids []string) ([]model.Document, error)
	ListReadyByProject(ctx context.Context, userID, projectID string) ([]model.Document, error)
	ListReadyByConversation(ctx context.Context, conversationID string) ([]model.Document, error)
}

type ConversationStore interface {
	GetOrCreate(ctx context.Context, conv *model.Conversation, documentIDs []string) (*model.Conversation, bool, error)
	Get(ctx context.Context, userID, id string) (*model.Conversation, error)
	AppendMessage(ctx context.Context, msg *model.Message) error
	ListRecent(ctx context.Context, conversationID string, n int) ([]model.Message, error)
	ListAll(ctx context.Context, conversationID string) ([]model.Message, error)
}

// AnswerStreamer produces the event stream for one prepared answer.
type AnswerStreamer interface {
	Run(ctx context.Context, req stream.Request) <-chan stream.Event
}

type ChatServiceDeps struct {
	Documents     DocumentStore
	Conversations ConversationStore
	Embedder      ai.IEmbedder
	Retriever     rag.ChunkRetriever
	Reranker      *rag.Reranker
	Aggregator    *rag.Aggregator
	Streamer      AnswerStreamer
	Config        rag.Config
	EmbedTaskType string
}

// ChatService runs the question answering pipeline: scope resolution,
// retrieval, ranking, calibration, prompt assembly and streaming.
type ChatService struct {
	docs     DocumentStore
	convs    ConversationStore
	embedder ai.IEmbedder
	retr     rag.ChunkRetriever
	reranker *rag.Reranker
	agg      *rag.Aggregator
	streamer AnswerStreamer
	cfg      rag.Config
	taskType string
}

func NewChatService(deps ChatServiceDeps) *ChatService {
	return &ChatService{
		docs:     deps.Documents,
		convs:    deps.Conversations,
		embedder: deps.Embedder,
		retr:     deps.Retriever,
		reranker: deps.Reranker,
		agg:      deps.Aggregator,
		streamer: deps.Streamer,
		cfg:      deps.Config.Normalized(),
		taskType: deps.EmbedTaskType,
	}
}

// AskInput scopes a question. DocumentIDs take precedence over ProjectID,
// which takes precedence over the documents linked to ConversationID.
type AskInput struct {
	UserID         string
	Query          string
	ConversationID string
	DocumentIDs    []string
	ProjectID      string
}

type AskResult struct {
	ConversationID string
	Intent         rag.Intent
	Confidence     model.Confidence
	Chunks         []model.Chunk
	Events         <-chan stream.Event
}

// Ask validates and prepares an answer. Every error it returns happens
// before any event is produced; afterwards failures only travel as events.
// The conversation is created only once retrieval has succeeded, so a
// failed question leaves nothing behind.
func (s *ChatService) Ask(ctx context.Context, in AskInput) (*AskResult, error) {
	query := strings.TrimSpace(in.Query)
	if query == "" {
		return nil, fmt.Errorf("empty query: %w", appErr.ErrInvalid)
	}
	if len([]rune(query)) > maxQueryRunes {
		return nil, fmt.Errorf("query longer than %d characters: %w", maxQueryRunes, appErr.ErrInvalid)
	}
	logger := logutil.GetLogger(ctx).With(zap.String("user_id", in.UserID))

	docs, err := s.resolveDocuments(ctx, in)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, appErr.ErrNoDocuments
	}
	logger = logger.With(zap.Int("documents", len(docs)))

	intent := rag.ClassifyIntent(query)
	var chunks []model.Chunk
	if !intent.IsConversational() {
		chunks, err = s.retrieve(ctx, query, docs)
		if err != nil {
			logger.Error("retrieval failed", zap.Error(err))
			return nil, err
		}
	}

	conv, err := s.openConversation(ctx, in, query, docs)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("conversation_id", conv.ID))
	confidence := rag.Calibrate(chunks, intent, s.cfg.Thresholds)
	metrics.ConfidenceTotal.WithLabelValues(string(confidence)).Inc()
	logger.Info("answer prepared",
		zap.String("intent", string(intent)),
		zap.Int("chunks", len(chunks)),
		zap.String("confidence", string(confidence)))

	recent, err := s.convs.ListRecent(ctx, conv.ID, s.cfg.HistoryMaxMessages)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	history := rag.TruncateHistory(recent, s.cfg.HistoryTokenBudget, s.cfg.HistoryMaxMessages)

	userMsg := &model.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           model.RoleUser,
		Content:        query,
		Ctime:          timeutil.NowUnixMilli(),
	}
	if err := s.convs.AppendMessage(ctx, userMsg); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}

	prompt := rag.AssemblePrompt(rag.PromptInput{
		Query:   query,
		Intent:  intent,
		Chunks:  chunks,
		Facts:   collectFacts(docs),
		History: history,
	})
	events := s.streamer.Run(ctx, stream.Request{
		ConversationID: conv.ID,
		Prompt:         prompt,
		Sources:        rag.BuildSources(chunks, s.cfg.MaxSources),
		Confidence:     confidence,
	})
	return &AskResult{
		ConversationID: conv.ID,
		Intent:         intent,
		Confidence:     confidence,
		Chunks:         chunks,
		Events:         events,
	}, nil
}

func (s *ChatService) resolveDocuments(ctx context.Context, in AskInput) ([]model.Document, error) {
	explicitScope := len(in.DocumentIDs) > 0 || in.ProjectID != ""
	if in.ConversationID != "" {
		// With an explicit scope an unknown id names a new conversation. A
		// foreign id is refused later by GetOrCreate, which writes nothing.
		_, err := s.convs.Get(ctx, in.UserID, in.ConversationID)
		if err != nil && !(explicitScope && appErr.IsNotFound(err)) {
			return nil, err
		}
	}
	switch {
	case len(in.DocumentIDs) > 0:
		return s.docs.ListReadyByIDs(ctx, in.UserID, dedupe(in.DocumentIDs))
	case in.ProjectID != "":
		return s.docs.ListReadyByProject(ctx, in.UserID, in.ProjectID)
	case in.ConversationID != "":
		return s.docs.ListReadyByConversation(ctx, in.ConversationID)
	}
	return nil, fmt.Errorf("no document scope given: %w", appErr.ErrInvalid)
}

func (s *ChatService) openConversation(ctx context.Context, in AskInput, query string, docs []model.Document) (*model.Conversation, error) {
	id := in.ConversationID
	if id == "" {
		id = uuid.NewString()
	}
	now := timeutil.NowUnixMilli()
	ids := make([]string, 0, len(docs))
	for _, doc := range docs {
		ids = append(ids, doc.ID)
	}
	conv, _, err := s.convs.GetOrCreate(ctx, &model.Conversation{
		ID:        id,
		UserID:    in.UserID,
		ProjectID: in.ProjectID,
		Title:     conversationTitle(query),
		Ctime:     now,
		Mtime:     now,
	}, ids)
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	return conv, nil
}

func (s *ChatService) retrieve(ctx context.Context, query string, docs []model.Document) ([]model.Chunk, error) {
	embedding, err := s.embedder.Embed(ctx, query, s.taskType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrEmbedding, err)
	}
	start := time.Now()
	if len(docs) == 1 {
		defer func() { metrics.RetrievalDuration.WithLabelValues("single").Observe(time.Since(start).Seconds()) }()
		candidates, err := s.retr.Retrieve(ctx, rag.RetrieveInput{
			Embedding:   embedding,
			QueryText:   query,
			DocumentIDs: []string{docs[0].ID},
			Limit:       s.cfg.CandidateLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", appErr.ErrRetrieval, err)
		}
		chunks := s.reranker.Rerank(ctx, query, candidates, s.cfg.RerankTopN)
		for i := range chunks {
			chunks[i].DocumentID = docs[0].ID
			chunks[i].DocumentName = docs[0].Name
		}
		return chunks, nil
	}
	defer func() { metrics.RetrievalDuration.WithLabelValues("multi").Observe(time.Since(start).Seconds()) }()
	chunks, err := s.agg.Retrieve(ctx, rag.AggregateInput{
		Query:     query,
		Embedding: embedding,
		Documents: docs,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", appErr.ErrRetrieval, err)
	}
	return chunks, nil
}

// ListMessages returns the whole conversation in order, provided the caller
// owns it.
func (s *ChatService) ListMessages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	if _, err := s.convs.Get(ctx, userID, conversationID); err != nil {
		return nil, err
	}
	return s.convs.ListAll(ctx, conversationID)
}

func collectFacts(docs []model.Document) []rag.DocumentFacts {
	out := make([]rag.DocumentFacts, 0, len(docs))
	for _, doc := range docs {
		if len(doc.Facts) == 0 {
			continue
		}
		out = append(out, rag.DocumentFacts{DocumentName: doc.Name, Facts: doc.Facts})
	}
	return out
}

func conversationTitle(query string) string {
	runes := []rune(query)
	if len(runes) <= titleRunes {
		return query
	}
	return string(runes[:titleRunes]) + "..."
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
