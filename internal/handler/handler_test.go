package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/errcode"
	appErr "github.com/xxxsen/docqa/internal/pkg/errors"
	"github.com/xxxsen/docqa/internal/pkg/jwt"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/stream"
)

type fakeChat struct {
	err    error
	events []stream.Event
	got    service.AskInput
	msgs   []model.Message
}

func (f *fakeChat) Ask(ctx context.Context, in service.AskInput) (*service.AskResult, error) {
	f.got = in
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan stream.Event, len(f.events))
	for _, ev := range f.events {
		ch <- ev
	}
	close(ch)
	return &service.AskResult{ConversationID: "conv-1", Events: ch}, nil
}

func (f *fakeChat) ListMessages(ctx context.Context, userID, conversationID string) ([]model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs, nil
}

const testSecret = "secret"

func newRouter(t *testing.T, chat *fakeChat) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r.Group("/api/v1"), RouterDeps{
		Chat:          NewChatHandler(chat),
		Conversations: NewConversationHandler(chat),
		JWTSecret:     []byte(testSecret),
	})
	return r
}

func authedRequest(t *testing.T, method, path string, body interface{}) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	token, err := jwt.GenerateToken("u1", []byte(testSecret), time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestChatStreamsEvents(t *testing.T) {
	chat := &fakeChat{events: []stream.Event{
		stream.TextEvent("Hello"),
		stream.SourceEvent(model.Source{ChunkID: "c1", PageNumber: 2, Snippet: "s", Score: 0.8}),
		stream.ConfidenceEvent(model.ConfidenceHigh),
		stream.DoneEvent("conv-1", "m1"),
	}}
	w := httptest.NewRecorder()
	newRouter(t, chat).ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/chat", map[string]interface{}{
		"query":        "What is my deductible?",
		"document_ids": []string{"d1"},
	}))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "conv-1", w.Header().Get(HeaderConversationID))
	assert.Equal(t, "u1", chat.got.UserID)
	assert.Equal(t, []string{"d1"}, chat.got.DocumentIDs)

	frames := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	require.Len(t, frames, 5)
	for _, f := range frames {
		assert.True(t, strings.HasPrefix(f, "data: "))
	}
	assert.Contains(t, frames[0], `"type":"text"`)
	assert.Contains(t, frames[3], `"type":"done"`)
	assert.Equal(t, "data: [DONE]", frames[4])
}

func TestChatValidationErrorIsJSON(t *testing.T) {
	chat := &fakeChat{err: appErr.ErrNoDocuments}
	w := httptest.NewRecorder()
	newRouter(t, chat).ServeHTTP(w, authedRequest(t, http.MethodPost, "/api/v1/chat", map[string]interface{}{"query": "hi", "project_id": "p1"}))

	assert.NotEqual(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), strconv.Itoa(errcode.ErrNoDocuments))
	assert.NotContains(t, w.Body.String(), "data:")
}

func TestChatRejectsBadBody(t *testing.T) {
	w := httptest.NewRecorder()
	req := authedRequest(t, http.MethodPost, "/api/v1/chat", nil)
	req.Body = http.NoBody
	newRouter(t, &fakeChat{}).ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), strconv.Itoa(errcode.ErrInvalid))
}

func TestChatRequiresToken(t *testing.T) {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader(`{"query":"x"}`))
	newRouter(t, &fakeChat{}).ServeHTTP(w, req)
	assert.Contains(t, w.Body.String(), strconv.Itoa(errcode.ErrUnauthorized))
}

func TestConversationMessages(t *testing.T) {
	chat := &fakeChat{msgs: []model.Message{
		{ID: "m1", ConversationID: "conv-1", Role: model.RoleUser, Content: "q"},
		{ID: "m2", ConversationID: "conv-1", Role: model.RoleAssistant, Content: "a", Confidence: model.ConfidenceHigh},
	}}
	w := httptest.NewRecorder()
	newRouter(t, chat).ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/conversations/conv-1/messages", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"m2"`)
	assert.Contains(t, w.Body.String(), `"high"`)

	chat.err = appErr.ErrNotFound
	w = httptest.NewRecorder()
	newRouter(t, chat).ServeHTTP(w, authedRequest(t, http.MethodGet, "/api/v1/conversations/conv-1/messages", nil))
	assert.Contains(t, w.Body.String(), strconv.Itoa(errcode.ErrNotFound))
}

func TestHandleErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := map[error]int{
		appErr.ErrForbidden: errcode.ErrForbidden,
		appErr.ErrInvalid:   errcode.ErrInvalid,
		appErr.ErrEmbedding: errcode.ErrEmbeddingFailed,
		appErr.ErrRetrieval: errcode.ErrRetrievalFailed,
		context.Canceled:    errcode.ErrInternal,
	}
	for err, code := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
		c.Set(middleware.ContextUserIDKey, "u1")
		handleError(c, err)
		assert.Contains(t, w.Body.String(), strconv.Itoa(code), err.Error())
	}
}

func TestHealthAndMetrics(t *testing.T) {
	r := newRouter(t, &fakeChat{})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
