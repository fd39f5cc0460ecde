package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/docqa/internal/pkg/errcode"
	"github.com/xxxsen/docqa/internal/pkg/response"
	"github.com/xxxsen/docqa/internal/service"
	"github.com/xxxsen/docqa/internal/stream"
)

const HeaderConversationID = "X-Conversation-Id"

type ChatAsker interface {
	Ask(ctx context.Context, in service.AskInput) (*service.AskResult, error)
}

type ChatHandler struct {
	chat ChatAsker
}

func NewChatHandler(chat ChatAsker) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Query          string   `json:"query"`
	ConversationID string   `json:"conversation_id"`
	DocumentIDs    []string `json:"document_ids"`
	ProjectID      string   `json:"project_id"`
}

// Ask answers with a JSON error when the question cannot be prepared, and
// with a server-sent event stream otherwise.
func (h *ChatHandler) Ask(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	ctx := c.Request.Context()
	res, err := h.chat.Ask(ctx, service.AskInput{
		UserID:         getUserID(c),
		Query:          req.Query,
		ConversationID: req.ConversationID,
		DocumentIDs:    req.DocumentIDs,
		ProjectID:      req.ProjectID,
	})
	if err != nil {
		handleError(c, err)
		return
	}

	header := c.Writer.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	header.Set(HeaderConversationID, res.ConversationID)
	c.Status(http.StatusOK)
	c.Writer.Flush()

	logger := logutil.GetLogger(ctx).With(zap.String("conversation_id", res.ConversationID))
	broken := false
	for ev := range res.Events {
		if broken {
			continue
		}
		if err := stream.WriteSSE(c.Writer, ev); err != nil {
			logger.Warn("write event failed", zap.Error(err))
			broken = true
			continue
		}
		c.Writer.Flush()
	}
	if broken || ctx.Err() != nil {
		return
	}
	if err := stream.WriteDone(c.Writer); err != nil {
		logger.Warn("write stream end failed", zap.Error(err))
		return
	}
	c.Writer.Flush()
}
