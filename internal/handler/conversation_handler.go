package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/docqa/internal/model"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

type MessageLister interface {
	ListMessages(ctx context.Context, userID, conversationID string) ([]model.Message, error)
}

type ConversationHandler struct {
	messages MessageLister
}

func NewConversationHandler(messages MessageLister) *ConversationHandler {
	return &ConversationHandler{messages: messages}
}

func (h *ConversationHandler) Messages(c *gin.Context) {
	msgs, err := h.messages.ListMessages(c.Request.Context(), getUserID(c), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"conversation_id": c.Param("id"), "messages": msgs})
}
