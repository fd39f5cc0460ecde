package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xxxsen/docqa/internal/middleware"
	"github.com/xxxsen/docqa/internal/pkg/response"
)

const ChatPath = "/chat"

type RouterDeps struct {
	Chat            *ChatHandler
	Conversations   *ConversationHandler
	JWTSecret       []byte
	RateLimitWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/healthz", func(c *gin.Context) {
		response.Success(c, gin.H{"status": "ok"})
	})
	api.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authGroup := api.Group("")
	authGroup.Use(middleware.JWTAuth(deps.JWTSecret), middleware.RateLimit(deps.RateLimitWindow))
	authGroup.POST(ChatPath, deps.Chat.Ask)
	authGroup.GET("/conversations/:id/messages", deps.Conversations.Messages)
}
