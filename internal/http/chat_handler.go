package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/repository"
	"github.com/KaiyuWei/chat-box/internal/service"
)

// ChatHandler atiende POST /api/chat.
type ChatHandler struct {
	logger  *zap.Logger
	chat    *service.ChatService
	limiter service.ChatRateLimiter
}

func NewChatHandler(logger *zap.Logger, chat *service.ChatService, limiter service.ChatRateLimiter) *ChatHandler {
	return &ChatHandler{
		logger:  logger,
		chat:    chat,
		limiter: limiter,
	}
}

type chatMessageRequest struct {
	Role    string `json:"role" binding:"required"`
	Content string `json:"content" binding:"required,max=4000"`
}

type chatRequest struct {
	ConversationID *int64               `json:"conversation_id"`
	Prompt         string               `json:"prompt" binding:"max=4000"`
	Messages       []chatMessageRequest `json:"messages" binding:"required,min=1,max=10,dive"`
}

type chatResponse struct {
	ConversationID int64  `json:"conversation_id"`
	Messages       string `json:"messages"`
}

// Chat procesa un turno. Cuando el request no trae conversation_id, la
// respuesta lleva el ID recién asignado.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid chat request", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request"})
		return
	}

	userID := repository.DummyUserID
	if h.limiter != nil && !h.limiter.Allow(userID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"detail": "too many chat requests"})
		return
	}

	turns := make([]service.ChatTurn, 0, len(req.Messages))
	for _, m := range req.Messages {
		turns = append(turns, service.ChatTurn{Role: m.Role, Content: m.Content})
	}

	res, err := h.chat.Chat(c.Request.Context(), userID, service.ChatInput{
		ConversationID: req.ConversationID,
		Prompt:         req.Prompt,
		Turns:          turns,
	})
	switch {
	case errors.Is(err, service.ErrChatInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"detail": "chat request needs a user message"})
		return
	case errors.Is(err, service.ErrConversationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"detail": "Conversation not found"})
		return
	case errors.Is(err, service.ErrLLMUnavailable):
		c.JSON(http.StatusBadGateway, gin.H{"detail": "model backend unavailable, try again later"})
		return
	case err != nil:
		h.logger.Error("chat turn failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not process chat"})
		return
	}

	c.JSON(http.StatusOK, chatResponse{
		ConversationID: res.ConversationID,
		Messages:       res.AssistantText,
	})
}
