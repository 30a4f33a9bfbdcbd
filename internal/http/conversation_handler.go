package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/domain"
	"github.com/KaiyuWei/chat-box/internal/repository"
)

// ConversationHandler atiende las lecturas de conversaciones con mensajes.
type ConversationHandler struct {
	logger        *zap.Logger
	conversations repository.ConversationRepository
}

func NewConversationHandler(logger *zap.Logger, conversations repository.ConversationRepository) *ConversationHandler {
	return &ConversationHandler{
		logger:        logger,
		conversations: conversations,
	}
}

type messageResponse struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationResponse struct {
	ConversationID int64             `json:"conversation_id"`
	Title          string            `json:"title"`
	Prompt         string            `json:"prompt,omitempty"`
	CreatedAt      string            `json:"created_at"`
	Messages       []messageResponse `json:"messages"`
}

// GetConversation maneja GET /api/conv-with-msg/:conversationID.
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("conversationID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid conversation id"})
		return
	}

	conv, err := h.conversations.GetByID(c.Request.Context(), id, true)
	if errors.Is(err, pgx.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"detail": "Conversation not found"})
		return
	}
	if err != nil {
		h.logger.Error("load conversation failed", zap.Int64("conversation_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not load conversation"})
		return
	}

	c.JSON(http.StatusOK, toConversationResponse(conv))
}

// GetUserConversations maneja GET /api/user-conv-with-msg/:userID. Un usuario
// sin conversaciones responde 404, que el cliente trata como estado vacío
// válido, no como error.
func (h *ConversationHandler) GetUserConversations(c *gin.Context) {
	if _, err := strconv.ParseInt(c.Param("userID"), 10, 64); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid user id"})
		return
	}
	// TODO: remove the dummy user id here after an auth system is added.
	userID := repository.DummyUserID

	conversations, err := h.conversations.ListByUserID(c.Request.Context(), userID, true)
	if err != nil {
		h.logger.Error("list conversations failed", zap.Int64("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "could not list conversations"})
		return
	}
	if len(conversations) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"detail": "No conversations found for user"})
		return
	}

	out := make([]conversationResponse, 0, len(conversations))
	for _, conv := range conversations {
		out = append(out, toConversationResponse(conv))
	}
	c.JSON(http.StatusOK, out)
}

func toConversationResponse(conv domain.ConversationRecord) conversationResponse {
	messages := make([]messageResponse, 0, len(conv.Messages))
	for _, msg := range conv.Messages {
		messages = append(messages, messageResponse{
			ID:        msg.ID,
			Sender:    string(msg.Sender),
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt.Format(time.RFC3339),
		})
	}
	return conversationResponse{
		ConversationID: conv.ID,
		Title:          conv.Title,
		Prompt:         conv.Prompt,
		CreatedAt:      conv.CreatedAt.Format(time.RFC3339),
		Messages:       messages,
	}
}
