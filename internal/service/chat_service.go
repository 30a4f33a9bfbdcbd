package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/domain"
	"github.com/KaiyuWei/chat-box/internal/llm"
	"github.com/KaiyuWei/chat-box/internal/repository"
)

var (
	// ErrChatInvalidInput: el request no trae un mensaje de usuario utilizable.
	ErrChatInvalidInput = errors.New("chat request needs a non-empty user message")
	// ErrConversationNotFound: el conversation_id del request no existe.
	ErrConversationNotFound = errors.New("conversation not found")
	// ErrLLMUnavailable: el upstream del modelo falló; el handler lo traduce a 502.
	ErrLLMUnavailable = errors.New("llm upstream unavailable")
)

const maxTitleLength = 255

// ChatTurn es un turno entrante del request de chat.
type ChatTurn struct {
	Role    string
	Content string
}

// ChatInput es el pedido completo: conversación opcional (nil crea una
// nueva), prompt inicial opcional y la lista de turnos.
type ChatInput struct {
	ConversationID *int64
	Prompt         string
	Turns          []ChatTurn
}

// ChatResult es lo que vuelve al cliente: el ID (posiblemente recién
// asignado) y el texto del asistente.
type ChatResult struct {
	ConversationID int64
	AssistantText  string
}

// ChatService orquesta un turno de chat: resuelve o crea la conversación,
// persiste el mensaje del usuario, arma el prompt con la historia, llama al
// LLM y persiste la respuesta.
type ChatService struct {
	llm           llm.LLMClient
	conversations repository.ConversationRepository
	messages      repository.MessageRepository
	logger        *zap.Logger
}

func NewChatService(
	llmClient llm.LLMClient,
	conversations repository.ConversationRepository,
	messages repository.MessageRepository,
	logger *zap.Logger,
) *ChatService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatService{
		llm:           llmClient,
		conversations: conversations,
		messages:      messages,
		logger:        logger,
	}
}

// Chat procesa un turno para el usuario dado. Cuando el request no trae
// conversation_id se crea una conversación nueva cuyo título es el contenido
// del último mensaje del usuario; ese ID nuevo viaja en la respuesta y es el
// único canal de promoción del lado del cliente.
func (s *ChatService) Chat(ctx context.Context, userID int64, in ChatInput) (ChatResult, error) {
	userText := lastUserText(in.Turns)
	if userText == "" {
		return ChatResult{}, ErrChatInvalidInput
	}

	conv, err := s.resolveConversation(ctx, userID, in, userText)
	if err != nil {
		return ChatResult{}, err
	}

	if _, err := s.messages.Create(ctx, conv.ID, domain.SenderUser, userText); err != nil {
		return ChatResult{}, fmt.Errorf("persist user message: %w", err)
	}

	prompt := BuildChatPrompt(conv, userText)
	reply, err := s.llm.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("llm generate failed",
			zap.Int64("conversation_id", conv.ID),
			zap.Error(err),
		)
		return ChatResult{}, fmt.Errorf("%w: %v", ErrLLMUnavailable, err)
	}

	if _, err := s.messages.Create(ctx, conv.ID, domain.SenderAssistant, reply); err != nil {
		// El turno ya ocurrió; perder la fila del asistente es preferible a
		// fallarle al cliente con la respuesta en mano.
		s.logger.Error("persist assistant message failed",
			zap.Int64("conversation_id", conv.ID),
			zap.Error(err),
		)
	}

	return ChatResult{ConversationID: conv.ID, AssistantText: reply}, nil
}

func (s *ChatService) resolveConversation(ctx context.Context, userID int64, in ChatInput, userText string) (domain.ConversationRecord, error) {
	if in.ConversationID != nil {
		conv, err := s.conversations.GetByID(ctx, *in.ConversationID, true)
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ConversationRecord{}, ErrConversationNotFound
		}
		if err != nil {
			return domain.ConversationRecord{}, fmt.Errorf("load conversation: %w", err)
		}
		return conv, nil
	}

	title := userText
	if title == "" {
		title = domain.DefaultConversationTitle
	}
	// Recorta por runas: un corte por bytes puede partir un carácter UTF-8.
	if runes := []rune(title); len(runes) > maxTitleLength {
		title = string(runes[:maxTitleLength])
	}
	conv, err := s.conversations.Create(ctx, userID, title, in.Prompt)
	if err != nil {
		return domain.ConversationRecord{}, fmt.Errorf("create conversation: %w", err)
	}
	s.logger.Info("conversation created",
		zap.Int64("conversation_id", conv.ID),
		zap.Int64("user_id", userID),
	)
	return conv, nil
}

func lastUserText(turns []ChatTurn) string {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == string(domain.SenderUser) {
			return strings.TrimSpace(turns[i].Content)
		}
	}
	return ""
}
