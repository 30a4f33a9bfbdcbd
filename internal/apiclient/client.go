package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

// BackendUnavailableError cubre toda falla de transporte contra el backend:
// non-2xx (salvo el 404 del listado, que es resultado vacío válido), error de
// red o cuerpo mal formado. StatusCode es 0 cuando no hubo respuesta HTTP.
type BackendUnavailableError struct {
	StatusCode int
	Err        error
}

func (e *BackendUnavailableError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("backend unavailable: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("backend unavailable: %v", e.Err)
}

func (e *BackendUnavailableError) Unwrap() error {
	return e.Err
}

// SendResult es la respuesta de un envío: el texto del asistente y el ID de
// conversación, posiblemente recién asignado por el backend.
type SendResult struct {
	AssistantText  string
	ConversationID int64
}

// Client habla con la API de chat del backend.
type Client struct {
	baseURL string
	client  *http.Client
	log     *zap.Logger
}

func New(baseURL string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 60 * time.Second},
		log:     log,
	}
}

type messagePayload struct {
	ID        int64  `json:"id"`
	Sender    string `json:"sender"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

type conversationPayload struct {
	ConversationID int64            `json:"conversation_id"`
	Title          string           `json:"title"`
	Prompt         string           `json:"prompt,omitempty"`
	CreatedAt      string           `json:"created_at"`
	Messages       []messagePayload `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages       []chatMessage `json:"messages"`
	ConversationID *int64        `json:"conversation_id,omitempty"`
}

type chatResponse struct {
	ConversationID int64  `json:"conversation_id"`
	Messages       string `json:"messages"`
}

// FetchConversations trae todas las conversaciones del usuario, con mensajes
// anidados, en el orden que el backend las entrega. Un 404 significa "el
// usuario no tiene conversaciones" y devuelve lista vacía sin error.
func (c *Client) FetchConversations(ctx context.Context, userID int64) ([]domain.Conversation, error) {
	url := fmt.Sprintf("%s/api/user-conv-with-msg/%d", c.baseURL, userID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &BackendUnavailableError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &BackendUnavailableError{Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		c.log.Debug("no conversations found for user", zap.Int64("user_id", userID))
		return nil, nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &BackendUnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &BackendUnavailableError{StatusCode: resp.StatusCode}
	}

	var payloads []conversationPayload
	if err := json.Unmarshal(body, &payloads); err != nil {
		return nil, &BackendUnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}

	conversations := make([]domain.Conversation, 0, len(payloads))
	for _, p := range payloads {
		conversations = append(conversations, p.toDomain())
	}
	return conversations, nil
}

// SendMessage envía el texto del usuario. conversationID se omite del request
// cuando no hay conversación persistida todavía (cero o temporal): en ese caso
// el backend asigna un ID nuevo y lo devuelve, que es el único canal por el
// que una conversación temporal se promueve.
func (c *Client) SendMessage(ctx context.Context, text string, conversationID domain.ConversationID) (SendResult, error) {
	reqBody := chatRequest{
		Messages: []chatMessage{{Role: "user", Content: text}},
	}
	if id, ok := conversationID.Persisted(); ok {
		reqBody.ConversationID = &id
	}

	enc, err := json.Marshal(reqBody)
	if err != nil {
		return SendResult{}, &BackendUnavailableError{Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(enc))
	if err != nil {
		return SendResult{}, &BackendUnavailableError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return SendResult{}, &BackendUnavailableError{Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return SendResult{}, &BackendUnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Warn("chat request failed", zap.Int("status", resp.StatusCode), zap.ByteString("body", body))
		return SendResult{}, &BackendUnavailableError{StatusCode: resp.StatusCode}
	}

	var cr chatResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return SendResult{}, &BackendUnavailableError{StatusCode: resp.StatusCode, Err: fmt.Errorf("unmarshal response: %w", err)}
	}
	return SendResult{AssistantText: cr.Messages, ConversationID: cr.ConversationID}, nil
}

func (p conversationPayload) toDomain() domain.Conversation {
	conv := domain.Conversation{
		ID:        domain.PersistedID(p.ConversationID),
		Title:     p.Title,
		CreatedAt: parseTimestamp(p.CreatedAt),
		Messages:  make([]domain.Message, 0, len(p.Messages)),
	}
	for _, m := range p.Messages {
		conv.Messages = append(conv.Messages, domain.Message{
			ID:        strconv.FormatInt(m.ID, 10),
			Content:   m.Content,
			Sender:    domain.SenderType(m.Sender),
			CreatedAt: parseTimestamp(m.CreatedAt),
		})
	}
	return conv
}

// parseTimestamp tolera los dos formatos isoformat que emite el backend, con
// y sin zona horaria. Un timestamp ilegible queda en cero en lugar de tumbar
// el fetch completo.
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}
