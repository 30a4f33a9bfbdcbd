package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/domain"
	"github.com/KaiyuWei/chat-box/internal/llm"
	"github.com/KaiyuWei/chat-box/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type mockConversationRepo struct {
	byID   map[int64]domain.ConversationRecord
	byUser map[int64][]domain.ConversationRecord
	nextID int64
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{
		byID:   make(map[int64]domain.ConversationRecord),
		byUser: make(map[int64][]domain.ConversationRecord),
		nextID: 10,
	}
}

func (m *mockConversationRepo) Create(_ context.Context, userID int64, title, prompt string) (domain.ConversationRecord, error) {
	m.nextID++
	conv := domain.ConversationRecord{
		ID:        m.nextID,
		UserID:    userID,
		Title:     title,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}
	m.byID[conv.ID] = conv
	m.byUser[userID] = append(m.byUser[userID], conv)
	return conv, nil
}

func (m *mockConversationRepo) GetByID(_ context.Context, id int64, _ bool) (domain.ConversationRecord, error) {
	conv, ok := m.byID[id]
	if !ok {
		return domain.ConversationRecord{}, pgx.ErrNoRows
	}
	return conv, nil
}

func (m *mockConversationRepo) ListByUserID(_ context.Context, userID int64, _ bool) ([]domain.ConversationRecord, error) {
	return m.byUser[userID], nil
}

type mockMessageRepo struct {
	created []domain.MessageRecord
}

func (m *mockMessageRepo) Create(_ context.Context, conversationID int64, sender domain.SenderType, content string) (domain.MessageRecord, error) {
	msg := domain.MessageRecord{
		ID:             int64(len(m.created) + 1),
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		CreatedAt:      time.Now().UTC(),
	}
	m.created = append(m.created, msg)
	return msg, nil
}

func (m *mockMessageRepo) ListByConversationID(_ context.Context, _ int64) ([]domain.MessageRecord, error) {
	return nil, nil
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(int64) bool { return false }

func newTestRouter(convRepo *mockConversationRepo, model *llm.MockClient, limiter service.ChatRateLimiter) *gin.Engine {
	logger := zap.NewNop()
	chatSvc := service.NewChatService(model, convRepo, &mockMessageRepo{}, logger)
	chatH := NewChatHandler(logger, chatSvc, limiter)
	convH := NewConversationHandler(logger, convRepo)
	return NewRouter(logger, "http://localhost:3000", chatH, convH)
}

func TestChatAssignsConversationID(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{Response: "hello!"}, nil)

	body := bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		ConversationID int64  `json:"conversation_id"`
		Messages       string `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if res.ConversationID == 0 {
		t.Fatalf("expected assigned conversation id, got 0")
	}
	if res.Messages != "hello!" {
		t.Fatalf("expected assistant text, got %q", res.Messages)
	}
}

func TestChatInvalidBody(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{Response: "x"}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(`{"messages":[]}`))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestChatUnknownConversation(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{Response: "x"}, nil)

	body := bytes.NewBufferString(`{"conversation_id": 999, "messages":[{"role":"user","content":"hi"}]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestChatRateLimited(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{Response: "x"}, denyAllLimiter{})

	body := bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
}

func TestChatLLMDownIsBadGateway(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{Err: context.DeadlineExceeded}, nil)

	body := bytes.NewBufferString(`{"messages":[{"role":"user","content":"hi"}]}`)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/chat", body)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
}

func TestGetUserConversationsEmptyIs404(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user-conv-with-msg/1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for empty user, got %d", w.Code)
	}
}

func TestGetUserConversationsReturnsWireShape(t *testing.T) {
	convRepo := newMockConversationRepo()
	conv, _ := convRepo.Create(context.Background(), 1, "first chat", "")
	conv.Messages = []domain.MessageRecord{
		{ID: 5, ConversationID: conv.ID, Sender: domain.SenderUser, Content: "hi", CreatedAt: time.Now().UTC()},
	}
	convRepo.byID[conv.ID] = conv
	convRepo.byUser[1] = []domain.ConversationRecord{conv}

	router := newTestRouter(convRepo, &llm.MockClient{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/user-conv-with-msg/1", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var out []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 conversation, got %d", len(out))
	}
	entry := out[0]
	for _, field := range []string{"conversation_id", "title", "created_at", "messages"} {
		if _, ok := entry[field]; !ok {
			t.Fatalf("missing field %q in %v", field, entry)
		}
	}
	msgs := entry["messages"].([]any)
	if len(msgs) != 1 {
		t.Fatalf("expected nested message, got %v", entry["messages"])
	}
	msg := msgs[0].(map[string]any)
	for _, field := range []string{"id", "sender", "content", "created_at"} {
		if _, ok := msg[field]; !ok {
			t.Fatalf("missing message field %q in %v", field, msg)
		}
	}
}

func TestGetConversationNotFound(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/conv-with-msg/404", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestGetConversationByID(t *testing.T) {
	convRepo := newMockConversationRepo()
	conv, _ := convRepo.Create(context.Background(), 1, "first chat", "")

	router := newTestRouter(convRepo, &llm.MockClient{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/conv-with-msg/"+jsonNumber(conv.ID), nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(newMockConversationRepo(), &llm.MockClient{}, nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func jsonNumber(id int64) string {
	data, _ := json.Marshal(id)
	return string(data)
}
