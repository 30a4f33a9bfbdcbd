package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"

	"github.com/KaiyuWei/chat-box/internal/domain"
	"github.com/KaiyuWei/chat-box/internal/llm"
)

type mockConversationRepo struct {
	byID        map[int64]domain.ConversationRecord
	nextID      int64
	lastCreated domain.ConversationRecord
	createErr   error
}

func newMockConversationRepo() *mockConversationRepo {
	return &mockConversationRepo{byID: make(map[int64]domain.ConversationRecord), nextID: 100}
}

func (m *mockConversationRepo) Create(_ context.Context, userID int64, title, prompt string) (domain.ConversationRecord, error) {
	if m.createErr != nil {
		return domain.ConversationRecord{}, m.createErr
	}
	if prompt == "" {
		prompt = domain.DefaultSystemPrompt
	}
	m.nextID++
	conv := domain.ConversationRecord{
		ID:        m.nextID,
		UserID:    userID,
		Title:     title,
		Prompt:    prompt,
		CreatedAt: time.Now().UTC(),
	}
	m.byID[conv.ID] = conv
	m.lastCreated = conv
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
	var out []domain.ConversationRecord
	for _, conv := range m.byID {
		if conv.UserID == userID {
			out = append(out, conv)
		}
	}
	return out, nil
}

type mockMessageRepo struct {
	created   []domain.MessageRecord
	createErr error
}

func (m *mockMessageRepo) Create(_ context.Context, conversationID int64, sender domain.SenderType, content string) (domain.MessageRecord, error) {
	if m.createErr != nil {
		return domain.MessageRecord{}, m.createErr
	}
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

func (m *mockMessageRepo) ListByConversationID(_ context.Context, conversationID int64) ([]domain.MessageRecord, error) {
	var out []domain.MessageRecord
	for _, msg := range m.created {
		if msg.ConversationID == conversationID {
			out = append(out, msg)
		}
	}
	return out, nil
}

func TestChatCreatesConversationWhenIDOmitted(t *testing.T) {
	convRepo := newMockConversationRepo()
	msgRepo := &mockMessageRepo{}
	model := &llm.MockClient{Response: "hello!"}
	svc := NewChatService(model, convRepo, msgRepo, nil)

	res, err := svc.Chat(context.Background(), 1, ChatInput{
		Turns: []ChatTurn{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ConversationID == 0 {
		t.Fatalf("expected a freshly assigned conversation id")
	}
	if res.AssistantText != "hello!" {
		t.Fatalf("expected assistant text, got %q", res.AssistantText)
	}
	if convRepo.lastCreated.Title != "hi" {
		t.Fatalf("title must come from the user message, got %q", convRepo.lastCreated.Title)
	}
	if convRepo.lastCreated.Prompt != domain.DefaultSystemPrompt {
		t.Fatalf("expected default system prompt, got %q", convRepo.lastCreated.Prompt)
	}
	if len(msgRepo.created) != 2 {
		t.Fatalf("expected user+assistant rows, got %d", len(msgRepo.created))
	}
	if msgRepo.created[0].Sender != domain.SenderUser || msgRepo.created[1].Sender != domain.SenderAssistant {
		t.Fatalf("unexpected senders: %+v", msgRepo.created)
	}
}

func TestChatReusesExistingConversation(t *testing.T) {
	convRepo := newMockConversationRepo()
	existing, _ := convRepo.Create(context.Background(), 1, "earlier", "")
	msgRepo := &mockMessageRepo{}
	svc := NewChatService(&llm.MockClient{Response: "sure"}, convRepo, msgRepo, nil)

	res, err := svc.Chat(context.Background(), 1, ChatInput{
		ConversationID: &existing.ID,
		Turns:          []ChatTurn{{Role: "user", Content: "and then?"}},
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.ConversationID != existing.ID {
		t.Fatalf("expected id %d, got %d", existing.ID, res.ConversationID)
	}
	if convRepo.lastCreated.ID != existing.ID {
		t.Fatalf("no new conversation must be created")
	}
}

func TestChatUnknownConversationID(t *testing.T) {
	convRepo := newMockConversationRepo()
	svc := NewChatService(&llm.MockClient{Response: "x"}, convRepo, &mockMessageRepo{}, nil)

	missing := int64(999)
	_, err := svc.Chat(context.Background(), 1, ChatInput{
		ConversationID: &missing,
		Turns:          []ChatTurn{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}

func TestChatRejectsRequestWithoutUserMessage(t *testing.T) {
	svc := NewChatService(&llm.MockClient{}, newMockConversationRepo(), &mockMessageRepo{}, nil)

	cases := []ChatInput{
		{},
		{Turns: []ChatTurn{{Role: "assistant", Content: "hello"}}},
		{Turns: []ChatTurn{{Role: "user", Content: "   "}}},
	}
	for i, in := range cases {
		if _, err := svc.Chat(context.Background(), 1, in); !errors.Is(err, ErrChatInvalidInput) {
			t.Fatalf("case %d: expected ErrChatInvalidInput, got %v", i, err)
		}
	}
}

func TestChatLLMFailureSurfacesAsUnavailable(t *testing.T) {
	msgRepo := &mockMessageRepo{}
	svc := NewChatService(&llm.MockClient{Err: errors.New("timeout")}, newMockConversationRepo(), msgRepo, nil)

	_, err := svc.Chat(context.Background(), 1, ChatInput{
		Turns: []ChatTurn{{Role: "user", Content: "hi"}},
	})
	if !errors.Is(err, ErrLLMUnavailable) {
		t.Fatalf("expected ErrLLMUnavailable, got %v", err)
	}
	// El mensaje del usuario ya quedó persistido; solo falta la respuesta.
	if len(msgRepo.created) != 1 || msgRepo.created[0].Sender != domain.SenderUser {
		t.Fatalf("expected only the user message persisted, got %+v", msgRepo.created)
	}
}

func TestChatTruncatesLongTitles(t *testing.T) {
	convRepo := newMockConversationRepo()
	svc := NewChatService(&llm.MockClient{Response: "ok"}, convRepo, &mockMessageRepo{}, nil)

	long := strings.Repeat("a", 300)
	if _, err := svc.Chat(context.Background(), 1, ChatInput{
		Turns: []ChatTurn{{Role: "user", Content: long}},
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(convRepo.lastCreated.Title) != maxTitleLength {
		t.Fatalf("expected title truncated to %d, got %d", maxTitleLength, len(convRepo.lastCreated.Title))
	}
}

func TestChatTruncatesTitlesOnRuneBoundaries(t *testing.T) {
	convRepo := newMockConversationRepo()
	svc := NewChatService(&llm.MockClient{Response: "ok"}, convRepo, &mockMessageRepo{}, nil)

	long := strings.Repeat("ñ", 300)
	if _, err := svc.Chat(context.Background(), 1, ChatInput{
		Turns: []ChatTurn{{Role: "user", Content: long}},
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	title := convRepo.lastCreated.Title
	if !utf8.ValidString(title) {
		t.Fatalf("truncation split a multi-byte rune: %q", title[len(title)-4:])
	}
	if got := utf8.RuneCountInString(title); got != maxTitleLength {
		t.Fatalf("expected %d runes, got %d", maxTitleLength, got)
	}
}

func TestChatPromptCarriesHistoryAndTask(t *testing.T) {
	convRepo := newMockConversationRepo()
	existing, _ := convRepo.Create(context.Background(), 1, "earlier", "Be terse.")
	existing.Messages = []domain.MessageRecord{
		{Sender: domain.SenderUser, Content: "first question"},
		{Sender: domain.SenderAssistant, Content: "first answer"},
	}
	convRepo.byID[existing.ID] = existing

	model := &llm.MockClient{Response: "second answer"}
	svc := NewChatService(model, convRepo, &mockMessageRepo{}, nil)

	if _, err := svc.Chat(context.Background(), 1, ChatInput{
		ConversationID: &existing.ID,
		Turns:          []ChatTurn{{Role: "user", Content: "second question"}},
	}); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if len(model.Prompts) != 1 {
		t.Fatalf("expected one llm call, got %d", len(model.Prompts))
	}
	prompt := model.Prompts[0]
	for _, want := range []string{
		"[System Instruction]\nBe terse.",
		"[Conversation History]",
		"User: first question",
		"Assistant: first answer",
		"[Task]",
		"User: second question",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}
