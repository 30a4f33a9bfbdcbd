package service

import (
	"strings"
	"testing"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

func TestBuildChatPromptDefaultsSystemInstruction(t *testing.T) {
	prompt := BuildChatPrompt(domain.ConversationRecord{}, "hi")

	if !strings.Contains(prompt, domain.DefaultSystemPrompt) {
		t.Fatalf("expected default system prompt, got:\n%s", prompt)
	}
	if strings.Contains(prompt, "[Conversation History]") {
		t.Fatalf("empty history must not render a history section")
	}
	if !strings.HasSuffix(prompt, "Assistant:") {
		t.Fatalf("prompt must end awaiting the assistant, got:\n%s", prompt)
	}
}

func TestBuildChatPromptSectionOrder(t *testing.T) {
	conv := domain.ConversationRecord{
		Prompt: "Answer in haiku.",
		Messages: []domain.MessageRecord{
			{Sender: domain.SenderUser, Content: "hello"},
			{Sender: domain.SenderAssistant, Content: "hi there"},
		},
	}

	prompt := BuildChatPrompt(conv, "bye")

	system := strings.Index(prompt, "[System Instruction]")
	history := strings.Index(prompt, "[Conversation History]")
	task := strings.Index(prompt, "[Task]")
	if system == -1 || history == -1 || task == -1 {
		t.Fatalf("missing section in prompt:\n%s", prompt)
	}
	if !(system < history && history < task) {
		t.Fatalf("sections out of order: system=%d history=%d task=%d", system, history, task)
	}
	if !strings.Contains(prompt, "User: hello\nAssistant: hi there") {
		t.Fatalf("history not rendered in order:\n%s", prompt)
	}
}
