package service

import (
	"fmt"
	"strings"

	"github.com/KaiyuWei/chat-box/internal/domain"
)

// BuildChatPrompt arma el prompt completo para el LLM: instrucción de
// sistema, historia de la conversación y la tarea con el último mensaje del
// usuario. La historia viene de los mensajes ya persistidos; el mensaje
// recién recibido va solo en la sección de tarea.
func BuildChatPrompt(conv domain.ConversationRecord, userText string) string {
	var sections []string

	sections = append(sections, systemSection(conv.Prompt))
	if history := historySection(conv.Messages); history != "" {
		sections = append(sections, history)
	}
	sections = append(sections, taskSection(userText))

	return strings.Join(sections, "\n\n")
}

func systemSection(prompt string) string {
	if prompt == "" {
		prompt = domain.DefaultSystemPrompt
	}
	return fmt.Sprintf("[System Instruction]\n%s", prompt)
}

func historySection(messages []domain.MessageRecord) string {
	if len(messages) == 0 {
		return ""
	}
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		role := "Assistant"
		if msg.Sender == domain.SenderUser {
			role = "User"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", role, msg.Content))
	}
	return "[Conversation History]\n" + strings.Join(lines, "\n")
}

func taskSection(userText string) string {
	return fmt.Sprintf("[Task]\nReply to the last user message.\nUser: %s\nAssistant:", userText)
}
