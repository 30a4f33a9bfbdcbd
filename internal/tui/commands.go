package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/KaiyuWei/chat-box/internal/apiclient"
	"github.com/KaiyuWei/chat-box/internal/domain"
	"github.com/KaiyuWei/chat-box/internal/session"
)

const fetchTimeout = 15 * time.Second

// conversationsMsg reingresa el resultado del fetch del listado persistido.
type conversationsMsg struct {
	list []domain.Conversation
	err  error
}

// sendResultMsg reingresa el resultado de un envío de mensaje.
type sendResultMsg struct {
	result apiclient.SendResult
	err    error
}

func fetchConversationsCmd(api *apiclient.Client, userID int64) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
		defer cancel()
		list, err := api.FetchConversations(ctx, userID)
		return conversationsMsg{list: list, err: err}
	}
}

func sendMessageCmd(api *apiclient.Client, req session.SendRequest) tea.Cmd {
	return func() tea.Msg {
		// Sin timeout: el modelo puede tardar, y el controlador ya bloquea
		// envíos concurrentes mientras éste está en vuelo.
		result, err := api.SendMessage(context.Background(), req.Text, req.ConversationID)
		return sendResultMsg{result: result, err: err}
	}
}
