package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"

	"github.com/KaiyuWei/chat-box/internal/apiclient"
	"github.com/KaiyuWei/chat-box/internal/domain"
	"github.com/KaiyuWei/chat-box/internal/session"
)

type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

const sidebarWidth = 30

// Model es la capa de presentación sobre session.Controller. Todo el estado
// de sesión vive en el controlador; acá sólo hay estado de pantalla (foco,
// cursor del sidebar, tamaño de terminal).
type Model struct {
	ctrl   *session.Controller
	api    *apiclient.Client
	log    *zap.Logger
	userID int64

	input   textinput.Model
	spin    spinner.Model
	focus   focusArea
	cursor  int
	width   int
	height  int
	errLine string

	// Último token de refresco visto; cuando el controlador lo incrementa
	// se dispara un nuevo fetch del listado.
	lastToken int

	quitting bool
}

func NewModel(ctrl *session.Controller, api *apiclient.Client, userID int64, log *zap.Logger) Model {
	if log == nil {
		log = zap.NewNop()
	}

	ti := textinput.New()
	ti.Placeholder = "Type your message..."
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	ctrl.Restore()

	return Model{
		ctrl:      ctrl,
		api:       api,
		log:       log,
		userID:    userID,
		input:     ti,
		spin:      sp,
		width:     100,
		height:    30,
		lastToken: ctrl.SidebarRefreshToken(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchConversationsCmd(m.api, m.userID),
		m.spin.Tick,
		textinput.Blink,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case conversationsMsg:
		m.ctrl.ApplyConversations(msg.list, msg.err)
		m.clampCursor()
		return m, nil

	case sendResultMsg:
		m.ctrl.ApplySendResult(msg.result.AssistantText, msg.result.ConversationID, msg.err)
		if msg.err != nil {
			m.errLine = "Failed to send the message. It stays in the conversation; you can try sending another one."
		}
		return m, m.refetchIfStale()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}

	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.quitting = true
		return m, tea.Quit

	case "tab":
		if m.focus == focusInput {
			m.focus = focusSidebar
			m.input.Blur()
		} else {
			m.focus = focusInput
			m.input.Focus()
		}
		return m, nil

	case "ctrl+n":
		m.errLine = ""
		if err := m.ctrl.NewConversation(); err != nil {
			m.errLine = err.Error()
		}
		m.cursor = 0
		return m, nil

	case "ctrl+w":
		m.errLine = ""
		if err := m.ctrl.CloseTemporary(); err != nil {
			m.errLine = err.Error()
			return m, nil
		}
		m.cursor = 0
		return m, m.refetchIfStale()
	}

	if m.focus == focusSidebar {
		return m.updateSidebar(msg)
	}
	return m.updateInput(msg)
}

func (m Model) updateSidebar(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	entries := m.sidebarEntries()

	switch msg.String() {
	case "q":
		m.quitting = true
		return m, tea.Quit

	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}

	case "down", "j":
		if m.cursor < len(entries)-1 {
			m.cursor++
		}

	case "enter":
		if m.cursor < len(entries) {
			m.errLine = ""
			if err := m.ctrl.SelectConversation(entries[m.cursor].ID); err != nil {
				m.errLine = err.Error()
			}
		}
		m.focus = focusInput
		m.input.Focus()
	}

	return m, nil
}

func (m Model) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "enter" {
		m.errLine = ""
		req, err := m.ctrl.BeginSend(m.input.Value())
		if err != nil {
			if err != session.ErrEmptyMessage {
				m.errLine = err.Error()
			}
			return m, nil
		}
		m.input.SetValue("")
		return m, sendMessageCmd(m.api, req)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// refetchIfStale dispara un fetch del listado cuando el controlador pidió un
// refresco (promoción de temporal o cierre de temporal).
func (m *Model) refetchIfStale() tea.Cmd {
	if token := m.ctrl.SidebarRefreshToken(); token != m.lastToken {
		m.lastToken = token
		return fetchConversationsCmd(m.api, m.userID)
	}
	return nil
}

func (m Model) sidebarEntries() []domain.Conversation {
	return session.ProjectSidebar(m.ctrl.Conversations(), m.ctrl.TemporaryConversation())
}

func (m *Model) clampCursor() {
	if n := len(m.sidebarEntries()); m.cursor >= n {
		if n == 0 {
			m.cursor = 0
		} else {
			m.cursor = n - 1
		}
	}
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	sidebar := m.renderSidebar()
	chat := m.renderChat()

	body := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, chat)

	var b strings.Builder
	b.WriteString(titleStyle.Render("Chat Box") + "\n")
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("  Enter: send  Tab: focus  Ctrl+N: new chat  Ctrl+W: close draft  Ctrl+C: quit"))
	return b.String()
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(sidebarHeaderStyle.Render("Conversations") + "\n\n")

	entries := m.sidebarEntries()
	if len(entries) == 0 {
		b.WriteString(dimStyle.Render("(none yet)") + "\n")
	}

	active := m.ctrl.ActiveConversationID()
	for i, conv := range entries {
		title := conv.Title
		if title == "" {
			title = domain.DefaultConversationTitle
		}
		title = truncate(title, sidebarWidth-4)

		line := title
		switch {
		case m.focus == focusSidebar && i == m.cursor:
			line = selectedConvStyle.Render(" " + title + " ")
		case conv.ID == active:
			line = "* " + title
		case conv.ID.IsTemporary():
			line = temporaryConvStyle.Render(title)
		}
		b.WriteString(line + "\n")
	}

	return sidebarStyle.
		Width(sidebarWidth).
		Height(m.bodyHeight()).
		Render(b.String())
}

func (m Model) renderChat() string {
	width := m.width - sidebarWidth - 4
	if width < 30 {
		width = 30
	}

	var b strings.Builder

	switch m.ctrl.State() {
	case session.StateLoading:
		b.WriteString(dimStyle.Render("Loading conversations...") + "\n")
	case session.StateUnselected:
		b.WriteString(dimStyle.Render("Select a conversation or start typing to begin a new one.") + "\n")
	}

	if notice := m.ctrl.Notice(); notice != "" {
		b.WriteString(noticeStyle.Render(wrap(notice, width)) + "\n\n")
	}

	for _, msg := range m.ctrl.Messages() {
		label := userLabelStyle.Render("You")
		if msg.Sender == domain.SenderAssistant {
			label = assistantLabelStyle.Render("Assistant")
		}
		b.WriteString(fmt.Sprintf("%s  %s\n", label, dimStyle.Render(msg.CreatedAt.Format("15:04"))))
		b.WriteString(wrap(msg.Content, width) + "\n\n")
	}

	if m.ctrl.IsProcessing() {
		b.WriteString(m.spin.View() + dimStyle.Render(" thinking...") + "\n")
	}

	if m.errLine != "" {
		b.WriteString(noticeStyle.Render(wrap(m.errLine, width)) + "\n")
	}

	b.WriteString("\n" + m.input.View())

	return lipgloss.NewStyle().
		Width(width).
		Height(m.bodyHeight()).
		Padding(0, 1).
		Render(b.String())
}

func (m Model) bodyHeight() int {
	h := m.height - 3
	if h < 5 {
		h = 5
	}
	return h
}

func truncate(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 2 {
		return string(runes[:width])
	}
	return string(runes[:width-2]) + ".."
}

func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	var out []string
	for _, line := range strings.Split(s, "\n") {
		for len([]rune(line)) > width {
			runes := []rune(line)
			cut := width
			for i := width; i > 0; i-- {
				if runes[i-1] == ' ' {
					cut = i
					break
				}
			}
			out = append(out, strings.TrimRight(string(runes[:cut]), " "))
			line = string(runes[cut:])
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
