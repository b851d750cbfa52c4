// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/skiff-systems/skiff/chat"
	"github.com/skiff-systems/skiff/gateway"
	"github.com/skiff-systems/skiff/lib/markdown"
)

// SessionUpdated signals that the session's log or status changed.
// The caller wires chat.SessionConfig.OnChange to program.Send of
// this message.
type SessionUpdated struct{}

// ConnectionUpdated signals a supervisor state change, wired to
// gateway.SupervisorConfig.OnUpdate the same way.
type ConnectionUpdated struct{}

// sendFinished reports the outcome of an asynchronous send.
type sendFinished struct{ err error }

// sendTimeout bounds how long a send RPC may take before the UI gives
// up on it.
const sendTimeout = 30 * time.Second

// Config configures the chat UI model.
type Config struct {
	// Session is the conversation state. Required.
	Session *chat.Session

	// Supervisor provides connection state for the header and status
	// line. Required.
	Supervisor *gateway.Supervisor

	// Model optionally pins the model for sends.
	Model string

	// Theme defaults to DefaultTheme().
	Theme Theme

	// Keys defaults to DefaultKeyMap.
	Keys KeyMap
}

// Model is the bubbletea model for the chat UI.
type Model struct {
	session    *chat.Session
	supervisor *gateway.Supervisor
	modelPin   string
	theme      Theme
	keys       KeyMap

	viewport viewport.Model
	composer Composer
	spinner  spinner.Model

	width   int
	height  int
	ready   bool
	sending bool
	notice  string

	// pinnedToBottom tracks whether the transcript should follow new
	// content. Scrolling up unpins; scrolling back to the end repins.
	pinnedToBottom bool
}

// NewModel creates the chat UI model.
func NewModel(cfg Config) Model {
	if cfg.Theme == (Theme{}) {
		cfg.Theme = DefaultTheme()
	}
	if cfg.Keys.Quit.Keys() == nil {
		cfg.Keys = DefaultKeyMap
	}
	busySpinner := spinner.New(spinner.WithSpinner(spinner.Dot))
	busySpinner.Style = lipgloss.NewStyle().Foreground(cfg.Theme.StatusBusy)
	return Model{
		session:        cfg.Session,
		supervisor:     cfg.Supervisor,
		modelPin:       cfg.Model,
		theme:          cfg.Theme,
		keys:           cfg.Keys,
		composer:       NewComposer(cfg.Theme),
		spinner:        busySpinner,
		pinnedToBottom: true,
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(message tea.Msg) (tea.Model, tea.Cmd) {
	switch message := message.(type) {
	case tea.WindowSizeMsg:
		m.width = message.Width
		m.height = message.Height
		m.layout()
		m.ready = true
		m.refreshTranscript()
		return m, nil

	case SessionUpdated:
		if m.ready {
			m.refreshTranscript()
		}
		return m, nil

	case ConnectionUpdated:
		// The view reads supervisor state directly; arriving here is
		// enough to trigger a repaint.
		return m, nil

	case spinner.TickMsg:
		var command tea.Cmd
		m.spinner, command = m.spinner.Update(message)
		return m, command

	case sendFinished:
		m.sending = false
		if message.err != nil {
			m.notice = message.err.Error()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(message)
	}
	return m, nil
}

func (m Model) handleKey(message tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(message, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(message, m.keys.Send):
		if m.sending || m.composer.Empty() {
			return m, nil
		}
		content := m.composer.Value()
		m.composer.Reset()
		m.notice = ""
		m.sending = true
		m.layout()
		session := m.session
		pin := m.modelPin
		return m, func() tea.Msg {
			ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
			defer cancel()
			return sendFinished{err: session.Send(ctx, content, pin)}
		}

	case key.Matches(message, m.keys.NewLine):
		m.composer.InsertNewline()
		m.layout()
		return m, nil

	case key.Matches(message, m.keys.ScrollUp):
		m.viewport.LineUp(1)
		m.pinnedToBottom = m.viewport.AtBottom()
		return m, nil

	case key.Matches(message, m.keys.ScrollDown):
		m.viewport.LineDown(1)
		m.pinnedToBottom = m.viewport.AtBottom()
		return m, nil

	case key.Matches(message, m.keys.PageUp):
		m.viewport.HalfViewUp()
		m.pinnedToBottom = m.viewport.AtBottom()
		return m, nil

	case key.Matches(message, m.keys.PageDown):
		m.viewport.HalfViewDown()
		m.pinnedToBottom = m.viewport.AtBottom()
		return m, nil

	case key.Matches(message, m.keys.Bottom):
		m.viewport.GotoBottom()
		m.pinnedToBottom = true
		return m, nil
	}

	m.composer.Update(message)
	m.layout()
	return m, nil
}

// layout sizes the viewport around the fixed chrome: one header line,
// one status line, and the composer's current height.
func (m *Model) layout() {
	if m.width == 0 {
		return
	}
	chrome := 2 + m.composer.Height()
	bodyHeight := m.height - chrome
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	if m.viewport.Width == 0 {
		m.viewport = viewport.New(m.width, bodyHeight)
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = bodyHeight
	}
}

// refreshTranscript re-renders the conversation into the viewport,
// keeping the view pinned to the newest content unless the user has
// scrolled away.
func (m *Model) refreshTranscript() {
	m.viewport.SetContent(renderTranscript(m.session.Messages(), m.theme, m.width))
	if m.pinnedToBottom {
		m.viewport.GotoBottom()
	}
}

func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}
	var view strings.Builder
	view.WriteString(m.headerView())
	view.WriteString("\n")
	view.WriteString(m.viewport.View())
	view.WriteString("\n")
	view.WriteString(m.statusView())
	view.WriteString("\n")
	view.WriteString(m.composer.View(m.width))
	return view.String()
}

func (m Model) headerView() string {
	title := lipgloss.NewStyle().
		Foreground(m.theme.HeaderForeground).
		Bold(true).
		Render("skiff")
	conversation := lipgloss.NewStyle().
		Foreground(m.theme.FaintText).
		Render(m.session.ConversationKey())
	badge := m.connectionBadge()

	left := title + "  " + conversation
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(badge)
	if gap < 1 {
		gap = 1
	}
	return ansi.Truncate(left+strings.Repeat(" ", gap)+badge, m.width, "…")
}

// connectionBadge renders the supervisor's state for the header.
func (m Model) connectionBadge() string {
	style := lipgloss.NewStyle().Foreground(m.theme.FaintText)
	switch m.supervisor.State() {
	case gateway.StateConnected:
		return lipgloss.NewStyle().Foreground(m.theme.StatusDone).Render("● connected")
	case gateway.StateConnecting:
		return style.Render("○ connecting")
	case gateway.StateReconnecting:
		return lipgloss.NewStyle().
			Foreground(m.theme.StatusBusy).
			Render(fmt.Sprintf("◌ reconnecting (attempt %d)", m.supervisor.ReconnectAttempts()))
	case gateway.StateFailed:
		return lipgloss.NewStyle().Foreground(m.theme.StatusError).Render("✗ " + m.supervisor.LastError())
	default:
		return style.Render("○ offline")
	}
}

func (m Model) statusView() string {
	if m.notice != "" {
		return ansi.Truncate(
			lipgloss.NewStyle().Foreground(m.theme.StatusError).Render(m.notice),
			m.width, "…")
	}
	text, busy := statusText(m.session.Status(), time.Now())
	if text == "" {
		return lipgloss.NewStyle().Foreground(m.theme.FaintText).Render("enter sends · alt+enter newline · ctrl+c quits")
	}

	style := lipgloss.NewStyle().Foreground(m.theme.StatusBusy)
	prefix := m.spinner.View() + " "
	switch m.session.Status().Phase {
	case chat.PhaseError:
		style = lipgloss.NewStyle().Foreground(m.theme.StatusError)
		prefix = ""
	case chat.PhaseDone, chat.PhaseAborted:
		style = lipgloss.NewStyle().Foreground(m.theme.StatusDone)
		prefix = ""
	}
	if !busy {
		prefix = ""
	}
	return ansi.Truncate(prefix+style.Render(text), m.width, "…")
}

// statusText maps an agent status to the status line text and whether
// the phase is a busy one that warrants a spinner.
func statusText(status chat.Status, now time.Time) (string, bool) {
	elapsed := ""
	if !status.Since.IsZero() {
		if seconds := int(now.Sub(status.Since).Seconds()); seconds > 0 {
			elapsed = fmt.Sprintf(" · %ds", seconds)
		}
	}

	switch status.Phase {
	case chat.PhaseSending:
		return "sending" + elapsed, true
	case chat.PhaseWaiting:
		return "waiting for agent" + elapsed, true
	case chat.PhaseThinking:
		text := "thinking"
		if status.Detail != "" {
			text += " · " + status.Detail
		}
		return text + elapsed, true
	case chat.PhaseTool:
		text := "running tool"
		if status.Detail != "" {
			text = "running " + status.Detail
		}
		return text + elapsed, true
	case chat.PhaseReplying:
		return "replying" + elapsed, true
	case chat.PhaseDone:
		return "done", false
	case chat.PhaseAborted:
		return "aborted", false
	case chat.PhaseError:
		if status.Detail != "" {
			return "error: " + status.Detail, false
		}
		return "error", false
	}
	return "", false
}

// renderTranscript renders the full conversation log at the given
// width. Assistant messages render as markdown; everything else is
// word-wrapped plain text.
func renderTranscript(messages []chat.Message, theme Theme, width int) string {
	if width <= 0 {
		width = 80
	}
	if len(messages) == 0 {
		return lipgloss.NewStyle().Foreground(theme.FaintText).Render("no messages yet")
	}

	var out strings.Builder
	for index, message := range messages {
		if index > 0 {
			out.WriteString("\n\n")
		}
		out.WriteString(roleLabel(message, theme))
		out.WriteString("\n")

		switch message.Role {
		case chat.RoleAssistant:
			out.WriteString(markdown.RenderWithTheme(message.Content, theme.Markdown(), width))
		default:
			wrapped := ansi.Wrap(message.Content, width, " ,.;-+|")
			out.WriteString(lipgloss.NewStyle().Foreground(theme.NormalText).Render(wrapped))
		}
	}
	return out.String()
}

func roleLabel(message chat.Message, theme Theme) string {
	switch message.Role {
	case chat.RoleUser:
		return lipgloss.NewStyle().Foreground(theme.UserLabel).Bold(true).Render("You")
	case chat.RoleAssistant:
		return lipgloss.NewStyle().Foreground(theme.AssistantLabel).Bold(true).Render("Assistant")
	case chat.RoleTool:
		label := "Tool"
		if message.Name != "" {
			label = "Tool · " + message.Name
		}
		return lipgloss.NewStyle().Foreground(theme.ToolLabel).Render(label)
	default:
		return lipgloss.NewStyle().Foreground(theme.FaintText).Render("System")
	}
}
