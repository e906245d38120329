// ABOUTME: Terminal client for fixai-gateway investigations.
// ABOUTME: Conversation list plus chat pane with live multiplexed turn progress.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"github.com/fixai/fixai-gateway/internal/agentloop"
	"github.com/fixai/fixai-gateway/internal/client"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("87"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	userStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	toolStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	statsStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
)

type viewMode int

const (
	modeList viewMode = iota
	modeChat
)

// Bubbletea messages.
type (
	orgsLoadedMsg   []client.Organization
	convsLoadedMsg  []client.Conversation
	convCreatedMsg  *client.Conversation
	convDetailMsg   *client.ConversationDetail
	convDeletedMsg  string
	progressMsg     client.Event
	errMsg          struct{ err error }
	turnRejectedMsg struct{ detail string }
	clearNoticeMsg  struct{}
)

// streamSet tracks open SSE bodies so stop and quit can close the read side.
type streamSet struct {
	mu     sync.Mutex
	bodies map[string]io.Closer
}

func newStreamSet() *streamSet {
	return &streamSet{bodies: make(map[string]io.Closer)}
}

func (s *streamSet) put(conversationID string, body io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bodies[conversationID] = body
}

func (s *streamSet) close(conversationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if body, ok := s.bodies[conversationID]; ok {
		_ = body.Close()
		delete(s.bodies, conversationID)
	}
}

func (s *streamSet) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, body := range s.bodies {
		_ = body.Close()
		delete(s.bodies, id)
	}
}

type appModel struct {
	api     *client.API
	mux     *client.Multiplexer
	streams *streamSet
	events  chan client.Event
	logger  *slog.Logger

	mode          viewMode
	org           *client.Organization
	conversations []client.Conversation
	cursor        int

	focused string
	detail  *client.ConversationDetail
	snap    client.ProgressSnapshot

	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	width, height int
	notice        string
	fatal         error
}

func newAppModel(api *client.API, logger *slog.Logger) appModel {
	ti := textinput.New()
	ti.Placeholder = "Describe the incident (e.g. order-service returning 500s in prod)"
	ti.CharLimit = 4000

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))

	return appModel{
		api:     api,
		mux:     client.NewMultiplexer(logger),
		streams: newStreamSet(),
		events:  make(chan client.Event, 256),
		logger:  logger,
		mode:    modeList,
		input:   ti,
		spin:    sp,
	}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.loadOrgs, m.waitForEvent(), m.spin.Tick)
}

// waitForEvent re-arms after every progress message so decode goroutines for
// any conversation keep feeding the program.
func (m appModel) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		e, ok := <-m.events
		if !ok {
			return nil
		}
		return progressMsg(e)
	}
}

func (m appModel) loadOrgs() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	orgs, err := m.api.ListOrganizations(ctx)
	if err != nil {
		return errMsg{err}
	}
	return orgsLoadedMsg(orgs)
}

func (m appModel) loadConversations() tea.Cmd {
	orgID := m.org.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		convs, err := m.api.ListConversations(ctx, orgID)
		if err != nil {
			return errMsg{err}
		}
		return convsLoadedMsg(convs)
	}
}

func (m appModel) createConversation() tea.Cmd {
	orgID := m.org.ID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		conv, err := m.api.CreateConversation(ctx, orgID)
		if err != nil {
			return errMsg{err}
		}
		return convCreatedMsg(conv)
	}
}

func (m appModel) loadDetail(conversationID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		detail, err := m.api.GetConversation(ctx, conversationID)
		if err != nil {
			return errMsg{err}
		}
		return convDetailMsg(detail)
	}
}

func (m appModel) deleteConversation(conversationID string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := m.api.DeleteConversation(ctx, conversationID); err != nil {
			return errMsg{err}
		}
		return convDeletedMsg(conversationID)
	}
}

// startTurn opens the SSE stream and spawns the decode goroutine feeding the
// shared event channel. The turn keeps running when focus moves elsewhere.
func (m appModel) startTurn(conversationID, content string) tea.Cmd {
	api, streams, events, logger := m.api, m.streams, m.events, m.logger
	return func() tea.Msg {
		body, err := api.SendMessage(context.Background(), conversationID, content, nil)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.StatusCode == 409 {
				return turnRejectedMsg{detail: apiErr.Detail}
			}
			return errMsg{err}
		}
		streams.put(conversationID, body)

		go func() {
			client.Decode(body, conversationID, logger, func(e client.Event) {
				events <- e
			})
			streams.close(conversationID)
		}()
		return nil
	}
}

func (m appModel) stopTurn(conversationID string) tea.Cmd {
	api := m.api
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_, err := api.StopTurn(ctx, conversationID)
		if err != nil {
			return errMsg{err}
		}
		return nil
	}
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport = viewport.New(msg.Width, max(msg.Height-6, 4))
		m.input.Width = max(msg.Width-4, 20)
		if m.mode == modeChat {
			m.refreshChatView()
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case orgsLoadedMsg:
		if len(msg) == 0 {
			m.fatal = fmt.Errorf("no organizations configured; create one via the gateway API first")
			return m, tea.Quit
		}
		org := msg[0]
		m.org = &org
		return m, m.loadConversations()

	case convsLoadedMsg:
		m.conversations = msg
		if m.cursor >= len(m.conversations) {
			m.cursor = max(len(m.conversations)-1, 0)
		}
		return m, nil

	case convCreatedMsg:
		m.conversations = append([]client.Conversation{*msg}, m.conversations...)
		m.cursor = 0
		return m, nil

	case convDetailMsg:
		m.detail = msg
		if m.focused == msg.ID {
			m.refreshChatView()
		}
		return m, nil

	case convDeletedMsg:
		m.mux.Forget(string(msg))
		m.streams.close(string(msg))
		return m, m.loadConversations()

	case progressMsg:
		snap, focused := m.mux.Apply(client.Event(msg))
		cmds := []tea.Cmd{m.waitForEvent()}
		if focused {
			m.snap = snap
			m.refreshChatView()
		}
		// a terminal event means the turn persisted new messages
		if msg.Type == agentloop.EventDone || msg.Type == agentloop.EventError {
			cmds = append(cmds, m.loadDetail(msg.ConversationID), m.loadConversations())
		}
		return m, tea.Batch(cmds...)

	case turnRejectedMsg:
		m.notice = msg.detail
		return m, clearNoticeLater()

	case clearNoticeMsg:
		m.notice = ""
		return m, nil

	case errMsg:
		m.notice = msg.err.Error()
		return m, clearNoticeLater()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	if m.mode == modeChat {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

func clearNoticeLater() tea.Cmd {
	return tea.Tick(4*time.Second, func(time.Time) tea.Msg { return clearNoticeMsg{} })
}

func (m appModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.streams.closeAll()
		return m, tea.Quit

	case "ctrl+s":
		if m.focused != "" && m.snap.IsStreaming {
			// flip local state immediately; the server ack may lag
			m.mux.MarkStopped(m.focused)
			m.snap = m.mux.Snapshot(m.focused)
			m.refreshChatView()
			return m, m.stopTurn(m.focused)
		}
		return m, nil
	}

	if m.mode == modeList {
		return m.handleListKey(msg)
	}
	return m.handleChatKey(msg)
}

func (m appModel) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.conversations)-1 {
			m.cursor++
		}
	case "n":
		return m, m.createConversation()
	case "x":
		if len(m.conversations) > 0 {
			return m, m.deleteConversation(m.conversations[m.cursor].ID)
		}
	case "enter":
		if len(m.conversations) == 0 {
			return m, nil
		}
		conv := m.conversations[m.cursor]
		m.mode = modeChat
		m.focused = conv.ID
		m.detail = nil
		m.snap = m.mux.Focus(conv.ID)
		m.input.Focus()
		return m, m.loadDetail(conv.ID)
	}
	return m, nil
}

func (m appModel) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		// background turns keep running; the multiplexer holds their state
		m.mode = modeList
		m.focused = ""
		m.mux.Focus("")
		m.input.Blur()
		return m, m.loadConversations()

	case "enter":
		content := strings.TrimSpace(m.input.Value())
		if content == "" {
			return m, nil
		}
		if m.snap.IsStreaming {
			m.notice = "a turn is already running; ctrl+s to stop it"
			return m, clearNoticeLater()
		}
		m.input.SetValue("")
		m.mux.BeginTurn(m.focused)
		m.snap = m.mux.Snapshot(m.focused)
		m.refreshChatView()
		return m, m.startTurn(m.focused, content)

	case "up", "down", "pgup", "pgdown":
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *appModel) refreshChatView() {
	if m.viewport.Width == 0 {
		return
	}
	m.viewport.SetContent(m.renderChatContent())
	m.viewport.GotoBottom()
}

func (m *appModel) renderChatContent() string {
	var b strings.Builder

	if m.detail != nil {
		for _, msg := range m.detail.Messages {
			switch msg.Role {
			case "user":
				b.WriteString(userStyle.Render("you: ") + msg.Content + "\n\n")
			case "assistant":
				if msg.ToolName != "" {
					b.WriteString(toolStyle.Render("· "+msg.Content) + "\n")
					continue
				}
				b.WriteString("fixai: " + msg.Content + "\n\n")
			case "tool":
				b.WriteString(dimStyle.Render("  └ result ("+msg.ToolName+")") + "\n")
			}
		}
	}

	for _, step := range m.snap.ToolSteps {
		line := fmt.Sprintf("[%d] %s", step.Ordinal, step.Tool)
		switch step.Status {
		case client.StepRunning:
			line += " " + m.spin.View()
		case client.StepError:
			line += errStyle.Render(" ✗")
		default:
			line += fmt.Sprintf(" ✓ (%dms, %d bytes)", step.DurationMS, step.ResultLength)
		}
		b.WriteString(toolStyle.Render(line) + "\n")
	}

	if m.snap.StreamingContent != "" {
		b.WriteString("\n" + m.snap.StreamingContent)
	}
	if m.snap.FinalText != "" && m.detail != nil && !containsFinal(m.detail, m.snap.FinalText) {
		b.WriteString("\nfixai: " + m.snap.FinalText + "\n")
	}
	if m.snap.Error != "" {
		b.WriteString("\n" + errStyle.Render("error: "+m.snap.Error) + "\n")
	}
	if stats := m.snap.Stats; stats != nil {
		b.WriteString("\n" + statsStyle.Render(fmt.Sprintf(
			"model calls %d/%d · tools %d · ~%d/%d tokens · %.1fs",
			stats.AICalls, stats.MaxAICalls, stats.ToolCalls,
			stats.EstimatedTokens, stats.MaxTokens, stats.ElapsedSeconds)) + "\n")
	}
	return b.String()
}

// containsFinal avoids rendering the final answer twice once the refreshed
// history already includes it.
func containsFinal(detail *client.ConversationDetail, finalText string) bool {
	for i := len(detail.Messages) - 1; i >= 0; i-- {
		msg := detail.Messages[i]
		if msg.Role == "assistant" && msg.ToolName == "" {
			return msg.Content == finalText
		}
	}
	return false
}

func (m appModel) View() string {
	if m.fatal != nil {
		return errStyle.Render(m.fatal.Error()) + "\n"
	}
	if m.org == nil {
		return m.spin.View() + " connecting...\n"
	}

	var b strings.Builder
	if m.mode == modeList {
		b.WriteString(titleStyle.Render("fixai · "+m.org.Name) + "\n\n")
		if len(m.conversations) == 0 {
			b.WriteString(dimStyle.Render("no conversations yet — press n to start one") + "\n")
		}
		for i, conv := range m.conversations {
			marker := "  "
			line := conv.Title
			if snap := m.mux.Snapshot(conv.ID); snap.IsStreaming {
				line += " " + m.spin.View()
			} else if conv.TurnActive {
				line += dimStyle.Render(" (investigating)")
			}
			if i == m.cursor {
				marker = "> "
				line = selectedStyle.Render(line)
			}
			b.WriteString(marker + line + dimStyle.Render(fmt.Sprintf("  %d msgs", conv.MessageCount)) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter open · n new · x delete · ctrl+c quit") + "\n")
	} else {
		title := "conversation"
		for _, conv := range m.conversations {
			if conv.ID == m.focused {
				title = conv.Title
			}
		}
		b.WriteString(titleStyle.Render(title) + "\n")
		b.WriteString(m.viewport.View() + "\n")
		b.WriteString(m.input.View() + "\n")
		b.WriteString(dimStyle.Render("enter send · ctrl+s stop · esc back · ctrl+c quit") + "\n")
	}

	if m.notice != "" {
		b.WriteString(errStyle.Render(m.notice) + "\n")
	}
	return b.String()
}

func main() {
	_ = godotenv.Load()

	server := flag.String("server", "http://127.0.0.1:8080", "Gateway server URL")
	flag.Parse()

	// logs would corrupt the alt screen, so they go nowhere by default
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	api := client.NewAPI(*server, logger)
	p := tea.NewProgram(newAppModel(api, logger), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
