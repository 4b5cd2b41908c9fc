// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/threadline/threadline-tui/internal/client"
	"github.com/threadline/threadline-tui/internal/session"
)

// Message roles, matching the persisted thread format.
const (
	roleHuman = "human"
	roleAI    = "ai"
)

// requestTimeout bounds the non-streaming thread operations.
const requestTimeout = 10 * time.Second

// =============================================================================
// UPDATE LOOP
// =============================================================================

// Update handles all incoming Bubble Tea messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		return m.handleResize(msg), nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case BackendStatusMsg:
		if msg.Err != nil {
			m.state = StateError
			m.errText = "cannot reach the threadline server; start it with: threadline serve"
		}
		return m, nil

	case ThreadsLoadedMsg:
		if msg.Err == nil {
			m.threads = msg.Threads
			if m.cursor >= len(m.threads) {
				m.cursor = 0
			}
		}
		return m, nil

	case ThreadOpenedMsg:
		if msg.Err != nil {
			m.state = StateError
			m.errText = openErrorText(msg.Err)
			return m, nil
		}
		m.registry.Set(msg.ThreadID)
		m.msgs = m.msgs[:0]
		for _, tm := range msg.Messages {
			m.msgs = append(m.msgs, message{role: tm.Type, content: tm.Content})
		}
		m.focus = focusInput
		m.input.Focus()
		m.refreshViewport(true)
		return m, nil

	case ThreadDeletedMsg:
		if current, ok := m.registry.Current(); ok && current == msg.ThreadID {
			m.startNewThread()
		}
		return m, m.loadThreadsCmd()

	case StreamTickMsg:
		if m.state != StateStreaming {
			return m, nil
		}
		if chunk, ok := m.streamBuf.Flush(); ok {
			m.streamText += chunk
			m.refreshViewport(true)
		}
		return m, streamTickCmd()

	case StreamDoneMsg:
		return m.handleStreamDone(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleResize recomputes the layout for a new terminal size.
func (m Model) handleResize(msg tea.WindowSizeMsg) Model {
	m.width = msg.Width
	m.height = msg.Height
	m.theme.SetSize(msg.Width, msg.Height)
	m.ready = true

	chatWidth := m.chatWidth()

	// Header, input box (3 with border), status bar.
	viewportHeight := m.height - 5
	if viewportHeight < 3 {
		viewportHeight = 3
	}

	m.viewport.Width = chatWidth
	m.viewport.Height = viewportHeight
	m.input.Width = chatWidth - 6

	// Re-wrap markdown for the new width.
	m.renderer = newMarkdownRenderer(chatWidth - 6)
	m.refreshViewport(true)
	return m
}

// handleKey routes keyboard input by state and focus.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancelStream()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Cancel):
		if m.state == StateStreaming {
			// The stream goroutine observes cancellation and delivers a
			// clean StreamDoneMsg; state transitions there.
			m.cancelStream()
			return m, nil
		}
		if m.state == StateError {
			m.state = StateReady
			m.errText = ""
		}
		return m, nil

	case key.Matches(msg, m.keys.ToggleSidebar):
		m.showSidebar = !m.showSidebar
		if !m.showSidebar {
			m.focus = focusInput
			m.input.Focus()
		}
		return m.handleResize(tea.WindowSizeMsg{Width: m.width, Height: m.height}), nil

	case key.Matches(msg, m.keys.FocusSwitch):
		if m.sidebarVisible() {
			if m.focus == focusInput {
				m.focus = focusSidebar
				m.input.Blur()
			} else {
				m.focus = focusInput
				m.input.Focus()
			}
		}
		return m, nil

	case key.Matches(msg, m.keys.NewThread):
		if m.state == StateStreaming {
			return m, nil
		}
		m.startNewThread()
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	if m.focus == focusSidebar {
		return m.handleSidebarKey(msg)
	}
	return m.handleInputKey(msg)
}

// handleSidebarKey handles navigation within the thread list.
func (m Model) handleSidebarKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.threads)-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.state != StateStreaming && m.cursor < len(m.threads) {
			return m, m.openThreadCmd(m.threads[m.cursor].ThreadID)
		}
		return m, nil

	case key.Matches(msg, m.keys.DeleteThread):
		if m.state != StateStreaming && m.cursor < len(m.threads) {
			return m, m.deleteThreadCmd(m.threads[m.cursor].ThreadID)
		}
		return m, nil
	}
	return m, nil
}

// handleInputKey handles typing and submission.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		return m.submit()
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit sends the typed query as a new streaming request.
func (m Model) submit() (tea.Model, tea.Cmd) {
	if m.state == StateStreaming {
		return m, nil
	}

	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}

	m.state = StateStreaming
	m.errText = ""
	m.msgs = append(m.msgs, message{role: roleHuman, content: query})
	m.streamText = ""
	m.streamBuf.Reset()
	m.input.Reset()
	m.refreshViewport(true)

	return m, tea.Batch(
		m.sendCmd(query),
		streamTickCmd(),
		m.spin.Tick,
	)
}

// handleStreamDone finalizes an in-flight response.
func (m Model) handleStreamDone(msg StreamDoneMsg) (tea.Model, tea.Cmd) {
	if chunk, ok := m.streamBuf.ForceFlush(); ok {
		m.streamText += chunk
	}
	m.cancelStream()

	if m.streamText != "" {
		m.msgs = append(m.msgs, message{role: roleAI, content: m.streamText})
	}
	m.streamText = ""

	if msg.Err != nil {
		m.state = StateError
		m.errText = streamErrorText(msg.Err)
	} else {
		m.state = StateReady
	}
	m.refreshViewport(true)

	// The server may have assigned the thread id and title during the
	// stream; refresh the sidebar.
	return m, m.loadThreadsCmd()
}

// startNewThread clears the open thread so the next send creates one.
func (m *Model) startNewThread() {
	m.registry.Clear()
	m.msgs = nil
	m.streamText = ""
	m.streamBuf.Reset()
	m.state = StateReady
	m.errText = ""
	m.focus = focusInput
	m.input.Focus()
	m.refreshViewport(true)
}

// =============================================================================
// COMMANDS
// =============================================================================

// checkBackendCmd probes the server once at startup.
func (m Model) checkBackendCmd() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return BackendStatusMsg{Err: c.CheckRunning(ctx)}
	}
}

// loadThreadsCmd fetches the thread list for the sidebar.
func (m Model) loadThreadsCmd() tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		threads, err := c.ListThreads(ctx)
		return ThreadsLoadedMsg{Threads: threads, Err: err}
	}
}

// openThreadCmd fetches a thread's messages.
func (m Model) openThreadCmd(threadID string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		msgs, err := c.GetThread(ctx, threadID)
		return ThreadOpenedMsg{ThreadID: threadID, Messages: msgs, Err: err}
	}
}

// deleteThreadCmd deletes a thread.
func (m Model) deleteThreadCmd(threadID string) tea.Cmd {
	c := m.client
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		err := c.DeleteThread(ctx, threadID)
		return ThreadDeletedMsg{ThreadID: threadID, Err: err}
	}
}

// sendCmd starts the streaming request on a goroutine. The network side
// sees full-text snapshots; only the unseen suffix goes into the buffer so
// the render loop appends deltas.
func (m *Model) sendCmd(query string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.setCancelFunc(cancel)

	c := m.client
	buf := m.streamBuf
	return func() tea.Msg {
		seen := 0
		err := c.SendStream(ctx, query, func(s session.MessageState) {
			if len(s.Text) > seen {
				buf.Write(s.Text[seen:])
				seen = len(s.Text)
			}
		})
		return StreamDoneMsg{Err: err}
	}
}

// =============================================================================
// ERROR TEXT
// =============================================================================

// streamErrorText maps a stream failure to a one-line user message.
func streamErrorText(err error) string {
	var content *session.ContentError
	if errors.As(err, &content) {
		return content.Message
	}
	if client.IsNotRunning(err) {
		return "lost connection to the threadline server"
	}
	return err.Error()
}

func openErrorText(err error) string {
	if client.IsThreadNotFound(err) {
		return "thread no longer exists"
	}
	return err.Error()
}
