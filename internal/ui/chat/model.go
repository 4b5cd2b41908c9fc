// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"github.com/threadline/threadline-tui/internal/client"
	"github.com/threadline/threadline-tui/internal/session"
	"github.com/threadline/threadline-tui/internal/ui/styles"
)

// =============================================================================
// STATE
// =============================================================================

// State represents the current chat interface state.
type State int

const (
	StateReady     State = iota // Ready for input
	StateStreaming              // Receiving a streaming response
	StateError                  // Showing an error
)

// focusArea identifies which pane receives keyboard input.
type focusArea int

const (
	focusInput focusArea = iota
	focusSidebar
)

// message is one rendered chat message.
type message struct {
	role    string // "human" or "ai"
	content string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model for the chat view.
type Model struct {
	// State
	state   State
	errText string

	// Styling
	theme *styles.Theme

	// Dimensions
	width  int
	height int
	ready  bool

	// Backend
	client   *client.Client
	registry *session.Registry

	// Open thread
	msgs []message

	// In-flight response text already drained from the buffer
	streamText string

	// Streaming optimization
	streamBuf *StreamingBuffer
	cancelMgr *cancelManager // Pointer to avoid copying the mutex on Update

	// Thread sidebar
	threads     []client.ThreadInfo
	cursor      int
	showSidebar bool
	focus       focusArea

	// UI components
	viewport viewport.Model
	input    textinput.Model
	spin     spinner.Model

	// Key bindings
	keys KeyMap

	// Markdown rendering; nil means fall back to raw text
	renderer *glamour.TermRenderer
}

// New creates the chat model. The client carries the registry that tracks
// the current thread id.
func New(c *client.Client, showSidebar bool) Model {
	theme := styles.NewTheme()

	input := textinput.New()
	input.Placeholder = "Ask anything..."
	input.Prompt = "> "
	input.PromptStyle = theme.InputPrompt
	input.PlaceholderStyle = theme.InputPlaceholder
	input.CharLimit = 0
	input.Focus()

	spin := spinner.New()
	spin.Spinner = spinner.Dot
	spin.Style = theme.Spinner

	return Model{
		state:       StateReady,
		theme:       theme,
		client:      c,
		registry:    c.Registry(),
		streamBuf:   NewStreamingBuffer(),
		cancelMgr:   newCancelManager(),
		showSidebar: showSidebar,
		focus:       focusInput,
		viewport:    viewport.New(0, 0),
		input:       input,
		spin:        spin,
		keys:        DefaultKeyMap(),
		renderer:    newMarkdownRenderer(defaultWrapWidth),
	}
}

// Init starts the background checks and loads the thread list.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.checkBackendCmd(),
		m.loadThreadsCmd(),
	)
}

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

const defaultWrapWidth = 80

// newMarkdownRenderer builds a Glamour renderer for the given wrap width.
// Returns nil when the terminal cannot support one; callers fall back to
// raw text.
func newMarkdownRenderer(wrapWidth int) *glamour.TermRenderer {
	if wrapWidth < 20 {
		wrapWidth = 20
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrapWidth),
	)
	if err != nil {
		return nil
	}
	return r
}

// renderMarkdown renders assistant text as markdown, falling back to the
// raw text on any failure.
func (m *Model) renderMarkdown(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return out
}
