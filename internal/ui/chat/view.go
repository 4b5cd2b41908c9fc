// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/threadline/threadline-tui/internal/ui/styles"
	"github.com/threadline/threadline-tui/internal/util"
)

// sidebarWidth is the fixed width of the thread list pane.
const sidebarWidth = 28

// =============================================================================
// LAYOUT HELPERS
// =============================================================================

// sidebarVisible reports whether the thread sidebar fits and is enabled.
func (m Model) sidebarVisible() bool {
	return m.showSidebar && m.theme.GetLayoutMode() == styles.LayoutWide
}

// chatWidth returns the width available to the message area.
func (m Model) chatWidth() int {
	w := m.width
	if m.sidebarVisible() {
		w -= sidebarWidth
	}
	if w < 20 {
		w = 20
	}
	return w
}

// refreshViewport rebuilds the viewport content from the message history
// and the in-flight stream text.
func (m *Model) refreshViewport(gotoBottom bool) {
	m.viewport.SetContent(m.renderMessages())
	if gotoBottom {
		m.viewport.GotoBottom()
	}
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the complete chat interface.
func (m Model) View() string {
	if !m.ready {
		return "Starting threadline..."
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	body := m.viewport.View()
	if m.sidebarVisible() {
		body = lipgloss.JoinHorizontal(lipgloss.Top, m.renderSidebar(), body)
	}
	b.WriteString(body)
	b.WriteString("\n")

	b.WriteString(m.renderInput())
	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())

	return b.String()
}

// renderHeader shows the app name and the open thread title.
func (m Model) renderHeader() string {
	title := "new thread"
	if current, ok := m.registry.Current(); ok {
		title = current
		for _, t := range m.threads {
			if t.ThreadID == current && t.Title != "" {
				title = t.Title
				break
			}
		}
	}

	const brandText = "threadline"
	brand := m.theme.HeaderTitle.Render(brandText)

	// Header padding (2 each side) plus the brand/title gap.
	metaWidth := m.width - util.StringWidth(brandText) - 6
	meta := m.theme.HeaderMeta.Render(util.TruncateWidth(title, metaWidth))
	return m.theme.Header.Width(m.width).Render(brand + "  " + meta)
}

// renderSidebar shows the persisted thread list.
func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(m.theme.SidebarTitle.Render("Threads"))
	b.WriteString("\n\n")

	if len(m.threads) == 0 {
		b.WriteString(m.theme.ThreadMeta.Render("no threads yet"))
	}

	current, _ := m.registry.Current()
	for i, t := range m.threads {
		title := t.Title
		if title == "" {
			title = "(untitled)"
		}
		title = util.TruncateWidth(title, sidebarWidth-6)

		marker := "  "
		if t.ThreadID == current {
			marker = "* "
		}

		style := m.theme.ThreadItem
		if i == m.cursor && m.focus == focusSidebar {
			style = m.theme.ThreadItemSelected
		}
		b.WriteString(style.Render(marker + title))
		b.WriteString("\n")
	}

	return m.theme.Sidebar.
		Width(sidebarWidth - 2).
		Height(m.viewport.Height).
		Render(b.String())
}

// renderMessages builds the scrollable transcript.
func (m Model) renderMessages() string {
	bubbleWidth := m.chatWidth() - 8
	if bubbleWidth < 16 {
		bubbleWidth = 16
	}

	var parts []string
	for _, msg := range m.msgs {
		switch msg.role {
		case roleHuman:
			parts = append(parts, m.theme.UserBubble.MaxWidth(bubbleWidth).Render(msg.content))
		case roleAI:
			parts = append(parts, m.theme.AssistantBubble.MaxWidth(bubbleWidth).Render(m.renderMarkdown(msg.content)))
		default:
			parts = append(parts, m.theme.SystemNotice.MaxWidth(bubbleWidth).Render(msg.content))
		}
	}

	// The in-flight response renders as raw text; markdown is applied once
	// the stream completes, partial markup renders poorly.
	if m.state == StateStreaming {
		tail := m.streamText
		if tail == "" {
			tail = m.spin.View() + m.theme.ThinkingText.Render(" thinking...")
		}
		parts = append(parts, m.theme.AssistantBubble.MaxWidth(bubbleWidth).Render(tail))
	}

	if len(parts) == 0 {
		return m.theme.ThinkingText.Render("Type a message to start a thread.")
	}
	return strings.Join(parts, "\n")
}

// renderInput shows the input field with a focus-aware border.
func (m Model) renderInput() string {
	style := m.theme.InputContainer
	if m.focus == focusInput && m.state != StateStreaming {
		style = m.theme.InputContainerOn
	}
	return style.Width(m.chatWidth() - 2).Render(m.input.View())
}

// renderStatusBar shows errors, streaming state, or the shortcut help.
func (m Model) renderStatusBar() string {
	var content string
	switch {
	case m.errText != "":
		content = m.theme.StatusError.Render("error: ") + m.errText + m.theme.ShortcutDesc.Render("  (Esc to dismiss)")
	case m.state == StateStreaming:
		content = m.spin.View() + m.theme.ThinkingText.Render(" streaming  ") +
			m.theme.ShortcutKey.Render("Esc") + m.theme.ShortcutDesc.Render(" cancel")
	default:
		var parts []string
		for _, binding := range m.keys.ShortHelp() {
			parts = append(parts,
				m.theme.ShortcutKey.Render(binding.Help().Key)+" "+
					m.theme.ShortcutDesc.Render(binding.Help().Desc))
		}
		content = strings.Join(parts, "  ")
	}
	return m.theme.StatusBar.Width(m.width).Render(content)
}
