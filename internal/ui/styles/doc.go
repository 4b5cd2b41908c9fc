// Copyright (c) 2025 Threadline Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles provides the visual styling system for the threadline TUI.

This package defines the color palette and the Theme struct used throughout
the chat interface. All colors use Lip Gloss AdaptiveColor for automatic
light/dark terminal detection.

# Color System (colors.go)

  - Indigo - Primary accent for assistant messages and selections
  - Teal - Brand color for thread titles and user highlights
  - Emerald - Success states and connected indicator
  - Amber - Warnings and pending states
  - Rose - Errors

Message bubbles and UI elements use semantic color tokens (UserBubbleFg,
AssistantBubbleFg, SystemNoticeFg) plus a layered surface system (Surface,
SurfaceDim, Overlay) and hierarchical text colors (TextPrimary,
TextSecondary, TextMuted, TextInverse).

# Theme System (theme.go)

The Theme struct provides runtime color adaptation:

	theme := styles.NewTheme()
	if theme.IsDark {
		// Dark terminal detected
	}
	if theme.HasTrueColor {
		// Terminal supports 16M colors
	}

Themes hold pre-built lipgloss styles grouped by surface: header, message
bubbles, thread sidebar, input area, status bar, and error box. SetSize and
GetLayoutMode drive the responsive layout (the sidebar is hidden below 60
columns).
*/
package styles
