// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// styles.go - Shared styling for chatlink commands.
//
// Colors are adaptive: lipgloss picks the light or dark variant from the
// background set by applyTheme. Output is plain when colors are disabled.

package cli

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/rigrun-chatlink/internal/chat"
)

// applyTheme configures lipgloss for the terminal and the ui.theme setting.
func applyTheme(theme string) {
	lipgloss.SetColorProfile(GetColorProfile())
	lipgloss.SetHasDarkBackground(DarkTheme(theme))
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// TitleStyle is used for command titles and the chat banner
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.AdaptiveColor{Light: "25", Dark: "39"})

	// LabelStyle is used for field labels
	LabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "240", Dark: "245"}).
			Width(14)

	// SuccessStyle is used for OK statuses
	SuccessStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "42"}).
			Bold(true)

	// ErrorStyle is used for failures
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "160", Dark: "196"}).
			Bold(true)

	// WarningStyle is used for cancellations and warnings
	WarningStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "166", Dark: "214"})

	// DimStyle is used for secondary information and hints
	DimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "246", Dark: "242"})

	// InfoStyle is used for informational messages
	InfoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "26", Dark: "75"})

	// PromptStyle is used for the chat input prompt
	PromptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "28", Dark: "82"}).
			Bold(true)
)

// =============================================================================
// HELPERS
// =============================================================================

// RenderConditional renders text with style if colors are enabled,
// otherwise returns the text unmodified.
func RenderConditional(style lipgloss.Style, text string) string {
	if !ColorsEnabled() {
		return text
	}
	return style.Render(text)
}

// RenderLabel renders a fixed-width label.
func RenderLabel(label string) string {
	return RenderConditional(LabelStyle, label)
}

// RenderState renders an exchange state with its status color.
func RenderState(state string) string {
	tag := "[" + strings.ToUpper(state) + "]"
	switch strings.ToLower(state) {
	case chat.StateCompleted.String():
		return RenderConditional(SuccessStyle, tag)
	case chat.StateFailed.String():
		return RenderConditional(ErrorStyle, tag)
	case chat.StateCancelled.String():
		return RenderConditional(WarningStyle, tag)
	default:
		return RenderConditional(DimStyle, tag)
	}
}

// RenderSeparator renders a horizontal rule adapted to the terminal width.
func RenderSeparator() string {
	width := GetTerminalWidth() - 4
	if width > 80 {
		width = 80
	}
	return RenderConditional(DimStyle, strings.Repeat("─", width))
}
