// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/skiff-systems/skiff/lib/markdown"
)

// Theme defines the chat UI palette. All colors are lipgloss ANSI
// 256-color codes for broad terminal compatibility.
type Theme struct {
	NormalText lipgloss.Color
	FaintText  lipgloss.Color

	// Role labels in the transcript.
	UserLabel      lipgloss.Color
	AssistantLabel lipgloss.Color
	ToolLabel      lipgloss.Color

	// UI chrome.
	HeaderForeground lipgloss.Color
	BorderColor      lipgloss.Color

	// Status line.
	StatusBusy  lipgloss.Color
	StatusError lipgloss.Color
	StatusDone  lipgloss.Color
}

// DefaultTheme returns the built-in palette.
func DefaultTheme() Theme {
	return Theme{
		NormalText:       lipgloss.Color("252"),
		FaintText:        lipgloss.Color("245"),
		UserLabel:        lipgloss.Color("39"),
		AssistantLabel:   lipgloss.Color("81"),
		ToolLabel:        lipgloss.Color("179"),
		HeaderForeground: lipgloss.Color("117"),
		BorderColor:      lipgloss.Color("240"),
		StatusBusy:       lipgloss.Color("179"),
		StatusError:      lipgloss.Color("203"),
		StatusDone:       lipgloss.Color("78"),
	}
}

// Markdown maps the UI palette onto the transcript renderer's theme.
func (theme Theme) Markdown() markdown.Theme {
	return markdown.Theme{
		Text:   theme.NormalText,
		Faint:  theme.FaintText,
		Accent: theme.AssistantLabel,
		Border: theme.BorderColor,
	}
}
