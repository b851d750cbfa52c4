// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// composerMaxLines caps the composer's visible height; longer drafts
// scroll within it.
const composerMaxLines = 5

// Composer is a small multi-line text editor for the message being
// drafted. It implements its own rune-level editing with cursor
// tracking rather than wrapping a textarea widget, which keeps the
// key handling and rendering in one visible place.
type Composer struct {
	lines   [][]rune
	cursorY int
	cursorX int
	theme   Theme
}

// NewComposer creates an empty, focused composer.
func NewComposer(theme Theme) Composer {
	return Composer{lines: [][]rune{{}}, theme: theme}
}

// Value returns the drafted text.
func (composer Composer) Value() string {
	parts := make([]string, len(composer.lines))
	for i, line := range composer.lines {
		parts[i] = string(line)
	}
	return strings.Join(parts, "\n")
}

// Empty reports whether the draft trims to nothing.
func (composer Composer) Empty() bool {
	return strings.TrimSpace(composer.Value()) == ""
}

// Reset clears the draft.
func (composer *Composer) Reset() {
	composer.lines = [][]rune{{}}
	composer.cursorY = 0
	composer.cursorX = 0
}

// Height returns the number of terminal lines the composer occupies.
func (composer Composer) Height() int {
	height := len(composer.lines)
	if height > composerMaxLines {
		height = composerMaxLines
	}
	return height
}

// InsertNewline splits the current line at the cursor.
func (composer *Composer) InsertNewline() {
	line := composer.lines[composer.cursorY]
	before := make([]rune, composer.cursorX)
	copy(before, line[:composer.cursorX])
	after := make([]rune, len(line)-composer.cursorX)
	copy(after, line[composer.cursorX:])

	composer.lines[composer.cursorY] = before
	expanded := make([][]rune, len(composer.lines)+1)
	copy(expanded, composer.lines[:composer.cursorY+1])
	expanded[composer.cursorY+1] = after
	copy(expanded[composer.cursorY+2:], composer.lines[composer.cursorY+1:])
	composer.lines = expanded
	composer.cursorY++
	composer.cursorX = 0
}

// Update processes one key message.
func (composer *Composer) Update(message tea.KeyMsg) {
	switch message.Type {
	case tea.KeyRunes, tea.KeySpace:
		for _, character := range message.Runes {
			composer.insertRune(character)
		}

	case tea.KeyBackspace:
		if composer.cursorX > 0 {
			line := composer.lines[composer.cursorY]
			composer.lines[composer.cursorY] = append(line[:composer.cursorX-1], line[composer.cursorX:]...)
			composer.cursorX--
		} else if composer.cursorY > 0 {
			previous := composer.lines[composer.cursorY-1]
			current := composer.lines[composer.cursorY]
			composer.cursorX = len(previous)
			composer.lines[composer.cursorY-1] = append(previous, current...)
			composer.lines = append(composer.lines[:composer.cursorY], composer.lines[composer.cursorY+1:]...)
			composer.cursorY--
		}

	case tea.KeyDelete:
		line := composer.lines[composer.cursorY]
		if composer.cursorX < len(line) {
			composer.lines[composer.cursorY] = append(line[:composer.cursorX], line[composer.cursorX+1:]...)
		} else if composer.cursorY < len(composer.lines)-1 {
			next := composer.lines[composer.cursorY+1]
			composer.lines[composer.cursorY] = append(line, next...)
			composer.lines = append(composer.lines[:composer.cursorY+1], composer.lines[composer.cursorY+2:]...)
		}

	case tea.KeyLeft:
		if composer.cursorX > 0 {
			composer.cursorX--
		} else if composer.cursorY > 0 {
			composer.cursorY--
			composer.cursorX = len(composer.lines[composer.cursorY])
		}

	case tea.KeyRight:
		line := composer.lines[composer.cursorY]
		if composer.cursorX < len(line) {
			composer.cursorX++
		} else if composer.cursorY < len(composer.lines)-1 {
			composer.cursorY++
			composer.cursorX = 0
		}

	case tea.KeyUp:
		if composer.cursorY > 0 {
			composer.cursorY--
			composer.clampCursor()
		}

	case tea.KeyDown:
		if composer.cursorY < len(composer.lines)-1 {
			composer.cursorY++
			composer.clampCursor()
		}

	case tea.KeyHome, tea.KeyCtrlA:
		composer.cursorX = 0

	case tea.KeyEnd, tea.KeyCtrlE:
		composer.cursorX = len(composer.lines[composer.cursorY])
	}
}

func (composer *Composer) insertRune(character rune) {
	line := composer.lines[composer.cursorY]
	expanded := make([]rune, len(line)+1)
	copy(expanded, line[:composer.cursorX])
	expanded[composer.cursorX] = character
	copy(expanded[composer.cursorX+1:], line[composer.cursorX:])
	composer.lines[composer.cursorY] = expanded
	composer.cursorX++
}

func (composer *Composer) clampCursor() {
	if composer.cursorX > len(composer.lines[composer.cursorY]) {
		composer.cursorX = len(composer.lines[composer.cursorY])
	}
}

// View renders the composer at the given width. The prompt marks the
// first line; continuation lines hang under it. The cursor renders as
// a reverse-video cell.
func (composer Composer) View(width int) string {
	prompt := lipgloss.NewStyle().Foreground(composer.theme.HeaderForeground).Render("> ")
	continuation := "  "
	textStyle := lipgloss.NewStyle().Foreground(composer.theme.NormalText)
	cursorStyle := lipgloss.NewStyle().Reverse(true)

	// Show the window of lines containing the cursor.
	first := 0
	if composer.cursorY >= composerMaxLines {
		first = composer.cursorY - composerMaxLines + 1
	}
	last := first + composer.Height()

	var out strings.Builder
	for index := first; index < last && index < len(composer.lines); index++ {
		line := composer.lines[index]
		var rendered string
		if index == composer.cursorY {
			before := string(line[:composer.cursorX])
			under := " "
			after := ""
			if composer.cursorX < len(line) {
				under = string(line[composer.cursorX])
				after = string(line[composer.cursorX+1:])
			}
			rendered = textStyle.Render(before) + cursorStyle.Render(under) + textStyle.Render(after)
		} else {
			rendered = textStyle.Render(string(line))
		}

		marker := continuation
		if index == 0 {
			marker = prompt
		}
		out.WriteString(ansi.Truncate(marker+rendered, width, "…"))
		if index < last-1 && index < len(composer.lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}
