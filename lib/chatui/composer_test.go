// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package chatui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
)

func typeString(composer *Composer, input string) {
	for _, character := range input {
		composer.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{character}})
	}
}

func TestComposerTyping(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	typeString(&composer, "hello")

	if got := composer.Value(); got != "hello" {
		t.Errorf("Value = %q, want hello", got)
	}
	if composer.Empty() {
		t.Error("Empty = true with content")
	}
}

func TestComposerNewlineAndHeight(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	typeString(&composer, "first")
	composer.InsertNewline()
	typeString(&composer, "second")

	if got := composer.Value(); got != "first\nsecond" {
		t.Errorf("Value = %q", got)
	}
	if got := composer.Height(); got != 2 {
		t.Errorf("Height = %d, want 2", got)
	}
}

func TestComposerNewlineSplitsAtCursor(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	typeString(&composer, "headtail")
	for range "tail" {
		composer.Update(tea.KeyMsg{Type: tea.KeyLeft})
	}
	composer.InsertNewline()

	if got := composer.Value(); got != "head\ntail" {
		t.Errorf("Value = %q, want head\\ntail", got)
	}
}

func TestComposerBackspaceJoinsLines(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	typeString(&composer, "ab")
	composer.InsertNewline()
	typeString(&composer, "cd")

	composer.Update(tea.KeyMsg{Type: tea.KeyHome})
	composer.Update(tea.KeyMsg{Type: tea.KeyBackspace})

	if got := composer.Value(); got != "abcd" {
		t.Errorf("Value = %q, want abcd", got)
	}
}

func TestComposerReset(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	typeString(&composer, "draft")
	composer.Reset()

	if !composer.Empty() {
		t.Errorf("Value after Reset = %q, want empty", composer.Value())
	}
	if got := composer.Height(); got != 1 {
		t.Errorf("Height after Reset = %d, want 1", got)
	}
}

func TestComposerHeightCapped(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	for range 10 {
		composer.InsertNewline()
	}
	if got := composer.Height(); got != composerMaxLines {
		t.Errorf("Height = %d, want cap %d", got, composerMaxLines)
	}
}

func TestComposerView(t *testing.T) {
	composer := NewComposer(DefaultTheme())
	typeString(&composer, "hi")
	composer.InsertNewline()
	typeString(&composer, "there")

	view := ansi.Strip(composer.View(40))
	lines := strings.Split(view, "\n")
	if len(lines) != 2 {
		t.Fatalf("view has %d lines, want 2:\n%s", len(lines), view)
	}
	if !strings.HasPrefix(lines[0], "> hi") {
		t.Errorf("first line = %q, want prompt prefix", lines[0])
	}
	if !strings.HasPrefix(lines[1], "  there") {
		t.Errorf("continuation line = %q", lines[1])
	}
}
