// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// Package chatui is the interactive terminal UI for chatting with an
// agent through a Skiff gateway.
//
// The bubbletea model composes three regions: a scrollable transcript
// viewport, a one-to-few-line composer, and a status line deriving its
// text from the session's agent status and the supervisor's connection
// state. The model itself holds no conversation state; it repaints
// from [chat.Session] whenever the session or supervisor reports a
// change (wired to program.Send by the caller).
package chatui
