// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

// Package markdown renders chat transcripts as styled terminal text.
//
// Assistant replies arrive as GitHub-flavored markdown. This package
// parses them with goldmark and walks the AST directly, collecting
// inline runs and word-wrapping them per block so hard-wrapped source
// reflows cleanly at any terminal width. Fenced code blocks are
// highlighted with chroma.
//
// Output always carries ANSI styling. The caller is a TUI, so the
// usual "is stdout a terminal" detection would wrongly strip color
// under tests and pipes; the color profile is forced instead.
package markdown
