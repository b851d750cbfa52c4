// Copyright 2026 The Skiff Authors
// SPDX-License-Identifier: Apache-2.0

package markdown

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/alecthomas/chroma/v2/quick"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// Theme is the palette applied to rendered transcripts.
type Theme struct {
	// Text colors body copy.
	Text lipgloss.TerminalColor
	// Faint colors code spans, link targets, and other secondary text.
	Faint lipgloss.TerminalColor
	// Accent colors headings.
	Accent lipgloss.TerminalColor
	// Border colors rules and table separators.
	Border lipgloss.TerminalColor
}

// DefaultTheme is a readable palette on both light and dark terminals.
func DefaultTheme() Theme {
	return Theme{
		Text:   lipgloss.Color("252"),
		Faint:  lipgloss.Color("245"),
		Accent: lipgloss.Color("81"),
		Border: lipgloss.Color("240"),
	}
}

// The parser configuration never changes and a goldmark.Markdown is
// safe to share; parsing allocates per-call state internally.
var (
	parser     goldmark.Markdown
	parserOnce sync.Once
)

func sharedParser() goldmark.Markdown {
	parserOnce.Do(func() {
		parser = goldmark.New(goldmark.WithExtensions(extension.GFM))
	})
	return parser
}

// wrapBreakpoints are the characters ansi.Wrap may break a line at.
const wrapBreakpoints = " ,.;-+|"

// Render renders markdown as styled terminal text wrapped to width,
// using the default theme.
func Render(input string, width int) string {
	return RenderWithTheme(input, DefaultTheme(), width)
}

// RenderWithTheme renders markdown as styled terminal text wrapped to
// width. Single newlines inside paragraphs become spaces so
// hard-wrapped source reflows; code blocks keep their formatting.
func RenderWithTheme(input string, theme Theme, width int) string {
	if input == "" {
		return ""
	}
	source := []byte(input)
	document := sharedParser().Parser().Parse(text.NewReader(source))

	// Force ANSI256 regardless of environment detection: the output is
	// destined for a TUI viewport, never a plain pipe. SetColorProfile
	// is needed on top of WithProfile because lipgloss re-detects from
	// the environment otherwise.
	styles := lipgloss.NewRenderer(os.Stderr, termenv.WithProfile(termenv.ANSI256))
	styles.SetColorProfile(termenv.ANSI256)

	w := &writer{source: source, theme: theme, width: width, styles: styles}
	ast.Walk(document, w.walk)
	return strings.TrimRight(w.output.String(), "\n")
}

// writer walks the goldmark AST and accumulates styled terminal text.
// Inline content collects in a buffer and is word-wrapped as a unit
// when the enclosing block closes; goldmark's streaming renderer
// interface does not fit that accumulate-then-wrap shape.
type writer struct {
	source []byte
	theme  Theme
	width  int
	styles *lipgloss.Renderer

	output strings.Builder

	// inline collects styled fragments for the current paragraph or
	// heading, flushed with word-wrap when the block closes.
	inline strings.Builder

	// indent is the continuation prefix applied to every emitted line
	// (blockquote bars, list hanging indents). bullet, when set,
	// replaces it for the next line only.
	indent       []string
	indentWidth  int
	bullet       string
	trailingGaps int

	bold          int
	italic        int
	strikethrough int

	lists []listLevel
}

type listLevel struct {
	ordered bool
	counter int
	tight   bool
}

func (w *writer) style() lipgloss.Style {
	return w.styles.NewStyle()
}

// contentWidth is the wrap width after the current indentation, with a
// floor that keeps wrapping from degenerating in deep nesting.
func (w *writer) contentWidth() int {
	width := w.width - w.indentWidth
	if width < 10 {
		width = 10
	}
	return width
}

func (w *writer) pushIndent(prefix string, visible int) {
	w.indent = append(w.indent, prefix)
	w.indentWidth += visible
}

func (w *writer) popIndent() {
	if len(w.indent) == 0 {
		return
	}
	last := w.indent[len(w.indent)-1]
	w.indent = w.indent[:len(w.indent)-1]
	w.indentWidth -= ansi.StringWidth(last)
}

func (w *writer) indentString() string {
	return strings.Join(w.indent, "")
}

// linePrefix returns the prefix for the next emitted line, consuming
// the pending bullet if one is set.
func (w *writer) linePrefix() string {
	if w.bullet != "" {
		bullet := w.bullet
		w.bullet = ""
		return bullet
	}
	return w.indentString()
}

func (w *writer) write(s string) {
	if s == "" {
		return
	}
	w.output.WriteString(s)

	trailing := 0
	allNewlines := true
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] != '\n' {
			allNewlines = false
			break
		}
		trailing++
	}
	if allNewlines {
		w.trailingGaps += trailing
	} else {
		w.trailingGaps = trailing
	}
}

func (w *writer) newline() {
	if w.trailingGaps < 1 {
		w.write("\n")
	}
}

func (w *writer) blankLine() {
	for w.trailingGaps < 2 {
		w.write("\n")
	}
}

// indented prepends line prefixes to every line of content; the first
// line consumes the pending bullet.
func (w *writer) indented(content string) string {
	lines := strings.Split(content, "\n")
	var out strings.Builder
	for i, line := range lines {
		if i == 0 {
			out.WriteString(w.linePrefix())
		} else {
			out.WriteString(w.indentString())
		}
		out.WriteString(line)
		if i < len(lines)-1 {
			out.WriteString("\n")
		}
	}
	return out.String()
}

// flushInline wraps and indents the accumulated inline content,
// resetting the buffer.
func (w *writer) flushInline() string {
	content := w.inline.String()
	w.inline.Reset()
	if content == "" {
		return ""
	}
	return w.indented(ansi.Wrap(content, w.contentWidth(), wrapBreakpoints))
}

// styled applies the active inline styles to a text fragment.
func (w *writer) styled(content string) string {
	style := w.style().Foreground(w.theme.Text)
	if w.bold > 0 {
		style = style.Bold(true)
	}
	if w.italic > 0 {
		style = style.Italic(true)
	}
	if w.strikethrough > 0 {
		style = style.Strikethrough(true)
	}
	return style.Render(content)
}

// inlineOf renders a node's children to a string without disturbing
// the surrounding inline state.
func (w *writer) inlineOf(node ast.Node) string {
	saved := w.inline.String()
	savedBold, savedItalic, savedStrike := w.bold, w.italic, w.strikethrough

	w.inline.Reset()
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		ast.Walk(child, w.walk)
	}
	result := w.inline.String()

	w.inline.Reset()
	w.inline.WriteString(saved)
	w.bold, w.italic, w.strikethrough = savedBold, savedItalic, savedStrike
	return result
}

func (w *writer) inTightList() bool {
	return len(w.lists) > 0 && w.lists[len(w.lists)-1].tight
}

func (w *writer) walk(node ast.Node, entering bool) (ast.WalkStatus, error) {
	switch node.Kind() {
	case ast.KindDocument:

	case ast.KindParagraph, ast.KindTextBlock:
		if entering {
			w.inline.Reset()
		} else if flushed := w.flushInline(); flushed != "" {
			w.write(flushed)
			w.newline()
			if !w.inTightList() {
				w.blankLine()
			}
		}

	case ast.KindHeading:
		if entering {
			w.inline.Reset()
		} else {
			w.closeHeading(node.(*ast.Heading))
		}

	case ast.KindFencedCodeBlock:
		if entering {
			block := node.(*ast.FencedCodeBlock)
			w.writeCodeBlock(nodeLines(block, w.source), string(block.Language(w.source)))
			return ast.WalkSkipChildren, nil
		}

	case ast.KindCodeBlock:
		if entering {
			w.writeCodeBlock(nodeLines(node, w.source), "")
			return ast.WalkSkipChildren, nil
		}

	case ast.KindBlockquote:
		if entering {
			w.pushIndent("│ ", 2)
		} else {
			w.popIndent()
			w.blankLine()
		}

	case ast.KindList:
		if entering {
			list := node.(*ast.List)
			start := 0
			if list.IsOrdered() {
				start = list.Start
			}
			w.lists = append(w.lists, listLevel{ordered: list.IsOrdered(), counter: start, tight: list.IsTight})
		} else {
			if len(w.lists) > 0 {
				w.lists = w.lists[:len(w.lists)-1]
			}
			if !w.inTightList() {
				w.blankLine()
			}
		}

	case ast.KindListItem:
		if entering {
			w.openListItem()
		} else {
			w.popIndent()
			if w.inTightList() {
				w.newline()
			} else {
				w.blankLine()
			}
		}

	case ast.KindThematicBreak:
		if entering {
			rule := w.style().Foreground(w.theme.Border).Render(strings.Repeat("─", w.contentWidth()))
			w.blankLine()
			w.write(w.indented(rule))
			w.newline()
			w.blankLine()
		}

	case ast.KindText:
		if entering {
			textNode := node.(*ast.Text)
			w.inline.WriteString(w.styled(string(textNode.Segment.Value(w.source))))
			if textNode.SoftLineBreak() {
				// Soft breaks become spaces so source hard-wrapped at
				// some other width reflows to this one.
				w.inline.WriteString(" ")
			}
			if textNode.HardLineBreak() {
				w.inline.WriteString("\n")
			}
		}

	case ast.KindString:
		if entering {
			w.inline.WriteString(w.styled(string(node.(*ast.String).Value)))
		}

	case ast.KindEmphasis:
		w.toggleEmphasis(node.(*ast.Emphasis), entering)

	case ast.KindCodeSpan:
		if entering {
			w.writeCodeSpan(node)
			return ast.WalkSkipChildren, nil
		}

	case ast.KindLink:
		if entering {
			link := node.(*ast.Link)
			w.inline.WriteString(w.inlineOf(link))
			if url := string(link.Destination); url != "" {
				w.inline.WriteString(" " + w.style().Foreground(w.theme.Faint).Render("("+url+")"))
			}
			return ast.WalkSkipChildren, nil
		}

	case ast.KindAutoLink:
		if entering {
			url := string(node.(*ast.AutoLink).URL(w.source))
			w.inline.WriteString(w.style().Foreground(w.theme.Faint).Render(url))
		}

	case ast.KindImage:
		if entering {
			image := node.(*ast.Image)
			faint := w.style().Foreground(w.theme.Faint)
			w.inline.WriteString(faint.Render("[" + ansi.Strip(w.inlineOf(image)) + "]"))
			if url := string(image.Destination); url != "" {
				w.inline.WriteString(" " + faint.Render("("+url+")"))
			}
			return ast.WalkSkipChildren, nil
		}

	case extast.KindStrikethrough:
		if entering {
			w.strikethrough++
		} else {
			w.strikethrough--
		}

	case extast.KindTable:
		if entering {
			w.writeTable(node.(*extast.Table))
			return ast.WalkSkipChildren, nil
		}

	case extast.KindTaskCheckBox:
		if entering {
			if node.(*extast.TaskCheckBox).IsChecked {
				w.inline.WriteString(w.style().Foreground(w.theme.Accent).Render("[x]") + " ")
			} else {
				w.inline.WriteString(w.styled("[ ] "))
			}
		}
	}
	return ast.WalkContinue, nil
}

func (w *writer) closeHeading(heading *ast.Heading) {
	// Headings carry their own style; drop whatever styledText applied
	// while the children walked.
	content := ansi.Strip(w.inline.String())
	w.inline.Reset()
	if content == "" {
		return
	}

	style := w.style().Bold(true).Foreground(w.theme.Text)
	if heading.Level <= 2 {
		style = style.Foreground(w.theme.Accent)
	}

	w.blankLine()
	w.write(w.indented(ansi.Wrap(style.Render(content), w.contentWidth(), wrapBreakpoints)))
	w.newline()
	w.blankLine()
}

func (w *writer) openListItem() {
	if len(w.lists) == 0 {
		return
	}
	level := &w.lists[len(w.lists)-1]

	bullet := "- "
	if level.ordered {
		bullet = fmt.Sprintf("%d. ", level.counter)
		level.counter++
	}

	// The bullet replaces the full indent on the item's first line;
	// continuation lines hang under it.
	w.bullet = w.indentString() + bullet
	w.pushIndent(strings.Repeat(" ", len(bullet)), len(bullet))
}

func (w *writer) writeCodeBlock(code, language string) {
	rendered := w.highlight(code, language)
	w.blankLine()
	for _, line := range strings.Split(strings.TrimRight(rendered, "\n"), "\n") {
		w.write(w.linePrefix() + line)
		w.newline()
	}
	w.blankLine()
}

// highlight syntax-highlights code with chroma, falling back to faint
// plain text when the language is unknown or highlighting fails.
func (w *writer) highlight(code, language string) string {
	if language != "" {
		var highlighted strings.Builder
		if err := quick.Highlight(&highlighted, code, language, "terminal256", "monokai"); err == nil {
			return highlighted.String()
		}
	}
	return w.style().Foreground(w.theme.Faint).Render(code)
}

func (w *writer) writeCodeSpan(node ast.Node) {
	var code strings.Builder
	for child := node.FirstChild(); child != nil; child = child.NextSibling() {
		switch typed := child.(type) {
		case *ast.Text:
			code.Write(typed.Segment.Value(w.source))
		case *ast.String:
			code.Write(typed.Value)
		}
	}
	w.inline.WriteString(w.style().Foreground(w.theme.Faint).Render(code.String()))
}

func (w *writer) toggleEmphasis(node *ast.Emphasis, entering bool) {
	counter := &w.italic
	if node.Level >= 2 {
		counter = &w.bold
	}
	if entering {
		*counter++
	} else {
		*counter--
	}
}

// writeTable renders a table with padded columns separated by two
// spaces. Over-wide tables shrink proportionally with a three-column
// character floor; cells that still overflow truncate with an
// ellipsis.
func (w *writer) writeTable(table *extast.Table) {
	var header []string
	var rows [][]string
	for child := table.FirstChild(); child != nil; child = child.NextSibling() {
		switch child.Kind() {
		case extast.KindTableHeader:
			header = w.tableRow(child)
		case extast.KindTableRow:
			rows = append(rows, w.tableRow(child))
		}
	}

	columns := len(header)
	if columns == 0 && len(rows) > 0 {
		columns = len(rows[0])
	}
	if columns == 0 {
		return
	}

	widths := make([]int, columns)
	measure := func(row []string) {
		for i, cell := range row {
			if i < columns && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	measure(header)
	for _, row := range rows {
		measure(row)
	}

	const gap = "  "
	total := len(gap) * (columns - 1)
	for _, width := range widths {
		total += width
	}
	if available := w.contentWidth(); total > available {
		usable := available - len(gap)*(columns-1)
		if usable < columns*3 {
			usable = columns * 3
		}
		for i := range widths {
			widths[i] = widths[i] * usable / total
			if widths[i] < 3 {
				widths[i] = 3
			}
		}
	}

	w.blankLine()
	if len(header) > 0 {
		bold := w.style().Bold(true).Foreground(w.theme.Text)
		w.write(w.linePrefix() + w.tableLine(header, widths, table.Alignments, bold))
		w.newline()

		var rule []string
		for _, width := range widths {
			rule = append(rule, strings.Repeat("─", width))
		}
		w.write(w.indentString() + w.style().Foreground(w.theme.Border).Render(strings.Join(rule, gap)))
		w.newline()
	}
	for _, row := range rows {
		w.write(w.indentString() + w.tableLine(row, widths, table.Alignments, w.style()))
		w.newline()
	}
	w.blankLine()
}

func (w *writer) tableRow(row ast.Node) []string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if cell.Kind() == extast.KindTableCell {
			cells = append(cells, w.inlineOf(cell))
		}
	}
	return cells
}

func (w *writer) tableLine(cells []string, widths []int, alignments []extast.Alignment, style lipgloss.Style) string {
	var parts []string
	for i, width := range widths {
		cell := ""
		if i < len(cells) {
			cell = cells[i]
		}
		if lipgloss.Width(cell) > width {
			cell = ansi.Truncate(cell, width, "…")
		}

		padding := width - lipgloss.Width(cell)
		if padding < 0 {
			padding = 0
		}
		alignment := extast.AlignNone
		if i < len(alignments) {
			alignment = alignments[i]
		}
		switch alignment {
		case extast.AlignRight:
			cell = strings.Repeat(" ", padding) + cell
		case extast.AlignCenter:
			left := padding / 2
			cell = strings.Repeat(" ", left) + cell + strings.Repeat(" ", padding-left)
		default:
			cell += strings.Repeat(" ", padding)
		}
		parts = append(parts, cell)
	}
	return style.Render(strings.Join(parts, "  "))
}

// nodeLines concatenates the source lines of a block node.
func nodeLines(node ast.Node, source []byte) string {
	var out strings.Builder
	lines := node.Lines()
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		out.Write(seg.Value(source))
	}
	return out.String()
}
