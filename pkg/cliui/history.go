package cliui

import (
	"strings"

	"github.com/charmbracelet/x/ansi"

	"github.com/papercomputeco/parley/pkg/conversation"
)

const (
	// HistoryWidth is the column at which turn bodies are wrapped.
	HistoryWidth = 72

	// HistoryIndent is the indentation of turn bodies under their heading.
	HistoryIndent = 4
)

// FormatTurn renders one turn as a styled speaker heading followed by its
// body, word-wrapped at HistoryWidth and indented by HistoryIndent. Leading
// spaces of a body line are kept on top of the indent.
func FormatTurn(t conversation.Turn) string {
	var b strings.Builder
	b.WriteString(SpeakerStyle(t.Speaker).Render(SpeakerLabel(t.Speaker) + ":"))
	b.WriteString("\n")
	b.WriteString(WrapIndent(t.Text, HistoryWidth, HistoryIndent))
	return b.String()
}

// FormatHistory renders every non-placeholder turn with FormatTurn,
// separated by blank lines.
func FormatHistory(turns []conversation.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Placeholder {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatTurn(t))
	}
	return b.String()
}

// WrapIndent wraps each line of s at width columns and indents it by indent
// spaces plus the line's own leading spaces. Blank lines are kept. Every
// output line ends with a newline.
func WrapIndent(s string, width, indent int) string {
	var b strings.Builder
	for line := range strings.SplitSeq(s, "\n") {
		trimmed := strings.TrimLeft(line, " ")
		if trimmed == "" {
			b.WriteString("\n")
			continue
		}

		pad := strings.Repeat(" ", indent+len(line)-len(trimmed))
		for wrapped := range strings.SplitSeq(ansi.Wordwrap(trimmed, width, ""), "\n") {
			b.WriteString(pad)
			b.WriteString(strings.TrimRight(wrapped, " "))
			b.WriteString("\n")
		}
	}
	return b.String()
}
