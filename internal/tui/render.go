package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"github.com/sprite-ai/cmtree/internal/markup"
	"github.com/sprite-ai/cmtree/internal/model"
	"github.com/sprite-ai/cmtree/internal/tree"
)

// Guide returns the tree guide prefix for an item: one column per
// ancestor level, with a vertical line where the spacing mask has one.
func Guide(it tree.Item) string {
	var b strings.Builder
	for level := 1; level < it.Depth; level++ {
		if it.HasSpacing(level) {
			b.WriteString("│ ")
		} else {
			b.WriteString("  ")
		}
	}
	return b.String()
}

// Marker is the glyph in front of the author name.
func Marker(it tree.Item) string {
	switch {
	case it.Collapsed:
		return "▸"
	case it.HasChildren:
		return "▾"
	default:
		return "•"
	}
}

// ScoreText returns the score label, or a placeholder while the score of
// a young comment is hidden.
func ScoreText(it tree.Item) string {
	if !it.ScoreVisible {
		return "• points"
	}
	if it.Score == 1 || it.Score == -1 {
		return fmt.Sprintf("%d point", it.Score)
	}
	return fmt.Sprintf("%d points", it.Score)
}

// Age formats the comment's age relative to now.
func Age(it tree.Item, now time.Time) string {
	return humanize.RelTime(it.Comment.Created, now, "ago", "from now")
}

// renderHeader builds the author line of a comment, cut to width cells.
func renderHeader(it tree.Item, now time.Time, width int) string {
	var b strings.Builder
	b.WriteString(Marker(it))
	b.WriteByte(' ')
	b.WriteString(authorStyle.Render(it.Comment.Name))
	if it.OPBadge {
		b.WriteString(" " + opBadgeStyle.Render("OP"))
	}
	b.WriteString(metaStyle.Render(" · "))
	b.WriteString(scoreStyle.Render(ScoreText(it)))
	b.WriteString(metaStyle.Render(" · " + Age(it, now)))

	switch it.Vote {
	case model.VoteUp:
		b.WriteString(" " + voteUpStyle.Render("▲"))
	case model.VoteDown:
		b.WriteString(" " + voteDownStyle.Render("▼"))
	}

	if it.Collapsed {
		b.WriteString(" " + hiddenStyle.Render(fmt.Sprintf("[+%d hidden]", it.HiddenCount)))
	}
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(b.String(), width, "…")
}

// renderContent renders the comment body, one string per display line.
func renderContent(it tree.Item, width int) []string {
	lines := markup.Render(it.Comment.Content)
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		out = append(out, styleLine(line, width))
	}
	return out
}

func styleLine(line markup.Line, width int) string {
	base := contentStyle
	if line.Code {
		base = codeStyle
	}

	var b strings.Builder
	remaining := width
	for _, tok := range line.Tokens {
		if remaining <= 0 {
			break
		}
		text := truncate(tok.Text, remaining)
		remaining -= len([]rune(text))

		style := base
		if tok.Color != "" {
			style = lipgloss.NewStyle().Foreground(lipgloss.Color(tok.Color))
		}
		b.WriteString(style.Render(text))
	}
	return b.String()
}

// renderItem renders a whole comment block: header, then content.
func renderItem(it tree.Item, width int, now time.Time, cursor bool) []string {
	prefix := guideStyle.Render(Guide(it))
	gutter := " "
	if it.Selected {
		gutter = selectedMarkStyle.Render("▌")
	}

	header := renderHeader(it, now, width-lipgloss.Width(prefix)-1)
	if cursor {
		header = cursorStyle.Render(header)
	}

	lines := []string{gutter + prefix + header}
	contentWidth := width - lipgloss.Width(prefix) - 3
	for _, l := range renderContent(it, contentWidth) {
		lines = append(lines, gutter+prefix+"  "+l)
	}
	return lines
}

func truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return s
}
