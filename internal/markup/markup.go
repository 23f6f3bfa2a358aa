// Package markup splits comment content into display lines and applies
// syntax highlighting to fenced code blocks.
package markup

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

const fence = "```"

// Line is one display line of a comment.
type Line struct {
	Tokens []Token
	Code   bool // inside a fenced code block
}

// Token is a chunk of text with an optional color.
type Token struct {
	Text  string
	Color string // hex color, empty for default
}

// Plain returns the concatenated text of all tokens.
func (l Line) Plain() string {
	var b strings.Builder
	for _, t := range l.Tokens {
		b.WriteString(t.Text)
	}
	return b.String()
}

// Render splits content into lines. Fence lines themselves are dropped;
// the lines between them are highlighted using the language named after
// the opening fence, or left plain when the language is unknown.
func Render(content string) []Line {
	var out []Line
	var block []string
	inCode := false
	lang := ""

	for _, raw := range strings.Split(strings.ReplaceAll(content, "\r\n", "\n"), "\n") {
		trimmed := strings.TrimSpace(raw)
		if strings.HasPrefix(trimmed, fence) {
			if inCode {
				out = append(out, highlight(lang, block)...)
				block = nil
				inCode = false
			} else {
				inCode = true
				lang = strings.TrimSpace(strings.TrimPrefix(trimmed, fence))
			}
			continue
		}
		if inCode {
			block = append(block, raw)
			continue
		}
		out = append(out, Line{Tokens: []Token{{Text: raw}}})
	}

	// An unterminated fence still renders as code.
	if inCode {
		out = append(out, highlight(lang, block)...)
	}
	return out
}

func highlight(lang string, lines []string) []Line {
	if len(lines) == 0 {
		return nil
	}

	lexer := lexerFor(lang, lines)
	if lexer == nil {
		return plainLines(lines)
	}

	iterator, err := lexer.Tokenise(nil, strings.Join(lines, "\n"))
	if err != nil {
		return plainLines(lines)
	}

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	result := make([]Line, 0, len(lines))
	current := Line{Code: true}
	for _, token := range iterator.Tokens() {
		parts := strings.Split(token.Value, "\n")
		for i, part := range parts {
			if i > 0 {
				result = append(result, current)
				current = Line{Code: true}
			}
			if part != "" {
				current.Tokens = append(current.Tokens, Token{
					Text:  part,
					Color: tokenColor(style, token.Type),
				})
			}
		}
	}
	result = append(result, current)

	// Lexers may swallow a trailing empty line.
	for len(result) < len(lines) {
		result = append(result, Line{Code: true})
	}
	return result[:len(lines)]
}

func plainLines(lines []string) []Line {
	result := make([]Line, len(lines))
	for i, line := range lines {
		result[i] = Line{Tokens: []Token{{Text: line}}, Code: true}
	}
	return result
}

func lexerFor(lang string, lines []string) chroma.Lexer {
	var lexer chroma.Lexer
	if lang != "" {
		lexer = lexers.Get(lang)
	} else {
		lexer = lexers.Analyse(strings.Join(lines, "\n"))
	}
	if lexer != nil {
		lexer = chroma.Coalesce(lexer)
	}
	return lexer
}

func tokenColor(style *chroma.Style, tt chroma.TokenType) string {
	entry := style.Get(tt)
	if entry.Colour.IsSet() {
		return entry.Colour.String()
	}
	return ""
}
