package highlight

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
)

// Token is a syntax-highlighted span of a single line. Columns are
// zero-based rune offsets.
type Token struct {
	Text        string `json:"text"`
	Kind        string `json:"kind"`
	StartColumn int    `json:"start_column"`
	EndColumn   int    `json:"end_column"`
}

// Tokens splits one line of source into syntax tokens for the file at
// path. Returns nil when no lexer matches the path or tokenizing fails;
// callers fall back to plain text.
func Tokens(path, source string) []Token {
	if source == "" {
		return nil
	}
	lexer := lexers.Match(path)
	if lexer == nil {
		return nil
	}
	lexer = chroma.Coalesce(lexer)
	iterator, err := lexer.Tokenise(nil, source)
	if err != nil {
		return nil
	}
	var tokens []Token
	col := 0
	for token := iterator(); token != chroma.EOF; token = iterator() {
		text := strings.TrimSuffix(token.Value, "\n")
		if text == "" {
			continue
		}
		width := len([]rune(text))
		tokens = append(tokens, Token{
			Text:        text,
			Kind:        token.Type.String(),
			StartColumn: col,
			EndColumn:   col + width,
		})
		col += width
	}
	return tokens
}

// LanguageTag returns the fenced-code-block tag for the file at path
// ("go", "python", ...), or empty when the language is unknown.
func LanguageTag(path string) string {
	lexer := lexers.Match(path)
	if lexer == nil {
		return ""
	}
	aliases := lexer.Config().Aliases
	if len(aliases) > 0 {
		return aliases[0]
	}
	return strings.ToLower(lexer.Config().Name)
}
