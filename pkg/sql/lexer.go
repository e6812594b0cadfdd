package sql

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2/lexer"
)

// sqlLexer tokenizes just enough SQL to find statement boundaries and quoted
// literals. Anything it does not recognise falls through to Other, so lexing
// never rejects input.
var sqlLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Comment", Pattern: `--[^\r\n]*`},
	{Name: "BlockComment", Pattern: `/\*[^*]*\*+([^/*][^*]*\*+)*/`},
	{Name: "String", Pattern: `'([^'\\]|\\[\s\S]|'')*'`},
	{Name: "QuotedIdent", Pattern: `"([^"]|"")*"`},
	{Name: "Semicolon", Pattern: `;`},
	{Name: "Newline", Pattern: `\r?\n`},
	{Name: "Whitespace", Pattern: `[ \t\f\v\r]+`},
	{Name: "Word", Pattern: `[^\s;'"\-/]+`},
	{Name: "Other", Pattern: `[\s\S]`},
})

var (
	tokComment      = sqlLexer.Symbols()["Comment"]
	tokBlockComment = sqlLexer.Symbols()["BlockComment"]
	tokString       = sqlLexer.Symbols()["String"]
	tokQuotedIdent  = sqlLexer.Symbols()["QuotedIdent"]
	tokSemicolon    = sqlLexer.Symbols()["Semicolon"]
	tokNewline      = sqlLexer.Symbols()["Newline"]
)

// tokenize returns the tokens of text without the trailing EOF token.
func tokenize(text string) ([]lexer.Token, error) {
	lex, err := sqlLexer.Lex("", strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("failed to lex script: %w", err)
	}

	tokens, err := lexer.ConsumeAll(lex)
	if err != nil {
		return nil, fmt.Errorf("failed to lex script: %w", err)
	}

	if n := len(tokens); n > 0 && tokens[n-1].EOF() {
		tokens = tokens[:n-1]
	}
	return tokens, nil
}

func isComment(t lexer.Token) bool {
	return t.Type == tokComment || t.Type == tokBlockComment
}
