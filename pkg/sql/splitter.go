package sql

import (
	"fmt"
	"strings"
)

// Delimiter separates statements on the wire.
const Delimiter = ";\n"

// SplitMode selects how a script is broken into statements.
type SplitMode string

const (
	// SplitDelimiter splits on the literal ";\n" sequence.
	SplitDelimiter SplitMode = "delimiter"
	// SplitLexer splits on semicolons outside strings, identifiers and comments.
	SplitLexer SplitMode = "lexer"
)

// Splitter breaks a decoded script into statements.
type Splitter interface {
	Split(script string) ([]string, error)
}

// NewSplitter returns the splitter for mode.
func NewSplitter(mode SplitMode) (Splitter, error) {
	switch SplitMode(strings.ToLower(string(mode))) {
	case "", SplitDelimiter:
		return delimiterSplitter{}, nil
	case SplitLexer:
		return lexerSplitter{}, nil
	}
	return nil, fmt.Errorf("unknown splitter %q", mode)
}

type delimiterSplitter struct{}

func (delimiterSplitter) Split(script string) ([]string, error) {
	return Split(script), nil
}

type lexerSplitter struct{}

func (lexerSplitter) Split(script string) ([]string, error) {
	return LexSplit(script)
}

// Split trims script and splits it on every ";\n". The split is purely
// textual: a ";\n" inside a string literal splits it too, which is what the
// markers exist to avoid. Fragments that are blank are dropped.
func Split(script string) []string {
	trimmed := strings.TrimSpace(script)
	if trimmed == "" {
		return nil
	}

	parts := strings.Split(trimmed, Delimiter)
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		stmts = append(stmts, p)
	}
	return stmts
}

// LexSplit splits script on semicolons that are not inside a string literal,
// a quoted identifier or a comment. Statements are trimmed; blank statements
// and statements made only of comments are dropped.
func LexSplit(script string) ([]string, error) {
	tokens, err := tokenize(script)
	if err != nil {
		return nil, err
	}

	var (
		stmts   []string
		current strings.Builder
		hasCode bool
	)
	flush := func() {
		if s := strings.TrimSpace(current.String()); s != "" && hasCode {
			stmts = append(stmts, s)
		}
		current.Reset()
		hasCode = false
	}

	for _, tok := range tokens {
		if tok.Type == tokSemicolon {
			flush()
			continue
		}
		current.WriteString(tok.Value)
		if !isComment(tok) && strings.TrimSpace(tok.Value) != "" {
			hasCode = true
		}
	}
	flush()

	return stmts, nil
}
