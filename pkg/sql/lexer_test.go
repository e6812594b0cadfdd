package sql

import (
	"strings"
	"testing"

	"github.com/alecthomas/participle/v2/lexer"
)

func tokenTexts(t *testing.T, text string, typ lexer.TokenType) []string {
	t.Helper()
	tokens, err := tokenize(text)
	if err != nil {
		t.Fatalf("tokenize failed: %v", err)
	}
	var out []string
	for _, tok := range tokens {
		if tok.Type == typ {
			out = append(out, tok.Value)
		}
	}
	return out
}

func TestTokenize_CoversInput(t *testing.T) {
	inputs := []string{
		"SELECT 1;\nSELECT 2",
		"INSERT INTO t VALUES ('a;b', 'it''s', 'c\\'d'); -- done;\n",
		"SELECT \"odd;name\" FROM t /* a; b */ WHERE x = 'unterminated",
		"a-b/c\r\n\t;",
		"",
	}

	for _, in := range inputs {
		tokens, err := tokenize(in)
		if err != nil {
			t.Fatalf("tokenize(%q) failed: %v", in, err)
		}
		var b strings.Builder
		for _, tok := range tokens {
			b.WriteString(tok.Value)
		}
		if b.String() != in {
			t.Errorf("tokens of %q concatenate to %q", in, b.String())
		}
	}
}

func TestTokenize_Strings(t *testing.T) {
	got := tokenTexts(t, "VALUES ('a;b', 'it''s', 'c\\'d', '')", tokString)
	want := []string{"'a;b'", "'it''s'", "'c\\'d'", "''"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("got strings %q, want %q", got, want)
	}
}

func TestTokenize_SemicolonsOutsideLiterals(t *testing.T) {
	text := "SELECT 'x;y', \"a;b\" /* c; */ -- d;\n; SELECT 2;"
	if got := len(tokenTexts(t, text, tokSemicolon)); got != 2 {
		t.Errorf("expected 2 top level semicolons, got %d", got)
	}
}

func TestTokenize_UnterminatedStringIsNotAString(t *testing.T) {
	if got := tokenTexts(t, "SELECT 'open", tokString); len(got) != 0 {
		t.Errorf("expected no string tokens, got %q", got)
	}
}
