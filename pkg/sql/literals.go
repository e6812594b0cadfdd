package sql

import (
	"regexp"
	"strings"
)

// RewrittenStatement is a statement ready for execution.
type RewrittenStatement struct {
	// SQL is the statement text after literal rewriting.
	SQL string
	// BoundParams holds structured literal values in placeholder order. When
	// non-empty these are the only arguments bound to the statement.
	BoundParams []any
	// Structured is true when at least one literal was lifted to a placeholder.
	Structured bool
	// BulkDelete marks statements routed to the bulk delete path.
	BulkDelete bool
}

var (
	jsonArrayLiteral  = regexp.MustCompile(`^\s*\[[\s\S]*\]\s*$`)
	jsonObjectLiteral = regexp.MustCompile(`^\s*\{[\s\S]*\}\s*$`)
	bulkDeletePrefix  = regexp.MustCompile(`(?i)^delete\s+from\b`)
)

// IsStructuredLiteral reports whether the inner text of a literal is a JSON
// array or object as a whole.
func IsStructuredLiteral(inner string) bool {
	return jsonArrayLiteral.MatchString(inner) || jsonObjectLiteral.MatchString(inner)
}

// IsBulkDelete reports whether stmt starts with DELETE FROM.
func IsBulkDelete(stmt string) bool {
	return bulkDeletePrefix.MatchString(strings.TrimSpace(stmt))
}

type literal struct {
	start, end int // byte offsets of the quotes in the statement
	inner      string
}

// Rewrite normalizes the quoted literals of stmt.
//
// Structured literals (JSON arrays/objects) are replaced by placeholders and
// their values returned in BoundParams. If the statement has none, every
// plain literal is re-quoted for d instead, turning "\n" escape sequences into
// real newlines. Applying Rewrite to its own output yields the same SQL.
// Statements whose literals cannot be lexed are returned unchanged.
//
// A backslash before a quote is read as an escape, since clients may write
// an embedded quote as \'. A literal whose value ends in a backslash
// ('C:\') therefore does not end where standard SQL says it does. Alone in a
// statement it is left unchanged; followed by other literals the spans are
// misread. Send such values as bound parameters.
func Rewrite(stmt string, d Dialect) RewrittenStatement {
	out := RewrittenStatement{
		SQL:        stmt,
		BulkDelete: IsBulkDelete(stmt),
	}

	literals := scanLiterals(stmt)
	if len(literals) == 0 {
		return out
	}

	structured := false
	for _, lit := range literals {
		if IsStructuredLiteral(lit.inner) {
			structured = true
			break
		}
	}

	var b strings.Builder
	b.Grow(len(stmt))
	last := 0
	for _, lit := range literals {
		b.WriteString(stmt[last:lit.start])
		last = lit.end
		switch {
		case structured && IsStructuredLiteral(lit.inner):
			out.BoundParams = append(out.BoundParams, unescapeQuotes(lit.inner))
			b.WriteString(d.Placeholder(len(out.BoundParams)))
		case structured:
			b.WriteString(stmt[lit.start:lit.end])
		default:
			b.WriteString(d.QuoteString(decodePlain(lit.inner)))
		}
	}
	b.WriteString(stmt[last:])

	out.SQL = b.String()
	out.Structured = structured
	return out
}

// RewriteAll rewrites each statement after decoding its markers.
func RewriteAll(stmts []string, proto MarkerProtocol, d Dialect) []RewrittenStatement {
	out := make([]RewrittenStatement, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, Rewrite(DecodeMarkers(s, proto), d))
	}
	return out
}

func scanLiterals(stmt string) []literal {
	tokens, err := tokenize(stmt)
	if err != nil {
		return nil
	}

	var (
		lits   []literal
		offset int
	)
	for _, tok := range tokens {
		if tok.Type == tokString {
			lits = append(lits, literal{
				start: offset,
				end:   offset + len(tok.Value),
				inner: tok.Value[1 : len(tok.Value)-1],
			})
		}
		offset += len(tok.Value)
	}
	return lits
}

// unescapeQuotes removes the '' and \' escapes of a literal body.
func unescapeQuotes(inner string) string {
	if !strings.ContainsRune(inner, '\'') {
		return inner
	}
	var b strings.Builder
	b.Grow(len(inner))
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		if i+1 < len(inner) && inner[i+1] == '\'' && (c == '\'' || c == '\\') {
			b.WriteByte('\'')
			i++
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

// decodePlain returns the value of a plain literal body.
func decodePlain(inner string) string {
	return strings.ReplaceAll(unescapeQuotes(inner), `\n`, "\n")
}
