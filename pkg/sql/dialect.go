package sql

import (
	"strconv"
	"strings"
)

// Dialect describes the parts of a store's SQL syntax the rewriter needs.
type Dialect interface {
	// Placeholder returns the bind marker for the n-th (1-based) parameter.
	Placeholder(n int) string
	// QuoteString returns s as a single-quoted string literal.
	QuoteString(s string) string
}

// PlaceholderStyle names the bind marker family of a driver.
type PlaceholderStyle int

const (
	PlaceholderQuestion PlaceholderStyle = iota // ?
	PlaceholderDollar                           // $1
	PlaceholderAtP                              // @p1
)

// StandardDialect quotes strings by doubling single quotes, which every
// supported store accepts.
type StandardDialect struct {
	Style PlaceholderStyle
}

func (d StandardDialect) Placeholder(n int) string {
	switch d.Style {
	case PlaceholderDollar:
		return "$" + strconv.Itoa(n)
	case PlaceholderAtP:
		return "@p" + strconv.Itoa(n)
	default:
		return "?"
	}
}

func (d StandardDialect) QuoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
