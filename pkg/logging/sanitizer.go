// Package logging builds the process logger and scrubs values before they
// are logged.
package logging

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxQueryLogLength is the number of characters of a statement that are logged.
	MaxQueryLogLength = 200
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx up to the next delimiter
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	jwtPattern = regexp.MustCompile(`Bearer\s+[A-Za-z0-9-_]+\.[A-Za-z0-9-_]+\.[A-Za-z0-9-_]*`)

	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|apikey|key)=[A-Za-z0-9-_]{20,}`)

	// user:pass@host in postgresql:// and sqlserver:// URLs
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/?\s]+`)
)

type redaction struct {
	pattern     *regexp.Regexp
	replacement string
}

var (
	credentialRedactions = []redaction{
		{passwordPattern, "${1}=" + RedactedText},
		{connStringPattern, "://" + RedactedText + "@" + RedactedText},
	}
	errorRedactions = []redaction{
		{passwordPattern, "${1}=" + RedactedText},
		{jwtPattern, "Bearer " + RedactedText},
		{apiKeyPattern, "${1}=" + RedactedText},
		{connStringPattern, "://" + RedactedText + "@" + RedactedText},
	}
	queryRedactions = []redaction{
		{passwordPattern, "${1}=" + RedactedText},
		{apiKeyPattern, "${1}=" + RedactedText},
	}
)

func redact(s string, rules []redaction) string {
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.replacement)
	}
	return s
}

// SanitizeConnectionString removes credentials from a DSN or store URL.
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}
	return redact(connStr, credentialRedactions)
}

// SanitizeError returns the message of err with credentials and tokens
// removed. Driver errors can echo connection strings.
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}
	return redact(err.Error(), errorRedactions)
}

// SanitizeQuery prepares a statement for a single log field: whitespace runs
// are collapsed, the text is cut to MaxQueryLogLength characters and
// password or key assignments are redacted.
func SanitizeQuery(query string) string {
	if query == "" {
		return ""
	}
	collapsed := strings.Join(strings.Fields(query), " ")
	return redact(TruncateString(collapsed, MaxQueryLogLength), queryRedactions)
}

// TruncateString cuts s to maxLen characters and appends an ellipsis if it
// was longer. It never splits a multi-byte character.
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	if maxLen <= 0 {
		return "..."
	}
	n := 0
	for i := range s {
		if n == maxLen {
			return s[:i] + "..."
		}
		n++
	}
	return s
}
