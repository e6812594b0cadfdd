package sql

import (
	"fmt"
	"strings"
)

// Markers let callers embed characters that would otherwise be taken as a
// statement delimiter by the textual splitter.
const (
	SemicolonMarker = "[SEMICOLON]"
	NewlineMarker   = "[NEWLINE]"
)

// MarkerProtocol selects which markers are decoded. Clients and server must
// agree on the version; the server never guesses.
type MarkerProtocol string

const (
	// MarkersV1 decodes both [SEMICOLON] and [NEWLINE].
	MarkersV1 MarkerProtocol = "v1"
	// MarkersV2 decodes [SEMICOLON] only; a literal "[NEWLINE]" is preserved.
	MarkersV2 MarkerProtocol = "v2"
)

// ParseMarkerProtocol validates a marker protocol version from configuration.
func ParseMarkerProtocol(version string) (MarkerProtocol, error) {
	switch MarkerProtocol(strings.ToLower(strings.TrimSpace(version))) {
	case "", MarkersV1:
		return MarkersV1, nil
	case MarkersV2:
		return MarkersV2, nil
	}
	return "", fmt.Errorf("unknown marker protocol %q", version)
}

// DecodeMarkers replaces the markers of proto in text and changes nothing else.
func DecodeMarkers(text string, proto MarkerProtocol) string {
	text = strings.ReplaceAll(text, SemicolonMarker, ";")
	if proto != MarkersV2 {
		text = strings.ReplaceAll(text, NewlineMarker, "\n")
	}
	return text
}

// EncodeMarkers prepares a script for the textual splitter. Semicolons (and,
// for v1, newlines) inside string literals, quoted identifiers and comments
// are replaced by markers. Every top level semicolon is followed by a single
// "\n" so it is recognised as a delimiter; a "\r\n" after one becomes "\n".
func EncodeMarkers(script string, proto MarkerProtocol) (string, error) {
	tokens, err := tokenize(script)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.Grow(len(script))
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]
		switch {
		case tok.Type == tokString || tok.Type == tokQuotedIdent || isComment(tok):
			v := strings.ReplaceAll(tok.Value, ";", SemicolonMarker)
			if proto != MarkersV2 {
				v = strings.ReplaceAll(v, "\n", NewlineMarker)
			}
			b.WriteString(v)
		case tok.Type == tokSemicolon:
			b.WriteString(";")
			if i+1 < len(tokens) {
				b.WriteString("\n")
				if tokens[i+1].Type == tokNewline {
					i++
				}
			}
		default:
			b.WriteString(tok.Value)
		}
	}
	return b.String(), nil
}
