package sql

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/klauspost/compress/flate"

	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
)

// Encoding selects how the query field of a request carries the script.
// Exactly one encoding is active per deployment; payloads are never sniffed.
type Encoding string

const (
	// EncodingPlain carries the script as-is.
	EncodingPlain Encoding = "plain"
	// EncodingDeflate carries base64 of the raw DEFLATE compressed script.
	EncodingDeflate Encoding = "deflate"
)

// MaxScriptBytes caps the size of an inflated script.
const MaxScriptBytes = 64 << 20

// ScriptRequest is the JSON body accepted by the query endpoint.
type ScriptRequest struct {
	Query      string     `json:"query"`
	Parameters Parameters `json:"parameters,omitempty"`
}

// ParseEncoding validates an encoding name from configuration.
func ParseEncoding(name string) (Encoding, error) {
	switch Encoding(strings.ToLower(strings.TrimSpace(name))) {
	case "", EncodingPlain:
		return EncodingPlain, nil
	case EncodingDeflate:
		return EncodingDeflate, nil
	}
	return "", fmt.Errorf("unknown payload encoding %q", name)
}

// DecodePayload turns the request payload into a single script string.
//
// Errors wrap apperrors.ErrInvalidInput so the caller reports them as a bad
// request without starting the batch.
func DecodePayload(req ScriptRequest, enc Encoding) (string, error) {
	if strings.TrimSpace(req.Query) == "" {
		return "", fmt.Errorf("%w: No query specified", apperrors.ErrInvalidInput)
	}

	switch enc {
	case EncodingPlain, "":
		return req.Query, nil
	case EncodingDeflate:
		script, err := inflate(req.Query)
		if err != nil {
			return "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
		}
		if strings.TrimSpace(script) == "" {
			return "", fmt.Errorf("%w: No query specified", apperrors.ErrInvalidInput)
		}
		return script, nil
	default:
		return "", fmt.Errorf("%w: unsupported payload encoding %q", apperrors.ErrInvalidInput, enc)
	}
}

// EncodePayload produces the wire form of script for the given encoding.
func EncodePayload(script string, enc Encoding) (string, error) {
	switch enc {
	case EncodingPlain, "":
		return script, nil
	case EncodingDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.BestCompression)
		if err != nil {
			return "", fmt.Errorf("failed to create deflate writer: %w", err)
		}
		if _, err := io.WriteString(w, script); err != nil {
			return "", fmt.Errorf("failed to compress script: %w", err)
		}
		if err := w.Close(); err != nil {
			return "", fmt.Errorf("failed to compress script: %w", err)
		}
		return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
	default:
		return "", fmt.Errorf("unsupported payload encoding %q", enc)
	}
}

func inflate(encoded string) (string, error) {
	raw, err := decodeBase64(strings.TrimSpace(encoded))
	if err != nil {
		return "", fmt.Errorf("invalid base64 payload: %w", err)
	}

	r := flate.NewReader(bytes.NewReader(raw))
	defer r.Close()

	data, err := io.ReadAll(io.LimitReader(r, MaxScriptBytes+1))
	if err != nil {
		return "", fmt.Errorf("failed to decompress payload: %w", err)
	}
	if len(data) > MaxScriptBytes {
		return "", fmt.Errorf("decompressed payload exceeds %d bytes", MaxScriptBytes)
	}
	if !utf8.Valid(data) {
		return "", fmt.Errorf("decompressed payload is not valid UTF-8")
	}
	return string(data), nil
}

// decodeBase64 accepts padded and unpadded, standard and URL-safe alphabets.
func decodeBase64(s string) ([]byte, error) {
	var firstErr error
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding,
		base64.RawStdEncoding,
		base64.URLEncoding,
		base64.RawURLEncoding,
	} {
		raw, err := enc.DecodeString(s)
		if err == nil {
			return raw, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, firstErr
}
