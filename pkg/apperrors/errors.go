package apperrors

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidInput marks request-level input failures (missing script,
	// undecodable payload, malformed parameters). The batch never starts.
	ErrInvalidInput = errors.New("invalid input")

	// ErrPermissionDenied marks callers that are neither admin nor hold the
	// full create/read/update/delete grant on the query resource.
	ErrPermissionDenied = errors.New("permission denied")

	ErrUnsupportedStore = errors.New("unsupported store type")
)

// IsRequestError reports whether err is one of the failures that are surfaced
// to the caller as a Bad Request.
func IsRequestError(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrPermissionDenied)
}

// PublicMessage returns the message reported to the caller for err.
// Permission failures never reveal which grant was missing.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPermissionDenied):
		return "Permission denied"
	case errors.Is(err, ErrInvalidInput):
		msg := err.Error()
		if i := strings.Index(msg, ErrInvalidInput.Error()+": "); i >= 0 {
			return msg[i+len(ErrInvalidInput.Error())+2:]
		}
		return msg
	default:
		return err.Error()
	}
}
