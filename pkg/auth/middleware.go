package auth

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Middleware attaches the caller's claims to requests. It never rejects a
// request itself: handlers decide with Authorize and answer in their own
// error format.
type Middleware struct {
	authService AuthService
	logger      *zap.Logger
}

// NewMiddleware creates a Middleware.
func NewMiddleware(authService AuthService, logger *zap.Logger) *Middleware {
	return &Middleware{
		authService: authService,
		logger:      logger.Named("auth_middleware"),
	}
}

// Authenticate wraps next. Requests with valid credentials get their claims
// in the context; the rest pass through without them.
func (m *Middleware) Authenticate(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, _, err := m.authService.ValidateRequest(r)
		switch {
		case err == nil:
			r = r.WithContext(WithClaims(r.Context(), claims))
		case errors.Is(err, ErrMissingAuthorization):
		default:
			m.logger.Info("Continuing without credentials",
				zap.String("path", r.URL.Path),
				zap.Error(err))
		}
		next(w, r)
	}
}
