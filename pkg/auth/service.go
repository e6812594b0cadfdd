package auth

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization")
	ErrInvalidAuthFormat    = errors.New("invalid authorization header format")
)

// TokenQueryParam carries the token for clients that cannot set headers.
// The Authorization header wins when both are present.
const TokenQueryParam = "access_token"

// AuthService extracts and validates caller credentials.
type AuthService interface {
	// ValidateRequest returns the claims and raw token of the caller.
	ValidateRequest(r *http.Request) (*Claims, string, error)
}

type authService struct {
	jwksClient JWKSClientInterface
	logger     *zap.Logger
}

var _ AuthService = (*authService)(nil)

// NewAuthService creates an AuthService backed by jwksClient.
func NewAuthService(jwksClient JWKSClientInterface, logger *zap.Logger) AuthService {
	return &authService{
		jwksClient: jwksClient,
		logger:     logger.Named("auth"),
	}
}

func (s *authService) ValidateRequest(r *http.Request) (*Claims, string, error) {
	token, source, err := extractToken(r)
	if err != nil {
		s.logger.Debug("No usable token in request",
			zap.String("path", r.URL.Path),
			zap.Error(err))
		return nil, "", err
	}

	claims, err := s.jwksClient.ValidateToken(token)
	if err != nil {
		s.logger.Debug("Token rejected",
			zap.String("path", r.URL.Path),
			zap.String("token_source", source),
			zap.Error(err))
		return nil, "", err
	}
	return claims, token, nil
}

// extractToken reads "Authorization: Bearer <token>" (scheme is case
// insensitive) or the access_token query parameter.
func extractToken(r *http.Request) (token, source string, err error) {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
		value = strings.TrimSpace(value)
		if !ok || !strings.EqualFold(scheme, "Bearer") || value == "" || strings.ContainsAny(value, " \t") {
			return "", "", ErrInvalidAuthFormat
		}
		return value, "header", nil
	}
	if value := r.URL.Query().Get(TokenQueryParam); value != "" {
		return value, "query", nil
	}
	return "", "", ErrMissingAuthorization
}
