package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidAudience is returned for tokens not issued for this service.
	ErrInvalidAudience = errors.New("invalid token audience")
	// ErrUnknownIssuer is returned for tokens from an issuer without a
	// configured JWKS endpoint.
	ErrUnknownIssuer = errors.New("unauthorized issuer")
)

// JWKSClientInterface validates tokens. Tests substitute a mock.
type JWKSClientInterface interface {
	ValidateToken(tokenString string) (*Claims, error)
	Close()
}

// JWKSConfig contains configuration for the JWKS client.
type JWKSConfig struct {
	// EnableVerification controls whether signatures are checked. Without it
	// tokens are only decoded, which is meant for local development.
	EnableVerification bool
	// JWKSEndpoints maps each trusted issuer to its JWKS URL.
	JWKSEndpoints map[string]string
	// Audience, when set, must appear in the token's aud claim.
	Audience string
}

// signingMethods are the asymmetric algorithms a JWKS can serve keys for.
var signingMethods = []string{
	"RS256", "RS384", "RS512",
	"PS256", "PS384", "PS512",
	"ES256", "ES384", "ES512",
}

// JWKSClient validates tokens against the key set of their issuer.
type JWKSClient struct {
	verify   bool
	audience string
	issuers  map[string]keyfunc.Keyfunc
	parser   *jwt.Parser
	cancel   context.CancelFunc
}

var _ JWKSClientInterface = (*JWKSClient)(nil)

// NewJWKSClient loads the key set of every configured issuer and fails if
// one of them cannot be fetched.
func NewJWKSClient(config *JWKSConfig) (*JWKSClient, error) {
	client := &JWKSClient{
		verify:   config.EnableVerification,
		audience: config.Audience,
		issuers:  make(map[string]keyfunc.Keyfunc, len(config.JWKSEndpoints)),
		parser:   jwt.NewParser(jwt.WithValidMethods(signingMethods), jwt.WithExpirationRequired()),
	}
	if !client.verify {
		return client, nil
	}

	// The key sets refresh in the background until Close.
	ctx, cancel := context.WithCancel(context.Background())
	client.cancel = cancel
	for issuer, url := range config.JWKSEndpoints {
		kf, err := keyfunc.NewDefaultCtx(ctx, []string{url})
		if err != nil {
			cancel()
			return nil, fmt.Errorf("failed to load JWKS for issuer %s: %w", issuer, err)
		}
		client.issuers[issuer] = kf
	}
	return client, nil
}

// ValidateToken decodes tokenString and, when verification is enabled,
// checks its signature, algorithm and expiry. The audience is checked in
// both modes.
func (c *JWKSClient) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	if c.verify {
		if _, err := c.parser.ParseWithClaims(tokenString, claims, c.keyFor); err != nil {
			return nil, fmt.Errorf("token validation failed: %w", err)
		}
	} else {
		if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
			return nil, fmt.Errorf("failed to parse token: %w", err)
		}
	}

	if c.audience != "" && !slices.Contains(claims.Audience, c.audience) {
		return nil, ErrInvalidAudience
	}
	return claims, nil
}

func (c *JWKSClient) keyFor(token *jwt.Token) (any, error) {
	issuer, err := token.Claims.GetIssuer()
	if err != nil {
		return nil, err
	}
	kf, ok := c.issuers[issuer]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownIssuer, issuer)
	}
	return kf.Keyfunc(token)
}

// Close stops the background refresh of the key sets.
func (c *JWKSClient) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}
