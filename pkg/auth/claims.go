// Package auth authenticates callers with JWTs validated against JWKS
// endpoints and decides whether they may run batches.
package auth

import (
	"context"

	"github.com/golang-jwt/jwt/v5"
)

// Permission grants one action on one resource (collection).
type Permission struct {
	Collection string `json:"collection"`
	Action     string `json:"action"`
}

// Claims is the JWT payload of a batch caller: the registered claims plus
// the admin flag and per-collection grants.
type Claims struct {
	jwt.RegisteredClaims
	Email       string       `json:"email,omitempty"`
	Admin       bool         `json:"admin,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

type claimsKey struct{}

// WithClaims returns a copy of ctx carrying the caller's claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// GetClaims returns the claims of the authenticated caller, if any.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

// CallerID names the caller for logs: the subject, else the email, else "".
func CallerID(ctx context.Context) string {
	claims, ok := GetClaims(ctx)
	if !ok {
		return ""
	}
	if claims.Subject != "" {
		return claims.Subject
	}
	return claims.Email
}
