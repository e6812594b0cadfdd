// Package testhelpers provides utilities for testing ekaya-batch components.
package testhelpers

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// TestPermission mirrors a permissions entry of the batch JWT.
type TestPermission struct {
	Collection string `json:"collection"`
	Action     string `json:"action"`
}

// GenerateTestJWT creates an unsigned token (alg: none) for use when
// verification is disabled. The token carries aud "batch".
func GenerateTestJWT(sub string, admin bool, permissions ...TestPermission) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"none","typ":"JWT"}`))

	payload := map[string]any{
		"sub": sub,
		"aud": "batch",
	}
	if admin {
		payload["admin"] = true
	}
	if len(permissions) > 0 {
		payload["permissions"] = permissions
	}
	raw, _ := json.Marshal(payload)

	return fmt.Sprintf("%s.%s.", header, base64.RawURLEncoding.EncodeToString(raw))
}

// CRUD returns create, read, update and delete grants on collection.
func CRUD(collection string) []TestPermission {
	return []TestPermission{
		{Collection: collection, Action: "create"},
		{Collection: collection, Action: "read"},
		{Collection: collection, Action: "update"},
		{Collection: collection, Action: "delete"},
	}
}

// GenerateTestJWTWithBearer returns the token with a "Bearer " prefix for the
// Authorization header.
func GenerateTestJWTWithBearer(sub string, admin bool, permissions ...TestPermission) string {
	return "Bearer " + GenerateTestJWT(sub, admin, permissions...)
}
