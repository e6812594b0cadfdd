package auth

import (
	"fmt"

	"github.com/ekaya-inc/ekaya-batch/pkg/apperrors"
)

// DefaultResource is the resource whose grants allow running batches.
const DefaultResource = "query"

// requiredActions must all be granted on the resource for a non-admin.
var requiredActions = []string{"create", "read", "update", "delete"}

// HasPermission reports whether the claims grant action on resource.
func (c *Claims) HasPermission(resource, action string) bool {
	if c == nil {
		return false
	}
	for _, p := range c.Permissions {
		if p.Collection == resource && p.Action == action {
			return true
		}
	}
	return false
}

// Authorize allows admins, and callers holding create, read, update and
// delete on resource. Anyone else, including a caller without claims, gets
// apperrors.ErrPermissionDenied.
func Authorize(claims *Claims, resource string) error {
	if claims == nil {
		return fmt.Errorf("%w: no credentials", apperrors.ErrPermissionDenied)
	}
	if claims.Admin {
		return nil
	}
	for _, action := range requiredActions {
		if !claims.HasPermission(resource, action) {
			return fmt.Errorf("%w: missing %s on %s", apperrors.ErrPermissionDenied, action, resource)
		}
	}
	return nil
}
