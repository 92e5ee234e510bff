// Package access evaluates a caller's session claims against an operation's
// role requirements, and separately against resource ownership. Both checks
// return deliberately generic errors: the caller learns that it was denied,
// never which role was required or whether the resource exists.
package access

import (
	"github.com/piggyvault/identity-core/internal/errs"
	"github.com/piggyvault/identity-core/internal/model"
	"github.com/piggyvault/identity-core/internal/token"
)

// Authorize checks claims against the set of roles allowed here.
// No claims at all is errs.ErrUnauthenticated; a role outside the set is
// errs.ErrForbidden.
func Authorize(claims *token.Claims, required ...model.Role) error {
	if claims == nil || claims.AccountID == 0 {
		return errs.ErrUnauthenticated
	}
	for _, r := range required {
		if claims.Role == r {
			return nil
		}
	}
	return errs.ErrForbidden
}

// CheckOwnership checks that the caller owns the resource. A mismatch is
// errs.ErrNotFound, the same shape as a missing resource, so non-existence
// and non-ownership are indistinguishable from outside. Ownership is a
// resource concern: no role, admin included, bypasses it here.
func CheckOwnership(claims *token.Claims, ownerID int64) error {
	if claims == nil || claims.AccountID == 0 {
		return errs.ErrUnauthenticated
	}
	if claims.AccountID != ownerID {
		return errs.ErrNotFound
	}
	return nil
}
