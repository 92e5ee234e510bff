// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/piggyvault/identity-core/internal/model"
)

// AccountStore persists guardian accounts. The store is the single source of
// truth for lockout state and the current refresh-token digest; mutations
// that must be atomic (success reset, rotation) are single operations.
type AccountStore interface {
	// Create inserts a new account and fills in the assigned ID and
	// creation time. Phone is encrypted at this boundary before the row is
	// written.
	Create(ctx context.Context, a *model.Account) error
	// GetByEmail loads an account by its case-insensitive email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// RecordAuthSuccess stores the new refresh-token digest and zeroes all
	// lockout fields in one statement, so a success and its reset cannot be
	// torn apart by a concurrent attempt.
	RecordAuthSuccess(ctx context.Context, id int64, refreshDigest string) error
	// ClearSession nulls the refresh-token digest and zeroes the lockout
	// fields (logout semantics).
	ClearSession(ctx context.Context, id int64) error
	// ReplaceRefreshDigest swaps the stored digest only if it still equals
	// expected. A mismatch means the presented refresh token is stale.
	ReplaceRefreshDigest(ctx context.Context, id int64, expected, next string) error
}
