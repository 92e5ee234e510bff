package repository

import (
	"context"

	"github.com/piggyvault/identity-core/internal/audit"
)

// EventStore appends security events. Rows are never updated or deleted by
// this core; retention is an external concern.
type EventStore interface {
	Insert(ctx context.Context, e audit.Event) error
}
