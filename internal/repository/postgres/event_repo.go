package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/piggyvault/identity-core/internal/audit"
)

// EventRepo implements repository.EventStore using PostgreSQL. The table is
// append-only; no update or delete paths exist here.
type EventRepo struct{ db *DB }

// NewEventRepo constructs a security-event repository.
func NewEventRepo(db *DB) *EventRepo { return &EventRepo{db: db} }

// Insert appends one event. Details are stored as JSONB.
func (r *EventRepo) Insert(ctx context.Context, e audit.Event) error {
	details := e.Details
	if details == nil {
		details = map[string]string{}
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}

	const q = `
INSERT INTO security_events (id, at, action, severity, actor_id, resource_type, resource_id, result, details)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err = r.db.Pool.Exec(ctx, q,
		e.ID, e.Time, string(e.Action), string(e.Severity),
		e.ActorID, e.ResourceType, e.ResourceID, string(e.Result), payload)
	return err
}
