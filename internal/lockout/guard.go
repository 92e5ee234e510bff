// Package lockout implements the per-account failed-attempt guard: a state
// machine over the lockout columns of the account row, plus an in-process
// pre-auth throttle that callers can layer in front of it.
package lockout

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/piggyvault/identity-core/internal/errs"
)

// Defaults used by the composition root.
const (
	DefaultThreshold = 5
	DefaultDuration  = 15 * time.Minute
)

// Status is the guard's view of one account.
type Status struct {
	Locked         bool
	FailedAttempts int
	LockedUntil    *time.Time
}

// Guard tracks failed authentication attempts per account and locks the
// account once a threshold of consecutive failures is reached. The lock
// expires lazily: the first check after the deadline sees the account active
// again, no background timer involved.
type Guard interface {
	// Check reports the account's current lockout status. Callers must
	// consult it before running password verification.
	Check(ctx context.Context, accountID int64) (Status, error)
	// Failure records a failed attempt and reports the resulting status,
	// which is Locked when this failure reached the threshold.
	Failure(ctx context.Context, accountID int64) (Status, error)
	// Reset clears the failure streak and any lock (admin unlock).
	Reset(ctx context.Context, accountID int64) error
}

// PG is the Postgres-backed guard. All mutations are single statements so
// concurrent attempts cannot drop a lockout transition.
type PG struct {
	pool      pgxQuerier
	threshold int
	lockFor   time.Duration
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a Postgres-backed guard over a connection pool.
func NewPG(pool *pgxpool.Pool, threshold int, lockFor time.Duration) *PG {
	return &PG{pool: pool, threshold: threshold, lockFor: lockFor}
}

// NewPGWithQuerier constructs a guard over any querier (tests).
func NewPGWithQuerier(q pgxQuerier, threshold int, lockFor time.Duration) *PG {
	return &PG{pool: q, threshold: threshold, lockFor: lockFor}
}

// Check reads the lockout columns. An expired lock counts as active.
func (g *PG) Check(ctx context.Context, accountID int64) (Status, error) {
	const q = `SELECT failed_attempt_count, locked_until FROM accounts WHERE id=$1`
	var count int
	var lockedUntil *time.Time
	err := g.pool.QueryRow(ctx, q, accountID).Scan(&count, &lockedUntil)
	switch {
	case err == nil:
		st := Status{FailedAttempts: count}
		if lockedUntil != nil && lockedUntil.After(time.Now()) {
			st.Locked = true
			st.LockedUntil = lockedUntil
		}
		return st, nil
	case errors.Is(err, pgx.ErrNoRows):
		return Status{}, errs.ErrAccountNotFound
	default:
		return Status{}, err
	}
}

// Failure increments the streak and locks the account when the increment
// reaches the threshold, all in one statement. A failure observed after an
// expired lock restarts the streak at 1.
func (g *PG) Failure(ctx context.Context, accountID int64) (Status, error) {
	const q = `
UPDATE accounts SET
  failed_attempt_count = CASE
    WHEN locked_until IS NOT NULL AND locked_until <= now() THEN 1
    ELSE failed_attempt_count + 1 END,
  last_failed_attempt_at = now(),
  locked_until = CASE
    WHEN (CASE
      WHEN locked_until IS NOT NULL AND locked_until <= now() THEN 1
      ELSE failed_attempt_count + 1 END) >= $2 THEN now() + $3::interval
    ELSE NULL END
WHERE id = $1
RETURNING failed_attempt_count, locked_until`
	var count int
	var lockedUntil *time.Time
	if err := g.pool.QueryRow(ctx, q, accountID, g.threshold, g.lockFor).Scan(&count, &lockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Status{}, errs.ErrAccountNotFound
		}
		return Status{}, err
	}
	st := Status{FailedAttempts: count}
	if lockedUntil != nil && lockedUntil.After(time.Now()) {
		st.Locked = true
		st.LockedUntil = lockedUntil
	}
	return st, nil
}

// Reset zeroes the streak and removes any lock.
func (g *PG) Reset(ctx context.Context, accountID int64) error {
	const q = `
UPDATE accounts
SET failed_attempt_count = 0, last_failed_attempt_at = NULL, locked_until = NULL
WHERE id = $1`
	tag, err := g.pool.Exec(ctx, q, accountID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAccountNotFound
	}
	return nil
}
