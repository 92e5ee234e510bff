package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/piggyvault/identity-core/internal/crypto/fieldcipher"
	"github.com/piggyvault/identity-core/internal/errs"
	"github.com/piggyvault/identity-core/internal/model"
)

// AccountRepo implements repository.AccountStore using PostgreSQL. PII
// crosses the store boundary through the field cipher: the phone number is
// encrypted on write and decrypted on read, and only its envelope is stored.
type AccountRepo struct {
	db     *DB
	cipher *fieldcipher.Cipher
}

// NewAccountRepo constructs an account repository.
func NewAccountRepo(db *DB, cipher *fieldcipher.Cipher) *AccountRepo {
	return &AccountRepo{db: db, cipher: cipher}
}

const accountColumns = `id, email, password_hash, encrypted_phone, role,
failed_attempt_count, last_failed_attempt_at, locked_until,
refresh_token_digest, created_at`

// Create inserts a new account row with all lockout fields zeroed and no
// active session. The assigned ID and creation time are written back into a.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	envelope, err := r.cipher.Encrypt(a.Phone, fieldcipher.FieldPhone)
	if err != nil {
		return fmt.Errorf("encrypt phone: %w", err)
	}

	const q = `
INSERT INTO accounts (email, password_hash, encrypted_phone, role)
VALUES ($1, $2, $3, $4)
RETURNING id, created_at`
	err = r.db.Pool.QueryRow(ctx, q, a.Email, a.PasswordHash, envelope, a.Role.String()).
		Scan(&a.ID, &a.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrEmailTaken
	}
	return err
}

// GetByEmail selects an account by email, case-insensitively.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE lower(email)=lower($1)`
	return r.scanAccount(r.db.Pool.QueryRow(ctx, q, email))
}

// GetByID selects an account by ID.
func (r *AccountRepo) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE id=$1`
	return r.scanAccount(r.db.Pool.QueryRow(ctx, q, id))
}

func (r *AccountRepo) scanAccount(row pgx.Row) (*model.Account, error) {
	var a model.Account
	var role, envelope string
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &envelope, &role,
		&a.FailedAttemptCount, &a.LastFailedAttemptAt, &a.LockedUntil,
		&a.RefreshTokenDigest, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrAccountNotFound
		}
		return nil, err
	}

	a.Role, err = model.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("account %d: %w", a.ID, err)
	}
	a.Phone, err = r.cipher.Decrypt(envelope, fieldcipher.FieldPhone)
	if err != nil {
		// Tampered or wrong-key envelope. The caller distinguishes this
		// from a missing row and raises the audit alarm.
		return nil, fmt.Errorf("account %d phone: %w", a.ID, err)
	}
	return &a, nil
}

// RecordAuthSuccess resets the lockout fields and installs the new refresh
// digest in one statement.
func (r *AccountRepo) RecordAuthSuccess(ctx context.Context, id int64, refreshDigest string) error {
	const q = `
UPDATE accounts
SET failed_attempt_count = 0, last_failed_attempt_at = NULL, locked_until = NULL,
    refresh_token_digest = $2
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id, refreshDigest)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAccountNotFound
	}
	return nil
}

// ClearSession revokes the refresh token and gives the account a clean
// lockout slate.
func (r *AccountRepo) ClearSession(ctx context.Context, id int64) error {
	const q = `
UPDATE accounts
SET refresh_token_digest = NULL,
    failed_attempt_count = 0, last_failed_attempt_at = NULL, locked_until = NULL
WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrAccountNotFound
	}
	return nil
}

// ReplaceRefreshDigest rotates the stored digest with a compare-and-set, so
// two racing refresh calls cannot both succeed with the same old token.
func (r *AccountRepo) ReplaceRefreshDigest(ctx context.Context, id int64, expected, next string) error {
	const q = `
UPDATE accounts
SET refresh_token_digest = $3
WHERE id = $1 AND refresh_token_digest = $2`
	tag, err := r.db.Pool.Exec(ctx, q, id, expected, next)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrTokenInvalid
	}
	return nil
}
