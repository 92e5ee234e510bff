package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/require"

	"github.com/piggyvault/identity-core/internal/crypto/fieldcipher"
	"github.com/piggyvault/identity-core/internal/errs"
	"github.com/piggyvault/identity-core/internal/model"
)

func newDB(t *testing.T) (*DB, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	return &DB{Pool: mock}, mock
}

func newCipher(t *testing.T) *fieldcipher.Cipher {
	t.Helper()
	key := make([]byte, fieldcipher.KeySize)
	for i := range key {
		key[i] = byte(i)
	}
	c, err := fieldcipher.New(key)
	require.NoError(t, err)
	return c
}

func TestAccountRepo_Create_OK_and_EmailTaken(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db, newCipher(t))
	ctx := context.Background()

	a := &model.Account{
		Email:        "parent@example.com",
		PasswordHash: "$2a$10$hash",
		Phone:        "+15550100",
		Role:         model.RoleParent,
	}

	now := time.Now()
	mock.ExpectQuery(`INSERT INTO accounts \(email, password_hash, encrypted_phone, role\)`).
		WithArgs(a.Email, a.PasswordHash, pgxmock.AnyArg(), "PARENT").
		WillReturnRows(pgxmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
	require.NoError(t, r.Create(ctx, a))
	require.Equal(t, int64(7), a.ID)
	require.Equal(t, now, a.CreatedAt)

	mock.ExpectQuery(`INSERT INTO accounts \(email, password_hash, encrypted_phone, role\)`).
		WithArgs(a.Email, a.PasswordHash, pgxmock.AnyArg(), "PARENT").
		WillReturnError(&pgconn.PgError{Code: "23505"})
	err := r.Create(ctx, a)
	require.ErrorIs(t, err, errs.ErrEmailTaken)

	require.NoError(t, mock.ExpectationsWereMet())
}

func accountRows(t *testing.T, c *fieldcipher.Cipher, id int64, email, phone string) *pgxmock.Rows {
	t.Helper()
	envelope, err := c.Encrypt(phone, fieldcipher.FieldPhone)
	require.NoError(t, err)
	return pgxmock.NewRows([]string{
		"id", "email", "password_hash", "encrypted_phone", "role",
		"failed_attempt_count", "last_failed_attempt_at", "locked_until",
		"refresh_token_digest", "created_at",
	}).AddRow(id, email, "$2a$10$hash", envelope, "PARENT", 0, nil, nil, nil, time.Now())
}

func TestAccountRepo_GetByEmail_DecryptsPhone(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	c := newCipher(t)
	r := NewAccountRepo(db, c)
	ctx := context.Background()

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE lower\(email\)=lower\(\$1\)`).
		WithArgs("parent@example.com").
		WillReturnRows(accountRows(t, c, 7, "parent@example.com", "+15550100"))

	a, err := r.GetByEmail(ctx, "parent@example.com")
	require.NoError(t, err)
	require.Equal(t, int64(7), a.ID)
	require.Equal(t, "+15550100", a.Phone)
	require.Equal(t, model.RoleParent, a.Role)
	require.Nil(t, a.RefreshTokenDigest)

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE lower\(email\)=lower\(\$1\)`).
		WithArgs("nobody@example.com").
		WillReturnError(pgx.ErrNoRows)
	_, err = r.GetByEmail(ctx, "nobody@example.com")
	require.ErrorIs(t, err, errs.ErrAccountNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_GetByID_TamperedPhone(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	c := newCipher(t)
	r := NewAccountRepo(db, c)
	ctx := context.Background()

	envelope, err := c.Encrypt("+15550100", fieldcipher.FieldPhone)
	require.NoError(t, err)
	// Flip the last ciphertext nibble.
	tampered := envelope[:len(envelope)-1]
	if envelope[len(envelope)-1] == '0' {
		tampered += "1"
	} else {
		tampered += "0"
	}

	mock.ExpectQuery(`SELECT .+ FROM accounts WHERE id=\$1`).
		WithArgs(int64(7)).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "email", "password_hash", "encrypted_phone", "role",
			"failed_attempt_count", "last_failed_attempt_at", "locked_until",
			"refresh_token_digest", "created_at",
		}).AddRow(int64(7), "parent@example.com", "$2a$10$hash", tampered, "PARENT", 0, nil, nil, nil, time.Now()))

	_, err = r.GetByID(ctx, 7)
	require.ErrorIs(t, err, errs.ErrCiphertextInvalid)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_RecordAuthSuccess(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db, newCipher(t))
	ctx := context.Background()

	mock.ExpectExec(`UPDATE accounts SET failed_attempt_count = 0, last_failed_attempt_at = NULL, locked_until = NULL, refresh_token_digest = \$2 WHERE id = \$1`).
		WithArgs(int64(7), "digest").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.RecordAuthSuccess(ctx, 7, "digest"))

	mock.ExpectExec(`UPDATE accounts SET failed_attempt_count = 0, last_failed_attempt_at = NULL, locked_until = NULL, refresh_token_digest = \$2 WHERE id = \$1`).
		WithArgs(int64(8), "digest").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := r.RecordAuthSuccess(ctx, 8, "digest")
	require.ErrorIs(t, err, errs.ErrAccountNotFound)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ClearSession(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db, newCipher(t))
	ctx := context.Background()

	mock.ExpectExec(`UPDATE accounts SET refresh_token_digest = NULL, failed_attempt_count = 0, last_failed_attempt_at = NULL, locked_until = NULL WHERE id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.ClearSession(ctx, 7))

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ReplaceRefreshDigest_CAS(t *testing.T) {
	db, mock := newDB(t)
	defer mock.Close()
	r := NewAccountRepo(db, newCipher(t))
	ctx := context.Background()

	mock.ExpectExec(`UPDATE accounts SET refresh_token_digest = \$3 WHERE id = \$1 AND refresh_token_digest = \$2`).
		WithArgs(int64(7), "old", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	require.NoError(t, r.ReplaceRefreshDigest(ctx, 7, "old", "new"))

	// Stale digest: the row no longer matches, rotation must fail.
	mock.ExpectExec(`UPDATE accounts SET refresh_token_digest = \$3 WHERE id = \$1 AND refresh_token_digest = \$2`).
		WithArgs(int64(7), "stale", "new").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	err := r.ReplaceRefreshDigest(ctx, 7, "stale", "new")
	require.ErrorIs(t, err, errs.ErrTokenInvalid)

	require.NoError(t, mock.ExpectationsWereMet())
}
