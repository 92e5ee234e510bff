// Package service composes the identity core: credentials and sessions,
// the lockout guard, field encryption, access policy, and the audit trail,
// behind the single façade the HTTP/business layer calls.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/piggyvault/identity-core/internal/access"
	"github.com/piggyvault/identity-core/internal/audit"
	pkgcrypto "github.com/piggyvault/identity-core/internal/crypto"
	"github.com/piggyvault/identity-core/internal/crypto/fieldcipher"
	"github.com/piggyvault/identity-core/internal/errs"
	"github.com/piggyvault/identity-core/internal/lockout"
	"github.com/piggyvault/identity-core/internal/model"
	"github.com/piggyvault/identity-core/internal/repository"
	"github.com/piggyvault/identity-core/internal/token"
)

// IdentityService is the contract the HTTP/business layer programs against.
type IdentityService interface {
	// Register creates a guardian account and issues its first session.
	Register(ctx context.Context, email, password, phone string) (*model.Account, model.TokenPair, error)
	// Login authenticates and issues a session. Lockout takes precedence
	// over credential correctness; unknown email and wrong password are
	// indistinguishable to the caller.
	Login(ctx context.Context, email, password string) (*model.Account, model.TokenPair, error)
	// LoginFromAddr is Login behind the in-process pre-auth throttle keyed
	// by the caller's network address.
	LoginFromAddr(ctx context.Context, email, password, addr string) (*model.Account, model.TokenPair, error)
	// Refresh rotates the session: the presented refresh token dies and a
	// new pair replaces it.
	Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error)
	// Logout revokes the refresh token and clears lockout state. The
	// already-issued access token runs out on its own short expiry.
	Logout(ctx context.Context, accountID int64) error
	// VerifySession validates an access token and returns its claims.
	VerifySession(ctx context.Context, accessToken string) (*token.Claims, error)
	// Authorize checks the claims' role against the roles allowed for an
	// operation, auditing denials.
	Authorize(ctx context.Context, claims *token.Claims, roles ...model.Role) error
	// CheckOwnership checks that the caller owns the resource, auditing
	// denials. Failures are not-found-shaped.
	CheckOwnership(ctx context.Context, claims *token.Claims, ownerID int64) error
	// EncryptField and DecryptField expose the field cipher to callers that
	// move PII through stores of their own.
	EncryptField(ctx context.Context, plaintext string, ft fieldcipher.FieldType) (string, error)
	DecryptField(ctx context.Context, envelope string, ft fieldcipher.FieldType) (string, error)
	// Unlock clears an account's lockout state (admin operation).
	Unlock(ctx context.Context, accountID int64) error
}

type IdentityServiceImpl struct {
	accounts repository.AccountStore
	guard    lockout.Guard
	tokens   *token.Manager
	cipher   *fieldcipher.Cipher
	rec      audit.Recorder
	throttle *lockout.Throttle
}

// NewIdentityService constructs the façade with its collaborators. throttle
// may be nil; LoginFromAddr then degrades to plain Login.
func NewIdentityService(
	accounts repository.AccountStore,
	guard lockout.Guard,
	tokens *token.Manager,
	cipher *fieldcipher.Cipher,
	rec audit.Recorder,
	throttle *lockout.Throttle,
) *IdentityServiceImpl {
	return &IdentityServiceImpl{
		accounts: accounts,
		guard:    guard,
		tokens:   tokens,
		cipher:   cipher,
		rec:      rec,
		throttle: throttle,
	}
}

const resourceAccount = "account"

// Register creates the account with lockout fields zeroed, then issues and
// persists the first session.
func (s *IdentityServiceImpl) Register(ctx context.Context, email, password, phone string) (*model.Account, model.TokenPair, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, model.TokenPair{}, errors.New("empty email/password")
	}

	hash, err := pkgcrypto.HashPassword(password)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	acc := &model.Account{
		Email:        email,
		PasswordHash: hash,
		Phone:        phone,
		Role:         model.RoleParent,
	}
	if err := s.accounts.Create(ctx, acc); err != nil {
		return nil, model.TokenPair{}, err
	}

	pair, err := s.issueAndStore(ctx, acc)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	s.record(audit.ActionAccountRegistered, audit.SeverityLow, &acc.ID, &acc.ID, audit.ResultSuccess, nil)
	return acc, pair, nil
}

// Login runs the authentication sequence: resolve account, consult the
// guard, verify the password, record the outcome, issue the session.
func (s *IdentityServiceImpl) Login(ctx context.Context, email, password string) (*model.Account, model.TokenPair, error) {
	email = normalizeEmail(email)

	acc, err := s.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, errs.ErrCiphertextInvalid) {
			// A stored envelope failed authentication: someone touched the
			// row, or the key is wrong. Either way, alarm.
			s.record(audit.ActionDecryptionTampered, audit.SeverityCritical, nil, nil,
				audit.ResultFailure, map[string]string{"field": string(fieldcipher.FieldPhone)})
			return nil, model.TokenPair{}, err
		}
		if errors.Is(err, errs.ErrAccountNotFound) {
			// No account row means no counter to advance; mask as a plain
			// credential failure so email enumeration learns nothing.
			s.record(audit.ActionLoginFailed, audit.SeverityMedium, nil, nil,
				audit.ResultFailure, map[string]string{
					"reason": "unknown_email",
					"email":  audit.MaskIdentifier(email),
				})
			return nil, model.TokenPair{}, errs.ErrInvalidCredentials
		}
		return nil, model.TokenPair{}, err
	}

	// Lockout gates the attempt before the password is even looked at.
	st, err := s.guard.Check(ctx, acc.ID)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	if st.Locked {
		s.record(audit.ActionAccountLocked, audit.SeverityHigh, &acc.ID, &acc.ID,
			audit.ResultBlocked, map[string]string{"reason": "attempt_while_locked"})
		return nil, model.TokenPair{}, &errs.LockedError{Until: *st.LockedUntil}
	}

	if !pkgcrypto.VerifyPassword(password, acc.PasswordHash) {
		st, ferr := s.guard.Failure(ctx, acc.ID)
		if ferr != nil {
			return nil, model.TokenPair{}, ferr
		}
		if st.Locked {
			s.record(audit.ActionAccountLocked, audit.SeverityHigh, &acc.ID, &acc.ID,
				audit.ResultBlocked, map[string]string{"reason": "threshold_reached"})
			return nil, model.TokenPair{}, &errs.LockedError{Until: *st.LockedUntil}
		}
		s.record(audit.ActionLoginFailed, audit.SeverityMedium, &acc.ID, &acc.ID,
			audit.ResultFailure, map[string]string{"reason": "bad_password"})
		return nil, model.TokenPair{}, errs.ErrInvalidCredentials
	}

	pair, err := s.issueAndStore(ctx, acc)
	if err != nil {
		return nil, model.TokenPair{}, err
	}
	// The success reset also cleared the account's lockout fields.
	acc.FailedAttemptCount = 0
	acc.LastFailedAttemptAt = nil
	acc.LockedUntil = nil

	s.record(audit.ActionLoginSucceeded, audit.SeverityLow, &acc.ID, &acc.ID, audit.ResultSuccess, nil)
	return acc, pair, nil
}

// LoginFromAddr throttles by caller address before touching any account row.
func (s *IdentityServiceImpl) LoginFromAddr(ctx context.Context, email, password, addr string) (*model.Account, model.TokenPair, error) {
	if s.throttle != nil && addr != "" {
		if !s.throttle.Allow(lockout.HashKey(addr)) {
			s.record(audit.ActionLoginFailed, audit.SeverityMedium, nil, nil,
				audit.ResultBlocked, map[string]string{
					"reason": "throttled",
					"source": audit.MaskIdentifier(addr),
				})
			return nil, model.TokenPair{}, errs.ErrThrottled
		}
	}
	return s.Login(ctx, email, password)
}

// Refresh verifies the refresh token, confirms it is the account's current
// one, and rotates it: the old token is invalid from this call on.
func (s *IdentityServiceImpl) Refresh(ctx context.Context, refreshToken string) (model.TokenPair, error) {
	claims, err := s.tokens.Verify(refreshToken, token.UseRefresh)
	if err != nil {
		return model.TokenPair{}, err
	}

	acc, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, errs.ErrCiphertextInvalid) {
			s.record(audit.ActionDecryptionTampered, audit.SeverityCritical, &claims.AccountID, nil,
				audit.ResultFailure, map[string]string{"field": string(fieldcipher.FieldPhone)})
			return model.TokenPair{}, err
		}
		if errors.Is(err, errs.ErrAccountNotFound) {
			// The account vanished underneath a signed token; to the caller
			// this is just an invalid token.
			return model.TokenPair{}, errs.ErrTokenInvalid
		}
		return model.TokenPair{}, err
	}

	presented := token.Digest(refreshToken)
	if acc.RefreshTokenDigest == nil || *acc.RefreshTokenDigest != presented {
		// Logged out, or already rotated. A replay of a dead refresh token
		// is worth flagging.
		s.record(audit.ActionSessionRefreshed, audit.SeverityHigh, &acc.ID, &acc.ID,
			audit.ResultBlocked, map[string]string{"reason": "stale_refresh_token"})
		return model.TokenPair{}, errs.ErrTokenInvalid
	}

	pair, err := s.tokens.IssuePair(acc.ID, acc.Email, acc.Role)
	if err != nil {
		return model.TokenPair{}, err
	}
	if err := s.accounts.ReplaceRefreshDigest(ctx, acc.ID, presented, token.Digest(pair.RefreshToken)); err != nil {
		return model.TokenPair{}, err
	}

	s.record(audit.ActionSessionRefreshed, audit.SeverityLow, &acc.ID, &acc.ID, audit.ResultSuccess, nil)
	return pair, nil
}

// Logout revokes the current refresh token and clears lockout state.
func (s *IdentityServiceImpl) Logout(ctx context.Context, accountID int64) error {
	if err := s.accounts.ClearSession(ctx, accountID); err != nil {
		return err
	}
	s.record(audit.ActionLogout, audit.SeverityLow, &accountID, &accountID, audit.ResultSuccess, nil)
	return nil
}

// VerifySession validates an access token.
func (s *IdentityServiceImpl) VerifySession(_ context.Context, accessToken string) (*token.Claims, error) {
	return s.tokens.Verify(accessToken, token.UseAccess)
}

// Authorize evaluates role policy and audits denials: a role mismatch is a
// possible privilege-escalation probe.
func (s *IdentityServiceImpl) Authorize(_ context.Context, claims *token.Claims, roles ...model.Role) error {
	err := access.Authorize(claims, roles...)
	if errors.Is(err, errs.ErrForbidden) {
		s.record(audit.ActionRoleCheckFailed, audit.SeverityCritical, &claims.AccountID, nil,
			audit.ResultBlocked, map[string]string{"role": claims.Role.String()})
	}
	return err
}

// CheckOwnership evaluates resource ownership and audits denials.
func (s *IdentityServiceImpl) CheckOwnership(_ context.Context, claims *token.Claims, ownerID int64) error {
	err := access.CheckOwnership(claims, ownerID)
	if errors.Is(err, errs.ErrNotFound) {
		s.record(audit.ActionOwnershipCheckFailed, audit.SeverityHigh, &claims.AccountID, &ownerID,
			audit.ResultBlocked, nil)
	}
	return err
}

// EncryptField seals a PII value for callers persisting fields of their own.
func (s *IdentityServiceImpl) EncryptField(_ context.Context, plaintext string, ft fieldcipher.FieldType) (string, error) {
	envelope, err := s.cipher.Encrypt(plaintext, ft)
	if err != nil {
		s.record(audit.ActionEncryptionFailed, audit.SeverityHigh, nil, nil,
			audit.ResultFailure, map[string]string{"field": string(ft)})
		return "", err
	}
	return envelope, nil
}

// DecryptField opens an envelope. An authentication failure is a tampering
// signal and is audited as critical.
func (s *IdentityServiceImpl) DecryptField(_ context.Context, envelope string, ft fieldcipher.FieldType) (string, error) {
	plaintext, err := s.cipher.Decrypt(envelope, ft)
	if err != nil {
		if errors.Is(err, errs.ErrCiphertextInvalid) {
			s.record(audit.ActionDecryptionTampered, audit.SeverityCritical, nil, nil,
				audit.ResultFailure, map[string]string{"field": string(ft)})
		}
		return "", err
	}
	return plaintext, nil
}

// Unlock releases an account from lockout without authentication (operator
// tooling).
func (s *IdentityServiceImpl) Unlock(ctx context.Context, accountID int64) error {
	if err := s.guard.Reset(ctx, accountID); err != nil {
		return err
	}
	s.record(audit.ActionAccountUnlocked, audit.SeverityMedium, nil, &accountID, audit.ResultSuccess, nil)
	return nil
}

// issueAndStore mints a pair and persists the refresh digest together with
// the lockout reset.
func (s *IdentityServiceImpl) issueAndStore(ctx context.Context, acc *model.Account) (model.TokenPair, error) {
	pair, err := s.tokens.IssuePair(acc.ID, acc.Email, acc.Role)
	if err != nil {
		return model.TokenPair{}, err
	}
	digest := token.Digest(pair.RefreshToken)
	if err := s.accounts.RecordAuthSuccess(ctx, acc.ID, digest); err != nil {
		return model.TokenPair{}, fmt.Errorf("record auth success: %w", err)
	}
	acc.RefreshTokenDigest = &digest
	return pair, nil
}

func (s *IdentityServiceImpl) record(action audit.Action, sev audit.Severity, actorID, resourceID *int64, res audit.Result, details map[string]string) {
	s.rec.Record(audit.Event{
		Action:       action,
		Severity:     sev,
		ActorID:      actorID,
		ResourceType: resourceAccount,
		ResourceID:   resourceID,
		Result:       res,
		Details:      details,
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
