// Package token mints and verifies the signed bearer session tokens.
// A session is a pair: a short-lived access token presented on every request
// and a longer-lived refresh token used only to mint new pairs.
package token

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/piggyvault/identity-core/internal/errs"
	"github.com/piggyvault/identity-core/internal/model"
)

// Use distinguishes the two token kinds. A token presented for the wrong use
// is rejected even when its signature verifies.
type Use string

const (
	UseAccess  Use = "access"
	UseRefresh Use = "refresh"
)

// MinSecretSize is the minimum length of the HS256 signing secret.
const MinSecretSize = 16

// Leeway tolerated on expiry checks to absorb clock skew between hosts.
const leeway = 30 * time.Second

// Claims is the payload bound into every session token.
type Claims struct {
	AccountID int64      `json:"account_id"`
	Email     string     `json:"email"`
	Role      model.Role `json:"role"`
	Use       Use        `json:"token_use"`
	jwt.RegisteredClaims
}

// Manager signs and verifies session tokens with a single shared HS256 secret.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager validates the signing secret and builds a Manager.
// A short secret is a configuration fault (fail fast, never at request time).
func NewManager(secret []byte, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	if len(secret) < MinSecretSize {
		return nil, fmt.Errorf("token: signing secret must be at least %d bytes, got %d: %w", MinSecretSize, len(secret), errs.ErrConfig)
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, fmt.Errorf("token: TTLs must be positive: %w", errs.ErrConfig)
	}
	return &Manager{secret: secret, accessTTL: accessTTL, refreshTTL: refreshTTL}, nil
}

// IssuePair mints a fresh access/refresh pair for one account. The caller is
// responsible for persisting the refresh token's digest so the session can be
// revoked server-side.
func (m *Manager) IssuePair(accountID int64, email string, role model.Role) (model.TokenPair, error) {
	access, accessExp, err := m.issue(accountID, email, role, UseAccess, m.accessTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	refresh, refreshExp, err := m.issue(accountID, email, role, UseRefresh, m.refreshTTL)
	if err != nil {
		return model.TokenPair{}, err
	}
	return model.TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (m *Manager) issue(accountID int64, email string, role model.Role, use Use, ttl time.Duration) (string, time.Time, error) {
	jti, err := uuid.NewV4()
	if err != nil {
		return "", time.Time{}, err
	}
	now := time.Now()
	exp := now.Add(ttl)
	claims := Claims{
		AccountID: accountID,
		Email:     email,
		Role:      role,
		Use:       use,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	return signed, exp, err
}

// Verify checks signature and expiry before trusting any claim, then checks
// the token use. Failures collapse to exactly two externally visible kinds:
// errs.ErrTokenExpired and errs.ErrTokenInvalid.
func (m *Manager) Verify(tok string, use Use) (*Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	}, jwt.WithLeeway(leeway))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, errs.ErrTokenExpired
		}
		return nil, errs.ErrTokenInvalid
	}
	if !parsed.Valid || claims.Use != use || claims.AccountID == 0 {
		return nil, errs.ErrTokenInvalid
	}
	if _, err := model.ParseRole(string(claims.Role)); err != nil {
		return nil, errs.ErrTokenInvalid
	}
	return &claims, nil
}

// Inspect decodes a token's claims without verifying the signature. For
// operator tooling only; nothing read from here may be trusted.
func Inspect(tok string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(tok, &claims); err != nil {
		return nil, errs.ErrTokenInvalid
	}
	return &claims, nil
}

// Digest returns the SHA-256 hex of a token. The account row stores this
// digest instead of the refresh token itself, so a store dump does not yield
// replayable tokens.
func Digest(tok string) string {
	h := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(h[:])
}

// ParseBearer extracts the token from an "Authorization: Bearer <token>"
// header value for callers at the transport edge.
func ParseBearer(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(header[7:])
	return tok, tok != ""
}
