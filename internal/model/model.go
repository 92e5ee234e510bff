// Package model defines domain entities used by services and stores.
package model

import (
	"fmt"
	"time"
)

// Role is the access level carried by an account and its session tokens.
type Role string

// Known roles. Register only ever assigns RoleParent; RoleAdmin is granted
// out of band by operators; RoleGuest exists for limited read-only access
// and is never issued by this core.
const (
	RoleParent Role = "PARENT"
	RoleAdmin  Role = "ADMIN"
	RoleGuest  Role = "GUEST"
)

// ParseRole validates a role string coming off the wire or out of the store.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleParent, RoleAdmin, RoleGuest:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

func (r Role) String() string { return string(r) }

// Account is a registered guardian. The email is the identity key for login
// and is never mutated here. Phone is plaintext in memory only; the store
// keeps it as a field-cipher envelope.
type Account struct {
	ID           int64
	Email        string // unique, lower-cased
	PasswordHash string // bcrypt
	Phone        string
	Role         Role

	// Lockout state, one guard per account. All three are zero/nil whenever
	// no failure has occurred since the last success.
	FailedAttemptCount  int
	LastFailedAttemptAt *time.Time
	LockedUntil         *time.Time

	// RefreshTokenDigest is the SHA-256 hex of the currently valid refresh
	// token. nil means no active session to revoke.
	RefreshTokenDigest *string

	CreatedAt time.Time
}

// TokenPair collects the two tokens issued for a session.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}
