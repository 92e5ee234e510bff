// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinels across store/service layers.
var (
	// ErrInvalidCredentials indicates a failed login. Unknown email and wrong
	// password are deliberately indistinguishable to the caller.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountLocked indicates the account is under a lockout window.
	// Use AsLocked to recover the retry-after time.
	ErrAccountLocked = errors.New("account locked")

	// ErrThrottled indicates the in-process pre-auth throttle rejected the attempt.
	ErrThrottled = errors.New("too many attempts")

	// ErrTokenExpired indicates a session token past its expiry.
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates a token whose signature, shape, or use could
	// not be verified. No claim of such a token is trusted.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrAccountNotFound indicates the account row does not exist. Surfaced
	// internally; never shown to end clients as distinct from ErrInvalidCredentials.
	ErrAccountNotFound = errors.New("account not found")

	// ErrEmailTaken indicates a registration against an email already in use.
	ErrEmailTaken = errors.New("email already registered")

	// ErrUnauthenticated indicates an operation that requires session claims
	// was called without any.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden indicates the caller's role is not allowed here. The text
	// stays generic: it must not disclose which role was required.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is the not-found shape shared by missing resources and
	// failed ownership checks, so the two are indistinguishable to callers.
	ErrNotFound = errors.New("not found")

	// ErrCiphertextInvalid indicates an envelope that failed authentication:
	// tampered, truncated, or encrypted under a different key.
	ErrCiphertextInvalid = errors.New("ciphertext invalid")

	// ErrConfig indicates missing or malformed process configuration.
	// Fatal at startup, never recoverable at request time.
	ErrConfig = errors.New("invalid configuration")
)

// LockedError carries the end of a lockout window alongside ErrAccountLocked.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.UTC().Format(time.RFC3339))
}

// Unwrap makes errors.Is(err, ErrAccountLocked) hold for wrapped lockouts.
func (e *LockedError) Unwrap() error { return ErrAccountLocked }

// AsLocked extracts the lockout deadline from err, if it carries one.
func AsLocked(err error) (time.Time, bool) {
	var le *LockedError
	if errors.As(err, &le) {
		return le.Until, true
	}
	return time.Time{}, false
}
