// Package audit records security-relevant outcomes as immutable structured
// events. Recording is best-effort and never blocks or fails the operation
// being audited; the details payload carries opaque identifiers and reason
// codes only, never plaintext PII or secrets.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Action is the closed taxonomy of auditable operations.
type Action string

const (
	ActionLoginSucceeded       Action = "LoginSucceeded"
	ActionLoginFailed          Action = "LoginFailed"
	ActionAccountLocked        Action = "AccountLocked"
	ActionLogout               Action = "Logout"
	ActionSessionRefreshed     Action = "SessionRefreshed"
	ActionRoleCheckFailed      Action = "RoleCheckFailed"
	ActionOwnershipCheckFailed Action = "OwnershipCheckFailed"
	ActionEncryptionFailed     Action = "EncryptionFailed"
	ActionDecryptionTampered   Action = "DecryptionTampered"
	ActionAccountRegistered    Action = "AccountRegistered"
	ActionAccountUnlocked      Action = "AccountUnlocked"
)

// Severity ranks how urgently an operator should look at an event.
// Tampering and privilege-escalation signals are Critical; routine
// authentication traffic is Low.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Result is the outcome of the audited operation.
type Result string

const (
	ResultSuccess Result = "success"
	ResultFailure Result = "failure"
	ResultBlocked Result = "blocked"
)

// Event is one immutable audit record. ActorID is nil for unauthenticated
// events (e.g. a failed login against an unknown email).
type Event struct {
	ID           uuid.UUID
	Time         time.Time
	Action       Action
	Severity     Severity
	ActorID      *int64
	ResourceType string
	ResourceID   *int64
	Result       Result
	Details      map[string]string
}

// Recorder accepts events for asynchronous delivery. Implementations must
// never block the caller and must swallow their own delivery failures.
type Recorder interface {
	Record(e Event)
}

// MaskIdentifier reduces a free-text identifier (an email, an address) to a
// short stable hash so repeated events can be correlated without storing the
// value itself.
func MaskIdentifier(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:6])
}
