package lockout

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle is an in-process token-bucket limiter keyed by an opaque string
// (typically a hashed client address). It sits in front of the per-account
// guard: it slows down credential-guessing from one source before any
// account row is touched. It is not a substitute for the guard.
type Throttle struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	keys  map[string]*throttleEntry
}

type throttleEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// Entries idle longer than this are pruned when the map grows large.
const (
	throttleIdle       = 10 * time.Minute
	throttleMaxEntries = 4096
)

// NewThrottle allows bursts of `burst` attempts per key, refilled at one
// attempt per `every`.
func NewThrottle(every time.Duration, burst int) *Throttle {
	return &Throttle{
		limit: rate.Every(every),
		burst: burst,
		keys:  make(map[string]*throttleEntry),
	}
}

// Allow reports whether an attempt under key may proceed now.
func (t *Throttle) Allow(key string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	e, ok := t.keys[key]
	if !ok {
		if len(t.keys) >= throttleMaxEntries {
			t.prune(now)
		}
		e = &throttleEntry{lim: rate.NewLimiter(t.limit, t.burst)}
		t.keys[key] = e
	}
	e.seen = now
	return e.lim.Allow()
}

// prune must be called with the mutex held.
func (t *Throttle) prune(now time.Time) {
	for k, e := range t.keys {
		if now.Sub(e.seen) > throttleIdle {
			delete(t.keys, k)
		}
	}
}

// HashKey returns a stable hash for a client identifier (e.g. an IP) so raw
// addresses are never kept in memory or logs.
func HashKey(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}
