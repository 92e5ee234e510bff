package lockout

import (
	"testing"
	"time"
)

func TestThrottle_BurstThenLimited(t *testing.T) {
	t.Parallel()

	// Refill far slower than the test runs, so only the burst is available.
	th := NewThrottle(time.Hour, 3)
	key := HashKey("203.0.113.7")

	for i := 0; i < 3; i++ {
		if !th.Allow(key) {
			t.Fatalf("attempt %d within burst should be allowed", i+1)
		}
	}
	if th.Allow(key) {
		t.Fatalf("attempt past the burst should be rejected")
	}
}

func TestThrottle_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	th := NewThrottle(time.Hour, 1)
	a, b := HashKey("a"), HashKey("b")

	if !th.Allow(a) {
		t.Fatalf("first attempt for key a should be allowed")
	}
	if th.Allow(a) {
		t.Fatalf("second attempt for key a should be rejected")
	}
	if !th.Allow(b) {
		t.Fatalf("key b must not be affected by key a's streak")
	}
}

func TestHashKey_StableAndOpaque(t *testing.T) {
	t.Parallel()

	h := HashKey("192.0.2.1")
	if h != HashKey("192.0.2.1") {
		t.Fatalf("hash of the same key must be stable")
	}
	if h == HashKey("192.0.2.2") {
		t.Fatalf("hashes of different keys must differ")
	}
	if h == "192.0.2.1" || len(h) != 64 {
		t.Fatalf("hash must not echo the raw key: %q", h)
	}
}
