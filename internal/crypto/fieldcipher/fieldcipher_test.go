package fieldcipher

import (
	"errors"
	"strings"
	"testing"

	"github.com/piggyvault/identity-core/internal/errs"
)

func testKey(b byte) []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = b
	}
	return key
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(testKey(0x42))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_KeySize(t *testing.T) {
	t.Parallel()

	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := New(make([]byte, n)); !errors.Is(err, errs.ErrConfig) {
			t.Fatalf("key of %d bytes: err=%v, want ErrConfig", n, err)
		}
	}
	if _, err := New(testKey(1)); err != nil {
		t.Fatalf("32-byte key: %v", err)
	}
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	for _, plain := range []string{"+15550100", "short", strings.Repeat("x", 4096)} {
		env, err := c.Encrypt(plain, FieldPhone)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plain, err)
		}
		got, err := c.Decrypt(env, FieldPhone)
		if err != nil {
			t.Fatalf("Decrypt: %v", err)
		}
		if got != plain {
			t.Fatalf("roundtrip mismatch: got %q, want %q", got, plain)
		}
	}
}

func TestEncrypt_EnvelopeShape(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	env, err := c.Encrypt("+15550100", FieldPhone)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	parts := strings.Split(env, ":")
	if len(parts) != 3 {
		t.Fatalf("envelope has %d parts, want 3: %s", len(parts), env)
	}
	if len(parts[0]) != NonceSize*2 {
		t.Fatalf("nonce part len=%d, want %d hex chars", len(parts[0]), NonceSize*2)
	}
	if len(parts[1]) != TagSize*2 {
		t.Fatalf("tag part len=%d, want %d hex chars", len(parts[1]), TagSize*2)
	}
}

func TestEncrypt_FreshNoncePerCall(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	a, err := c.Encrypt("same plaintext", FieldPhone)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt("same plaintext", FieldPhone)
	if err != nil {
		t.Fatalf("Encrypt(2): %v", err)
	}
	if a == b {
		t.Fatalf("two envelopes of the same plaintext are identical — nonce reuse")
	}
}

func TestEmptyIsNoOp(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	env, err := c.Encrypt("", FieldPhone)
	if err != nil || env != "" {
		t.Fatalf("Encrypt(empty) = (%q, %v), want empty no-op", env, err)
	}
	plain, err := c.Decrypt("", FieldPhone)
	if err != nil || plain != "" {
		t.Fatalf("Decrypt(empty) = (%q, %v), want empty no-op", plain, err)
	}
}

func TestUnknownFieldType(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	if _, err := c.Encrypt("v", FieldType("ssn")); err == nil {
		t.Fatalf("unknown field type must be rejected before encryption")
	}
	if _, err := c.Decrypt("00:11:22", FieldType("ssn")); err == nil {
		t.Fatalf("unknown field type must be rejected before decryption")
	}
}

func TestDecrypt_EverySingleByteFlipFails(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	env, err := c.Encrypt("+15550100", FieldPhone)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	for i := 0; i < len(env); i++ {
		if env[i] == ':' {
			continue
		}
		mutated := []byte(env)
		if mutated[i] == '0' {
			mutated[i] = '1'
		} else {
			mutated[i] = '0'
		}
		got, err := c.Decrypt(string(mutated), FieldPhone)
		if !errors.Is(err, errs.ErrCiphertextInvalid) {
			t.Fatalf("flip at %d: err=%v, want ErrCiphertextInvalid", i, err)
		}
		if got != "" {
			t.Fatalf("flip at %d: returned plaintext %q, want none", i, got)
		}
	}
}

func TestDecrypt_MalformedEnvelopes(t *testing.T) {
	t.Parallel()
	c := newTestCipher(t)

	cases := []string{
		"not-an-envelope",
		"aa:bb",
		"aa:bb:cc:dd",
		"zz:" + strings.Repeat("ab", TagSize) + ":ab",
		strings.Repeat("ab", NonceSize) + ":zz:ab",
		strings.Repeat("ab", NonceSize-1) + ":" + strings.Repeat("ab", TagSize) + ":ab",
	}
	for _, env := range cases {
		if _, err := c.Decrypt(env, FieldPhone); !errors.Is(err, errs.ErrCiphertextInvalid) {
			t.Fatalf("Decrypt(%q): err=%v, want ErrCiphertextInvalid", env, err)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	t.Parallel()

	a := newTestCipher(t)
	b, err := New(testKey(0x43))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	env, err := a.Encrypt("+15550100", FieldPhone)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if _, err := b.Decrypt(env, FieldPhone); !errors.Is(err, errs.ErrCiphertextInvalid) {
		t.Fatalf("wrong key: err=%v, want ErrCiphertextInvalid", err)
	}
}
