// Package fieldcipher provides authenticated encryption for at-rest PII
// fields. Output is a hex envelope "nonce:tag:ciphertext" stored in place of
// the plaintext column.
package fieldcipher

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/piggyvault/identity-core/internal/errs"
)

// Params
const (
	KeySize   = 32 // AES-256
	NonceSize = 12
	TagSize   = 16
)

// FieldType names the kind of plaintext being protected. It documents and
// validates intent only; the algorithm is the same for every field.
type FieldType string

// Known field types. The account model carries a single encrypted field today.
const (
	FieldPhone FieldType = "phone"
)

func (t FieldType) valid() bool {
	switch t {
	case FieldPhone:
		return true
	}
	return false
}

// Cipher encrypts and decrypts individual PII fields with AES-256-GCM.
// It is stateless and safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a Cipher from a raw 256-bit key. Anything but exactly 32 bytes
// is a configuration fault, not a runtime condition.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("fieldcipher: key must be %d bytes, got %d: %w", KeySize, len(key), errs.ErrConfig)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcipher: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the hex
// envelope. Empty plaintext maps to an empty envelope (no-op). Nonce reuse
// under one key breaks GCM, so the nonce is drawn fresh on every call.
func (c *Cipher) Encrypt(plaintext string, ft FieldType) (string, error) {
	if !ft.valid() {
		return "", fmt.Errorf("fieldcipher: unknown field type %q", ft)
	}
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("fieldcipher: nonce: %w", err)
	}

	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(tag) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt opens a hex envelope and returns the plaintext. Empty envelope maps
// to empty plaintext. Any parse or authentication failure — a flipped byte, a
// truncated part, a different key — yields errs.ErrCiphertextInvalid, never
// partial output.
func (c *Cipher) Decrypt(envelope string, ft FieldType) (string, error) {
	if !ft.valid() {
		return "", fmt.Errorf("fieldcipher: unknown field type %q", ft)
	}
	if envelope == "" {
		return "", nil
	}

	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", errs.ErrCiphertextInvalid
	}
	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != NonceSize {
		return "", errs.ErrCiphertextInvalid
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != TagSize {
		return "", errs.ErrCiphertextInvalid
	}
	ct, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", errs.ErrCiphertextInvalid
	}

	plain, err := c.aead.Open(nil, nonce, append(ct, tag...), nil)
	if err != nil {
		return "", errs.ErrCiphertextInvalid
	}
	return string(plain), nil
}
