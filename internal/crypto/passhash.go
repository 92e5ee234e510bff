// Package crypto implements server-side password hashing and verification.
package crypto

import (
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// PasswordHashCost is the bcrypt cost factor. Cost 10 keeps verification
// around 100ms on commodity hardware, which is the intended brake on
// offline guessing.
const PasswordHashCost = bcrypt.DefaultCost

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandHex returns n random bytes hex-encoded (2n characters).
func RandHex(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// HashPassword returns the bcrypt hash of password. The salt is generated
// internally, so two hashes of the same password differ.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), PasswordHashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// VerifyPassword reports whether password matches the stored bcrypt hash.
// The comparison is the hash algorithm's own, never a byte-wise equality.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
