// Package password hashes and verifies user passwords in the
// "hex(salt)$hex(key)" format stored in the users table.
package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 100000
	// KeyLength is the derived key size in bytes (256 bits).
	KeyLength = 32
	// SaltLength is the random salt size in bytes.
	SaltLength = 16
)

// ErrMalformedHash is returned for stored values not in salt$hash form.
var ErrMalformedHash = errors.New("malformed password hash")

// Hash derives a key from password with a fresh random salt.
func Hash(password string) (string, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	return hashWithSalt(password, salt), nil
}

// Verify reports whether password matches the stored salt$hash value.
// Malformed stored values never verify.
func Verify(stored, password string) bool {
	salt, key, err := parse(stored)
	if err != nil {
		return false
	}
	candidate := pbkdf2.Key([]byte(password), salt, Iterations, KeyLength, sha256.New)
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func hashWithSalt(password string, salt []byte) string {
	key := pbkdf2.Key([]byte(password), salt, Iterations, KeyLength, sha256.New)
	return hex.EncodeToString(salt) + "$" + hex.EncodeToString(key)
}

func parse(stored string) (salt, key []byte, err error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 2 {
		return nil, nil, ErrMalformedHash
	}
	salt, err = hex.DecodeString(parts[0])
	if err != nil || len(salt) == 0 {
		return nil, nil, ErrMalformedHash
	}
	key, err = hex.DecodeString(parts[1])
	if err != nil || len(key) != KeyLength {
		return nil, nil, ErrMalformedHash
	}
	return salt, key, nil
}
