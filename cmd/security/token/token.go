package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	// MinBytes is the smallest accepted entropy size (128 bits).
	MinBytes = 16
	// MaxBytes bounds allocation for misconfigured callers.
	MaxBytes = 64
	// DefaultBytes is used when callers pass zero.
	DefaultBytes = 32
)

// NewOpaque returns a URL-safe random token built from nBytes of entropy.
func NewOpaque(nBytes int) (string, error) {
	if nBytes == 0 {
		nBytes = DefaultBytes
	}
	if nBytes < MinBytes {
		return "", ErrTooShort
	}
	if nBytes > MaxBytes {
		return "", ErrTooLong
	}

	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("token: read entropy: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Equal compares two tokens in constant time.
// Empty inputs never match.
func Equal(a, b string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HashSHA256Hex returns the hex SHA-256 of token for server-side lookup.
// Only tokens with full entropy from NewOpaque should be stored this way.
func HashSHA256Hex(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
