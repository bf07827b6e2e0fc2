package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// GenerateHexToken returns a random lowercase hex string using the
// specified number of random bytes (output length is byteLength*2).
func GenerateHexToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return hex.EncodeToString(buf), nil
}

// GenerateBackupCode returns a human-enterable recovery code in the form
// "xxxxx-xxxxx" drawn from a lowercase alphanumeric alphabet.
func GenerateBackupCode() (string, error) {
	const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"

	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate backup code: %w", err)
	}

	var b strings.Builder
	for i, c := range buf {
		if i == 5 {
			b.WriteByte('-')
		}
		b.WriteByte(alphabet[int(c)%len(alphabet)])
	}

	return b.String(), nil
}

// HashToken calculates a SHA-256 hash of the provided value. Used for
// tokens that are high-entropy random values and therefore do not need a
// slow hash at rest.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
