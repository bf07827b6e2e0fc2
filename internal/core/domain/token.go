package domain

import (
	"fmt"
	"strings"
	"time"
)

// PersistentToken is one rotating "remember this device" credential.
// The series id is stable for the lifetime of the token; the token half
// is re-generated on every successful use and only its hash is stored.
type PersistentToken struct {
	Series     string
	TokenHash  string
	UserID     string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	LastUsedAt *time.Time
	LastIP     *string
	LastAgent  *string
}

// Expired reports whether the token series is past its expiry at ref.
func (t *PersistentToken) Expired(ref time.Time) bool {
	return ref.After(t.ExpiresAt)
}

// SplitPersistentToken splits a "series:token" cookie value into its
// halves. Both halves are opaque hex strings of equal length.
func SplitPersistentToken(composite string) (series, token string, err error) {
	parts := strings.SplitN(composite, ":", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed persistent token", ErrTokenInvalid)
	}
	return parts[0], parts[1], nil
}

// JoinPersistentToken builds the composite cookie value.
func JoinPersistentToken(series, token string) string {
	return series + ":" + token
}
