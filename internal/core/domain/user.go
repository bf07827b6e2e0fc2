package domain

import "time"

// UserStatus enumerates possible account states.
type UserStatus string

const (
	UserStatusPending  UserStatus = "pending"
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// User mirrors the persisted representation in the users table.
//
// Lockout state (FailedLoginAttempts, LockedUntil) lives directly on the
// row so that the increment-and-lock step can be a single round trip.
// A user with an empty PasswordHash is federated-only and can never pass
// credential authentication.
type User struct {
	ID                  string
	Username            string
	Email               string
	PasswordHash        string
	Status              UserStatus
	IsActive            bool
	EmailVerifiedAt     *time.Time
	FailedLoginAttempts int
	LockedUntil         *time.Time
	TOTPSecret          *string
	TOTPEnabled         bool
	RegisteredAt        time.Time
	LastLogin           *time.Time
	LastPasswordChange  time.Time
}

// IsLocked reports whether the account lockout is still in effect at ref.
func (u *User) IsLocked(ref time.Time) bool {
	return u.LockedUntil != nil && u.LockedUntil.After(ref)
}

// EmailVerified reports whether the account completed email verification.
func (u *User) EmailVerified() bool {
	return u.EmailVerifiedAt != nil
}

// BackupCode is a single-use recovery code stored as an Argon2 hash.
type BackupCode struct {
	ID        string
	UserID    string
	CodeHash  string
	CreatedAt time.Time
	UsedAt    *time.Time
}

// KnownDevice records a client fingerprint seen on a successful login.
// Used for best-effort "new device" notifications only.
type KnownDevice struct {
	ID          string
	UserID      string
	Fingerprint string
	IP          string
	UserAgent   string
	FirstSeenAt time.Time
	LastSeenAt  time.Time
}

// Organization is the scoping subject for organization-level permissions.
type Organization struct {
	ID      string
	Slug    string
	Name    string
	OwnerID string
}
