package domain

import "time"

// ImpersonationContext records an administrator acting as another user.
// It is embedded in the session and has no store-backed state: expiry is
// computed from StartedAt on every access, never pushed by a timer.
type ImpersonationContext struct {
	AdminID     string
	AdminEmail  string
	TargetID    string
	TargetEmail string
	StartedAt   time.Time
}

// Session is the request-scoped identity established from an access token.
type Session struct {
	UserID        string
	Email         string
	Roles         []string
	TokenID       string
	IssuedAt      time.Time
	ExpiresAt     time.Time
	Impersonation *ImpersonationContext
}
