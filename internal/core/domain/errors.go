package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors forming the domain error taxonomy. Handlers map these to
// HTTP statuses; everything unmatched becomes a generic internal error.
var (
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation error")
	// ErrInvalidCredentials is the generic authentication failure. It is
	// deliberately identical for unknown identifiers and wrong secrets.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrEmailNotVerified indicates credentials were valid but the account
	// has not completed email verification.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrPermissionDenied indicates the actor is not allowed to perform
	// the action.
	ErrPermissionDenied = errors.New("insufficient permissions")
	// ErrImpersonationBlocked indicates a sensitive operation was refused
	// because an impersonation context is active.
	ErrImpersonationBlocked = errors.New("operation not permitted while impersonating")
	// ErrTokenInvalid indicates a malformed or unrecognized token.
	ErrTokenInvalid = errors.New("token invalid")
	// ErrTokenExpired indicates a recognized token past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrConflict indicates a duplicate identifier or already-enabled state.
	ErrConflict = errors.New("conflict")
)

// AccountLockedError carries lockout expiry details alongside the
// ACCOUNT_LOCKED classification.
type AccountLockedError struct {
	LockedUntil time.Time
	RetryAfter  time.Duration
}

func (e *AccountLockedError) Error() string {
	return fmt.Sprintf("account locked for %s", e.RetryAfter.Round(time.Second))
}

// RateLimitedError carries the standard rate-limit response fields.
type RateLimitedError struct {
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limit exceeded, retry in %s", e.RetryAfter.Round(time.Second))
}
