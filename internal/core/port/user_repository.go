package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// UserRepository exposes persistence behavior for users, including the
// embedded lockout record and second-factor material.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error)

	// RegisterFailedAttempt atomically increments the failed-attempt
	// counter and, when the new count reaches threshold, sets the lockout
	// expiry to now+lockFor. It returns the post-increment count and the
	// lockout expiry, if one is now in effect. The increment and the
	// threshold check happen in a single statement so concurrent failures
	// cannot race past the threshold.
	RegisterFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (attempts int, lockedUntil *time.Time, err error)

	// ClearLockout resets the failed-attempt counter and lockout expiry.
	ClearLockout(ctx context.Context, id string) error

	UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error

	SetTOTP(ctx context.Context, id string, secret *string, enabled bool) error

	ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error)
	ReplaceBackupCodes(ctx context.Context, userID string, codes []domain.BackupCode) error
	MarkBackupCodeUsed(ctx context.Context, codeID string, usedAt time.Time) error

	ListKnownDevices(ctx context.Context, userID string) ([]domain.KnownDevice, error)
	RecordKnownDevice(ctx context.Context, device domain.KnownDevice) error
}
