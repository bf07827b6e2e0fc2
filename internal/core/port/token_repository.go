package port

import (
	"context"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// PersistentTokenRepository persists rotating series/token credentials.
type PersistentTokenRepository interface {
	Create(ctx context.Context, token domain.PersistentToken) error
	GetBySeries(ctx context.Context, series string) (*domain.PersistentToken, error)

	// RotateHash swaps the stored token hash for a series, guarded by the
	// hash the caller just validated. It reports false when the guard no
	// longer matches, which means a concurrent rotation won the race; the
	// loser must re-read the row and take the theft path.
	RotateHash(ctx context.Context, series, currentHash, newHash string, usedAt time.Time, ip, agent *string) (bool, error)

	DeleteBySeries(ctx context.Context, series string) error
	DeleteByUser(ctx context.Context, userID string) (int, error)
	DeleteExpired(ctx context.Context, ref time.Time) (int, error)
}
