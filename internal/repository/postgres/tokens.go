package postgres

import (
	"context"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// PersistentTokenRepository implements port.PersistentTokenRepository
// using PostgreSQL.
type PersistentTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPersistentTokenRepository constructs a repository backed by any
// executor that satisfies pgExecutor.
func NewPersistentTokenRepository(exec pgExecutor) *PersistentTokenRepository {
	return &PersistentTokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Create inserts a new token series.
func (r *PersistentTokenRepository) Create(ctx context.Context, token domain.PersistentToken) error {
	stmt, args, err := r.builder.Insert("auth.persistent_tokens").
		Columns("series", "token_hash", "user_id", "created_at", "expires_at", "last_used_at", "last_ip", "last_agent").
		Values(token.Series, token.TokenHash, token.UserID, token.CreatedAt, token.ExpiresAt, token.LastUsedAt, token.LastIP, token.LastAgent).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert persistent token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert persistent token: %w", err)
	}

	return nil
}

// GetBySeries retrieves a token row by its series id.
func (r *PersistentTokenRepository) GetBySeries(ctx context.Context, series string) (*domain.PersistentToken, error) {
	stmt, args, err := r.builder.
		Select("series", "token_hash", "user_id", "created_at", "expires_at", "last_used_at", "last_ip", "last_agent").
		From("auth.persistent_tokens").
		Where(squirrel.Eq{"series": series}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select persistent token sql: %w", err)
	}

	var token domain.PersistentToken
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&token.Series,
		&token.TokenHash,
		&token.UserID,
		&token.CreatedAt,
		&token.ExpiresAt,
		&token.LastUsedAt,
		&token.LastIP,
		&token.LastAgent,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan persistent token: %w", err)
	}

	return &token, nil
}

// RotateHash swaps the token hash guarded by the hash the caller just
// validated. Zero rows affected means a concurrent rotation won; the
// caller takes the theft path.
func (r *PersistentTokenRepository) RotateHash(ctx context.Context, series, currentHash, newHash string, usedAt time.Time, ip, agent *string) (bool, error) {
	stmt, args, err := r.builder.Update("auth.persistent_tokens").
		Set("token_hash", newHash).
		Set("last_used_at", usedAt).
		Set("last_ip", ip).
		Set("last_agent", agent).
		Where(squirrel.Eq{"series": series, "token_hash": currentHash}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build rotate persistent token sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("rotate persistent token: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// DeleteBySeries drops one series.
func (r *PersistentTokenRepository) DeleteBySeries(ctx context.Context, series string) error {
	stmt, args, err := r.builder.Delete("auth.persistent_tokens").
		Where(squirrel.Eq{"series": series}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete persistent token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete persistent token: %w", err)
	}

	return nil
}

// DeleteByUser drops every series the user owns and reports how many.
func (r *PersistentTokenRepository) DeleteByUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.Delete("auth.persistent_tokens").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete user persistent tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete user persistent tokens: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

// DeleteExpired removes every series past its expiry at ref.
func (r *PersistentTokenRepository) DeleteExpired(ctx context.Context, ref time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("auth.persistent_tokens").
		Where(squirrel.Lt{"expires_at": ref}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired persistent tokens sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired persistent tokens: %w", err)
	}

	return int(tag.RowsAffected()), nil
}
