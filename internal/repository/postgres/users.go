package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

var userColumns = []string{
	"id",
	"username",
	"email",
	"password_hash",
	"status",
	"is_active",
	"email_verified_at",
	"failed_login_attempts",
	"locked_until",
	"totp_secret",
	"totp_enabled",
	"registered_at",
	"last_login",
	"last_password_change",
}

// UserRepository implements port.UserRepository using PostgreSQL.
type UserRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewUserRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewUserRepository(exec pgExecutor) *UserRepository {
	return &UserRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("auth.users").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByIdentifier retrieves a user by username or email.
func (r *UserRepository) GetByIdentifier(ctx context.Context, identifier string) (*domain.User, error) {
	stmt, args, err := r.builder.
		Select(userColumns...).
		From("auth.users").
		Where(squirrel.Or{
			squirrel.Eq{"username": identifier},
			squirrel.Eq{"email": identifier},
		}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user by identifier sql: %w", err)
	}

	return r.scanUser(r.exec.QueryRow(ctx, stmt, args...))
}

// RegisterFailedAttempt increments the failed-attempt counter and arms the
// lockout when the new count reaches threshold, all in one statement so
// concurrent failures observe a consistent counter.
func (r *UserRepository) RegisterFailedAttempt(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	const stmt = `
		UPDATE auth.users
		SET failed_login_attempts = failed_login_attempts + 1,
		    locked_until = CASE
		        WHEN failed_login_attempts + 1 >= $2 THEN now() + $3::interval
		        ELSE locked_until
		    END
		WHERE id = $1
		RETURNING failed_login_attempts, locked_until`

	var (
		attempts    int
		lockedUntil *time.Time
	)
	interval := fmt.Sprintf("%d milliseconds", lockFor.Milliseconds())
	if err := r.exec.QueryRow(ctx, stmt, id, threshold, interval).Scan(&attempts, &lockedUntil); err != nil {
		if err == pgx.ErrNoRows {
			return 0, nil, repository.ErrNotFound
		}
		return 0, nil, fmt.Errorf("register failed attempt: %w", err)
	}

	return attempts, lockedUntil, nil
}

// ClearLockout resets the failed-attempt counter and lockout expiry.
func (r *UserRepository) ClearLockout(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("failed_login_attempts", 0).
		Set("locked_until", nil).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear lockout sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}

	return nil
}

// UpdatePassword replaces the password hash and stamps the change time.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string, changedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("password_hash", passwordHash).
		Set("last_password_change", changedAt).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// UpdateLastLogin stamps a successful authentication.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	stmt, args, err := r.builder.Update("auth.users").
		Set("last_login", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update last login sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}

	return nil
}

// SetTOTP stores or clears the second-factor secret and its enabled flag.
func (r *UserRepository) SetTOTP(ctx context.Context, id string, secret *string, enabled bool) error {
	var secretValue any
	if secret != nil && *secret != "" {
		secretValue = *secret
	}

	stmt, args, err := r.builder.Update("auth.users").
		Set("totp_secret", secretValue).
		Set("totp_enabled", enabled).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set totp sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set totp: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListBackupCodes returns every backup code row for the user, used or not.
func (r *UserRepository) ListBackupCodes(ctx context.Context, userID string) ([]domain.BackupCode, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "code_hash", "created_at", "used_at").
		From("auth.backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select backup codes sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select backup codes: %w", err)
	}
	defer rows.Close()

	var codes []domain.BackupCode
	for rows.Next() {
		var code domain.BackupCode
		if err := rows.Scan(&code.ID, &code.UserID, &code.CodeHash, &code.CreatedAt, &code.UsedAt); err != nil {
			return nil, fmt.Errorf("scan backup code: %w", err)
		}
		codes = append(codes, code)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate backup codes: %w", err)
	}

	return codes, nil
}

// ReplaceBackupCodes swaps the whole backup code set for the user.
func (r *UserRepository) ReplaceBackupCodes(ctx context.Context, userID string, codes []domain.BackupCode) error {
	del, delArgs, err := r.builder.Delete("auth.backup_codes").
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete backup codes sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, del, delArgs...); err != nil {
		return fmt.Errorf("delete backup codes: %w", err)
	}

	if len(codes) == 0 {
		return nil
	}

	insert := r.builder.Insert("auth.backup_codes").
		Columns("id", "user_id", "code_hash", "created_at")
	for _, code := range codes {
		insert = insert.Values(code.ID, code.UserID, code.CodeHash, code.CreatedAt)
	}

	stmt, args, err := insert.ToSql()
	if err != nil {
		return fmt.Errorf("build insert backup codes sql: %w", err)
	}
	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert backup codes: %w", err)
	}

	return nil
}

// MarkBackupCodeUsed burns one code. Only unused codes match.
func (r *UserRepository) MarkBackupCodeUsed(ctx context.Context, codeID string, usedAt time.Time) error {
	stmt, args, err := r.builder.Update("auth.backup_codes").
		Set("used_at", usedAt).
		Where(squirrel.Eq{"id": codeID}).
		Where("used_at IS NULL").
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark backup code sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark backup code used: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListKnownDevices returns the fingerprints seen on past logins.
func (r *UserRepository) ListKnownDevices(ctx context.Context, userID string) ([]domain.KnownDevice, error) {
	stmt, args, err := r.builder.
		Select("id", "user_id", "fingerprint", "ip", "user_agent", "first_seen_at", "last_seen_at").
		From("auth.known_devices").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("last_seen_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select known devices sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select known devices: %w", err)
	}
	defer rows.Close()

	var devices []domain.KnownDevice
	for rows.Next() {
		var device domain.KnownDevice
		if err := rows.Scan(
			&device.ID,
			&device.UserID,
			&device.Fingerprint,
			&device.IP,
			&device.UserAgent,
			&device.FirstSeenAt,
			&device.LastSeenAt,
		); err != nil {
			return nil, fmt.Errorf("scan known device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate known devices: %w", err)
	}

	return devices, nil
}

// RecordKnownDevice upserts a fingerprint sighting.
func (r *UserRepository) RecordKnownDevice(ctx context.Context, device domain.KnownDevice) error {
	const stmt = `
		INSERT INTO auth.known_devices (id, user_id, fingerprint, ip, user_agent, first_seen_at, last_seen_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (user_id, fingerprint) DO UPDATE
		SET ip = EXCLUDED.ip,
		    user_agent = EXCLUDED.user_agent,
		    last_seen_at = EXCLUDED.last_seen_at`

	if _, err := r.exec.Exec(ctx, stmt,
		device.ID,
		device.UserID,
		device.Fingerprint,
		device.IP,
		device.UserAgent,
		device.FirstSeenAt,
		device.LastSeenAt,
	); err != nil {
		return fmt.Errorf("record known device: %w", err)
	}

	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (*domain.User, error) {
	var (
		user       domain.User
		totpSecret sql.NullString
	)

	if err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.Status,
		&user.IsActive,
		&user.EmailVerifiedAt,
		&user.FailedLoginAttempts,
		&user.LockedUntil,
		&totpSecret,
		&user.TOTPEnabled,
		&user.RegisteredAt,
		&user.LastLogin,
		&user.LastPasswordChange,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	if totpSecret.Valid {
		val := totpSecret.String
		user.TOTPSecret = &val
	}

	return &user, nil
}
