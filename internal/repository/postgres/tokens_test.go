package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

func TestPersistentTokenRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPersistentTokenRepository(mock)

	createdAt := time.Now().UTC()
	token := domain.PersistentToken{
		Series:    "series-1",
		TokenHash: "hash-1",
		UserID:    "user-1",
		CreatedAt: createdAt,
		ExpiresAt: createdAt.Add(30 * 24 * time.Hour),
	}

	mock.ExpectExec(`INSERT INTO auth\.persistent_tokens`).
		WithArgs(
			token.Series,
			token.TokenHash,
			token.UserID,
			token.CreatedAt,
			token.ExpiresAt,
			(*time.Time)(nil),
			(*string)(nil),
			(*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), token); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPersistentTokenRepository_GetBySeriesNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPersistentTokenRepository(mock)

	mock.ExpectQuery(`SELECT .+ FROM auth\.persistent_tokens`).
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"series", "token_hash", "user_id", "created_at", "expires_at", "last_used_at", "last_ip", "last_agent",
		}))

	if _, err := repo.GetBySeries(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPersistentTokenRepository_RotateHashGuard(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPersistentTokenRepository(mock)
	usedAt := time.Now().UTC()

	// Guard matches: one row updated, rotation succeeds.
	mock.ExpectExec(`UPDATE auth\.persistent_tokens`).
		WithArgs("new-hash", usedAt, (*string)(nil), (*string)(nil), "series-1", "old-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	rotated, err := repo.RotateHash(context.Background(), "series-1", "old-hash", "new-hash", usedAt, nil, nil)
	if err != nil {
		t.Fatalf("RotateHash returned error: %v", err)
	}
	if !rotated {
		t.Fatalf("expected rotation to succeed when the guard matches")
	}

	// Guard stale: zero rows, the caller must treat this as lost race.
	mock.ExpectExec(`UPDATE auth\.persistent_tokens`).
		WithArgs("newer-hash", usedAt, (*string)(nil), (*string)(nil), "series-1", "old-hash").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	rotated, err = repo.RotateHash(context.Background(), "series-1", "old-hash", "newer-hash", usedAt, nil, nil)
	if err != nil {
		t.Fatalf("RotateHash returned error: %v", err)
	}
	if rotated {
		t.Fatalf("stale guard must not report success")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPersistentTokenRepository_DeleteByUser(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPersistentTokenRepository(mock)

	mock.ExpectExec(`DELETE FROM auth\.persistent_tokens`).
		WithArgs("user-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	count, err := repo.DeleteByUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("DeleteByUser returned error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 deleted rows, got %d", count)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
