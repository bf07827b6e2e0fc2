package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// pgExecutor abstracts pool, transaction, and mock executors.
type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store wraps the pgx pool for repositories.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool. Pool construction, including the
// search_path setup, lives in infra/database.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Repositories bundles the per-aggregate repositories behind one pool.
type Repositories struct {
	Users  *UserRepository
	Roles  *RoleRepository
	Tokens *PersistentTokenRepository
}

// NewRepositories builds all repositories from a single pool.
func NewRepositories(pool *pgxpool.Pool) Repositories {
	return Repositories{
		Users:  NewUserRepository(pool),
		Roles:  NewRoleRepository(pool),
		Tokens: NewPersistentTokenRepository(pool),
	}
}

// Pool exposes the underlying pool for repository construction.
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres store is not initialized")
	}
	return s.pool.Ping(ctx)
}

// Close releases resources associated with the store.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
