package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// RoleRepository exposes persistence behavior for roles and their
// per-user, optionally organization-scoped assignments.
type RoleRepository interface {
	List(ctx context.Context) ([]domain.Role, error)
	GetByName(ctx context.Context, name domain.RoleName) (*domain.Role, error)

	// Create, Reparent, and Delete mutate the hierarchy; callers must
	// invalidate the hierarchy cache afterwards.
	Create(ctx context.Context, role domain.Role) error
	Reparent(ctx context.Context, roleID string, parentID *string) error
	Delete(ctx context.Context, roleID string) error

	ListAssignments(ctx context.Context, userID string) ([]domain.RoleAssignment, error)
	Assign(ctx context.Context, assignment domain.RoleAssignment) error
	Unassign(ctx context.Context, userID string, role domain.RoleName, orgID *string) error
}
