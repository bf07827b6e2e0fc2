package postgres

import (
	"context"
	"database/sql"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// RoleRepository implements port.RoleRepository using PostgreSQL.
type RoleRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewRoleRepository constructs a repository backed by any executor that
// satisfies pgExecutor.
func NewRoleRepository(exec pgExecutor) *RoleRepository {
	return &RoleRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// List returns every role in the hierarchy.
func (r *RoleRepository) List(ctx context.Context) ([]domain.Role, error) {
	stmt, args, err := r.builder.
		Select("id", "name", "parent_id", "description", "created_at").
		From("auth.roles").
		OrderBy("name").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select roles sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select roles: %w", err)
	}
	defer rows.Close()

	var roles []domain.Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate roles: %w", err)
	}

	return roles, nil
}

// GetByName retrieves one role by its unique name.
func (r *RoleRepository) GetByName(ctx context.Context, name domain.RoleName) (*domain.Role, error) {
	stmt, args, err := r.builder.
		Select("id", "name", "parent_id", "description", "created_at").
		From("auth.roles").
		Where(squirrel.Eq{"name": name.String()}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select role sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select role: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("select role: %w", err)
		}
		return nil, repository.ErrNotFound
	}

	role, err := scanRole(rows)
	if err != nil {
		return nil, err
	}

	return &role, nil
}

// Create inserts a new role node.
func (r *RoleRepository) Create(ctx context.Context, role domain.Role) error {
	var parentValue any
	if role.ParentID != nil {
		parentValue = *role.ParentID
	}
	var descriptionValue any
	if role.Description != nil {
		descriptionValue = *role.Description
	}

	stmt, args, err := r.builder.Insert("auth.roles").
		Columns("id", "name", "parent_id", "description", "created_at").
		Values(role.ID, role.Name.String(), parentValue, descriptionValue, role.CreatedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert role sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert role: %w", err)
	}

	return nil
}

// Reparent moves a role under a new parent, or to the root with nil.
func (r *RoleRepository) Reparent(ctx context.Context, roleID string, parentID *string) error {
	var parentValue any
	if parentID != nil {
		parentValue = *parentID
	}

	stmt, args, err := r.builder.Update("auth.roles").
		Set("parent_id", parentValue).
		Where(squirrel.Eq{"id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reparent role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("reparent role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Delete removes a role node. Children are re-rooted by the foreign key's
// ON DELETE SET NULL.
func (r *RoleRepository) Delete(ctx context.Context, roleID string) error {
	stmt, args, err := r.builder.Delete("auth.roles").
		Where(squirrel.Eq{"id": roleID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete role sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListAssignments returns the user's role assignments across all scopes.
func (r *RoleRepository) ListAssignments(ctx context.Context, userID string) ([]domain.RoleAssignment, error) {
	stmt, args, err := r.builder.
		Select("ra.user_id", "r.name", "ra.org_id", "ra.assigned_at").
		From("auth.role_assignments ra").
		Join("auth.roles r ON r.id = ra.role_id").
		Where(squirrel.Eq{"ra.user_id": userID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select assignments sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select assignments: %w", err)
	}
	defer rows.Close()

	var assignments []domain.RoleAssignment
	for rows.Next() {
		var (
			assignment domain.RoleAssignment
			name       string
			orgID      sql.NullString
		)
		if err := rows.Scan(&assignment.UserID, &name, &orgID, &assignment.AssignedAt); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		assignment.RoleName = domain.RoleName(name)
		if orgID.Valid {
			val := orgID.String
			assignment.OrgID = &val
		}
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate assignments: %w", err)
	}

	return assignments, nil
}

// Assign grants a role to a user, optionally bound to one organization.
func (r *RoleRepository) Assign(ctx context.Context, assignment domain.RoleAssignment) error {
	var orgValue any
	if assignment.OrgID != nil {
		orgValue = *assignment.OrgID
	}

	const stmt = `
		INSERT INTO auth.role_assignments (user_id, role_id, org_id, assigned_at)
		SELECT $1, r.id, $2, $3
		FROM auth.roles r
		WHERE r.name = $4
		ON CONFLICT DO NOTHING`

	tag, err := r.exec.Exec(ctx, stmt, assignment.UserID, orgValue, assignment.AssignedAt, assignment.RoleName.String())
	if err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the role does not exist or the assignment already does;
		// re-check so the caller gets a useful error for the former.
		if _, err := r.GetByName(ctx, assignment.RoleName); err != nil {
			return err
		}
	}

	return nil
}

// Unassign revokes a role assignment in the given scope.
func (r *RoleRepository) Unassign(ctx context.Context, userID string, role domain.RoleName, orgID *string) error {
	query := r.builder.Delete("auth.role_assignments").
		Where("role_id = (SELECT id FROM auth.roles WHERE name = ?)", role.String()).
		Where(squirrel.Eq{"user_id": userID})
	if orgID == nil {
		query = query.Where("org_id IS NULL")
	} else {
		query = query.Where(squirrel.Eq{"org_id": *orgID})
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build delete assignment sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}

	return nil
}

func scanRole(rows pgx.Rows) (domain.Role, error) {
	var (
		role        domain.Role
		name        string
		parentID    sql.NullString
		description sql.NullString
	)
	if err := rows.Scan(&role.ID, &name, &parentID, &description, &role.CreatedAt); err != nil {
		return domain.Role{}, fmt.Errorf("scan role: %w", err)
	}

	role.Name = domain.RoleName(name)
	if parentID.Valid {
		val := parentID.String
		role.ParentID = &val
	}
	if description.Valid {
		val := description.String
		role.Description = &val
	}

	return role, nil
}
