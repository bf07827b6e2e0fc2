package domain

import (
	"fmt"
	"regexp"
	"time"
)

// RoleName is a validated role identifier. Roles are referenced by name all
// over the authorization surface, so free-form strings are rejected at the
// edge instead of silently minting new roles on a typo.
type RoleName string

var roleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ParseRoleName validates the provided value against the canonical role
// name format.
func ParseRoleName(value string) (RoleName, error) {
	if !roleNamePattern.MatchString(value) {
		return "", fmt.Errorf("%w: invalid role name %q", ErrValidation, value)
	}
	return RoleName(value), nil
}

// IsValidRoleName reports whether value matches the canonical role format.
func IsValidRoleName(value string) bool {
	return roleNamePattern.MatchString(value)
}

func (n RoleName) String() string { return string(n) }

// Built-in roles. The platform tier forms one inheritance chain
// (admin > moderator > user), the organization tier another
// (org_owner > org_admin > org_member).
const (
	RoleUser      RoleName = "user"
	RoleModerator RoleName = "moderator"
	RoleAdmin     RoleName = "admin"

	RoleOrgMember RoleName = "org_member"
	RoleOrgAdmin  RoleName = "org_admin"
	RoleOrgOwner  RoleName = "org_owner"
)

// Role is a node in the inheritance forest. ParentID is nil for root roles.
// Storage is treated as a general graph: resolution must tolerate cycles.
type Role struct {
	ID          string
	Name        RoleName
	ParentID    *string
	Description *string
	CreatedAt   time.Time
}

// Scope is the organization context of a role assignment or permission
// check. The zero value is the platform-wide scope, which applies in every
// organization context.
type Scope struct {
	orgID string
}

// PlatformScope returns the platform-wide scope.
func PlatformScope() Scope { return Scope{} }

// OrgScope returns a scope bound to a single organization.
func OrgScope(orgID string) Scope { return Scope{orgID: orgID} }

// IsPlatform reports whether the scope is platform-wide.
func (s Scope) IsPlatform() bool { return s.orgID == "" }

// OrgID returns the organization id for organization-bound scopes.
func (s Scope) OrgID() (string, bool) {
	if s.orgID == "" {
		return "", false
	}
	return s.orgID, true
}

func (s Scope) String() string {
	if s.orgID == "" {
		return "platform"
	}
	return "org:" + s.orgID
}

// RoleAssignment links a user to a role, optionally bound to one
// organization. A nil OrgID means the assignment applies platform-wide;
// a non-nil OrgID applies only when the check scope matches it exactly.
type RoleAssignment struct {
	UserID     string
	RoleName   RoleName
	OrgID      *string
	AssignedAt time.Time
}

// AppliesTo reports whether the assignment is in effect for the given
// check scope.
func (a RoleAssignment) AppliesTo(scope Scope) bool {
	if a.OrgID == nil {
		return true
	}
	orgID, ok := scope.OrgID()
	return ok && orgID == *a.OrgID
}
