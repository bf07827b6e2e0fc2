package usecase

import (
	"context"
	"strings"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// Organization attributes understood by the OrganizationVoter.
const (
	OrgAttrView          = "organization.view"
	OrgAttrEdit          = "organization.edit"
	OrgAttrManage        = "organization.manage"
	OrgAttrDelete        = "organization.delete"
	OrgAttrMembersView   = "organization.members.view"
	OrgAttrMembersManage = "organization.members.manage"
	OrgAttrInvitesManage = "organization.invites.manage"
)

// User attributes understood by the UserVoter.
const (
	UserAttrView        = "user.view"
	UserAttrEdit        = "user.edit"
	UserAttrDelete      = "user.delete"
	UserAttrRolesManage = "user.roles.manage"
)

// roleChecker is the slice of AccessService the voters need; taking the
// interface keeps the voters testable without the full service.
type roleChecker interface {
	HasRole(ctx context.Context, user *domain.User, role domain.RoleName, scope domain.Scope) (bool, error)
}

// orgMinimumRole fixes the weakest organization-scoped role that grants
// each attribute.
var orgMinimumRole = map[string]domain.RoleName{
	OrgAttrView:          domain.RoleOrgMember,
	OrgAttrMembersView:   domain.RoleOrgMember,
	OrgAttrEdit:          domain.RoleOrgAdmin,
	OrgAttrManage:        domain.RoleOrgAdmin,
	OrgAttrMembersManage: domain.RoleOrgAdmin,
	OrgAttrInvitesManage: domain.RoleOrgAdmin,
	OrgAttrDelete:        domain.RoleOrgOwner,
}

// OrganizationVoter decides organization.* attributes for organization
// subjects. A platform admin always passes; everyone else needs a role at
// or above the attribute's minimum tier within that organization's scope.
type OrganizationVoter struct {
	checker roleChecker
}

// NewOrganizationVoter constructs the voter.
func NewOrganizationVoter(checker roleChecker) *OrganizationVoter {
	return &OrganizationVoter{checker: checker}
}

// Supports accepts known organization attributes paired with an
// organization subject (anything exposing an id and slug).
func (v *OrganizationVoter) Supports(attribute string, subject any) bool {
	if _, ok := orgMinimumRole[attribute]; !ok {
		return false
	}
	org, ok := asOrganization(subject)
	return ok && org.ID != "" && org.Slug != ""
}

// Vote grants when the user is a platform admin or holds the required
// role tier within the organization's scope; otherwise it denies.
func (v *OrganizationVoter) Vote(ctx context.Context, user *domain.User, attribute string, subject any) (Vote, error) {
	org, ok := asOrganization(subject)
	if !ok {
		return VoteAbstain, nil
	}

	isAdmin, err := v.checker.HasRole(ctx, user, domain.RoleAdmin, domain.PlatformScope())
	if err != nil {
		return VoteAbstain, err
	}
	if isAdmin {
		return VoteGrant, nil
	}

	required, ok := orgMinimumRole[attribute]
	if !ok {
		return VoteAbstain, nil
	}

	held, err := v.checker.HasRole(ctx, user, required, domain.OrgScope(org.ID))
	if err != nil {
		return VoteAbstain, err
	}
	if held {
		return VoteGrant, nil
	}

	return VoteDeny, nil
}

// UserVoter decides user.* attributes for user subjects. Self-access
// grants view and edit but never delete or role management; moderators
// may view and edit others; platform admins may do everything.
type UserVoter struct {
	checker roleChecker
}

// NewUserVoter constructs the voter.
func NewUserVoter(checker roleChecker) *UserVoter {
	return &UserVoter{checker: checker}
}

// Supports accepts known user attributes paired with a user subject.
func (v *UserVoter) Supports(attribute string, subject any) bool {
	switch attribute {
	case UserAttrView, UserAttrEdit, UserAttrDelete, UserAttrRolesManage:
	default:
		return false
	}
	target, ok := asUser(subject)
	return ok && target.ID != ""
}

// Vote applies the self/moderator/admin ladder.
func (v *UserVoter) Vote(ctx context.Context, user *domain.User, attribute string, subject any) (Vote, error) {
	target, ok := asUser(subject)
	if !ok {
		return VoteAbstain, nil
	}

	isAdmin, err := v.checker.HasRole(ctx, user, domain.RoleAdmin, domain.PlatformScope())
	if err != nil {
		return VoteAbstain, err
	}
	if isAdmin {
		return VoteGrant, nil
	}

	if user.ID == target.ID {
		switch attribute {
		case UserAttrView, UserAttrEdit:
			return VoteGrant, nil
		default:
			// Users never delete themselves or manage their own roles here.
			return VoteDeny, nil
		}
	}

	if attribute == UserAttrView || attribute == UserAttrEdit {
		isModerator, err := v.checker.HasRole(ctx, user, domain.RoleModerator, domain.PlatformScope())
		if err != nil {
			return VoteAbstain, err
		}
		if isModerator {
			return VoteGrant, nil
		}
	}

	return VoteDeny, nil
}

func asOrganization(subject any) (*domain.Organization, bool) {
	switch s := subject.(type) {
	case *domain.Organization:
		return s, s != nil
	case domain.Organization:
		return &s, true
	default:
		return nil, false
	}
}

func asUser(subject any) (*domain.User, bool) {
	switch s := subject.(type) {
	case *domain.User:
		return s, s != nil
	case domain.User:
		return &s, true
	default:
		return nil, false
	}
}

// IsOrgAttribute reports whether the attribute belongs to the
// organization voter's namespace.
func IsOrgAttribute(attribute string) bool {
	return strings.HasPrefix(attribute, "organization.")
}
