package usecase

import (
	"context"
	"testing"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func newAccessFixture(t *testing.T, voters ...Voter) (*AccessService, *stubRoleRepo) {
	t.Helper()
	repo := newStubRoleRepo(platformRoleForest())
	hierarchy := NewRoleHierarchyService(repo, 0, nil)
	return NewAccessService(hierarchy, repo, nil, voters...), repo
}

func TestHasRoleScopedAssignmentDoesNotLeakAcrossOrgs(t *testing.T) {
	svc, repo := newAccessFixture(t)
	ctx := context.Background()

	user := &domain.User{ID: "u1", Email: "u1@example.com"}
	orgB := "org-b"
	if err := repo.Assign(ctx, domain.RoleAssignment{UserID: "u1", RoleName: domain.RoleOrgAdmin, OrgID: &orgB}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	held, err := svc.HasRole(ctx, user, domain.RoleOrgAdmin, domain.OrgScope("org-a"))
	if err != nil {
		t.Fatalf("has role: %v", err)
	}
	if held {
		t.Fatalf("org-b assignment must not apply in org-a scope")
	}

	held, err = svc.HasRole(ctx, user, domain.RoleOrgAdmin, domain.OrgScope("org-b"))
	if err != nil {
		t.Fatalf("has role: %v", err)
	}
	if !held {
		t.Fatalf("assignment should apply in its own organization")
	}
}

func TestHasRolePlatformAssignmentAppliesEverywhere(t *testing.T) {
	svc, repo := newAccessFixture(t)
	ctx := context.Background()

	user := &domain.User{ID: "u1"}
	if err := repo.Assign(ctx, domain.RoleAssignment{UserID: "u1", RoleName: domain.RoleAdmin}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	for _, scope := range []domain.Scope{domain.PlatformScope(), domain.OrgScope("org-a")} {
		held, err := svc.HasRole(ctx, user, domain.RoleAdmin, scope)
		if err != nil {
			t.Fatalf("has role in %s: %v", scope, err)
		}
		if !held {
			t.Fatalf("platform-wide assignment should apply in %s", scope)
		}
	}
}

func TestHasRoleThroughInheritance(t *testing.T) {
	svc, repo := newAccessFixture(t)
	ctx := context.Background()

	user := &domain.User{ID: "u1"}
	if err := repo.Assign(ctx, domain.RoleAssignment{UserID: "u1", RoleName: domain.RoleAdmin}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	held, err := svc.HasRole(ctx, user, domain.RoleUser, domain.PlatformScope())
	if err != nil {
		t.Fatalf("has role: %v", err)
	}
	if !held {
		t.Fatalf("admin should inherit the user role")
	}
}

type scriptedVoter struct {
	attribute string
	vote      Vote
	calls     int
}

func (v *scriptedVoter) Supports(attribute string, _ any) bool {
	return attribute == v.attribute
}

func (v *scriptedVoter) Vote(_ context.Context, _ *domain.User, _ string, _ any) (Vote, error) {
	v.calls++
	return v.vote, nil
}

func TestIsGrantedFirstDecisionWins(t *testing.T) {
	abstainer := &scriptedVoter{attribute: "doc.edit", vote: VoteAbstain}
	denier := &scriptedVoter{attribute: "doc.edit", vote: VoteDeny}
	granter := &scriptedVoter{attribute: "doc.edit", vote: VoteGrant}
	svc, _ := newAccessFixture(t, abstainer, denier, granter)

	granted, err := svc.IsGranted(context.Background(), &domain.User{ID: "u1"}, "doc.edit", nil)
	if err != nil {
		t.Fatalf("is granted: %v", err)
	}
	if granted {
		t.Fatalf("first deny must short-circuit the chain")
	}
	if granter.calls != 0 {
		t.Fatalf("voter after the deciding deny was consulted")
	}
	if abstainer.calls != 1 {
		t.Fatalf("abstaining voter should have been consulted once, got %d", abstainer.calls)
	}
}

func TestIsGrantedNoSupportingVoterDenies(t *testing.T) {
	svc, _ := newAccessFixture(t, &scriptedVoter{attribute: "doc.edit", vote: VoteGrant})

	granted, err := svc.IsGranted(context.Background(), &domain.User{ID: "u1"}, "something.else", nil)
	if err != nil {
		t.Fatalf("is granted: %v", err)
	}
	if granted {
		t.Fatalf("unsupported attribute must deny")
	}
}

func TestIsGrantedAllAbstainDenies(t *testing.T) {
	a := &scriptedVoter{attribute: "doc.edit", vote: VoteAbstain}
	b := &scriptedVoter{attribute: "doc.edit", vote: VoteAbstain}
	svc, _ := newAccessFixture(t, a, b)

	granted, err := svc.IsGranted(context.Background(), &domain.User{ID: "u1"}, "doc.edit", nil)
	if err != nil {
		t.Fatalf("is granted: %v", err)
	}
	if granted {
		t.Fatalf("exhausted chain without a grant must deny")
	}
}

func TestIsGrantedRoleAttributeDelegatesToHierarchy(t *testing.T) {
	svc, repo := newAccessFixture(t)
	ctx := context.Background()

	user := &domain.User{ID: "u1"}
	if err := repo.Assign(ctx, domain.RoleAssignment{UserID: "u1", RoleName: domain.RoleModerator}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	granted, err := svc.IsGranted(ctx, user, "user", nil)
	if err != nil {
		t.Fatalf("is granted: %v", err)
	}
	if !granted {
		t.Fatalf("moderator should be granted the inherited user role attribute")
	}

	granted, err = svc.IsGranted(ctx, user, "admin", nil)
	if err != nil {
		t.Fatalf("is granted: %v", err)
	}
	if granted {
		t.Fatalf("moderator must not be granted the admin role attribute")
	}
}

func TestOrganizationVoterNoAssignmentsDenies(t *testing.T) {
	repo := newStubRoleRepo(platformRoleForest())
	hierarchy := NewRoleHierarchyService(repo, 0, nil)
	base := NewAccessService(hierarchy, repo, nil)
	svc := NewAccessService(hierarchy, repo, nil, NewOrganizationVoter(base))

	org := &domain.Organization{ID: "org-a", Slug: "org-a", Name: "Org A"}
	granted, err := svc.IsGranted(context.Background(), &domain.User{ID: "nobody"}, OrgAttrView, org)
	if err != nil {
		t.Fatalf("is granted: %v", err)
	}
	if granted {
		t.Fatalf("user with no assignments must be denied organization.view")
	}
}

func TestOrganizationVoterMinimumTiers(t *testing.T) {
	repo := newStubRoleRepo(platformRoleForest())
	hierarchy := NewRoleHierarchyService(repo, 0, nil)
	base := NewAccessService(hierarchy, repo, nil)
	svc := NewAccessService(hierarchy, repo, nil, NewOrganizationVoter(base))
	ctx := context.Background()

	orgA := "org-a"
	member := &domain.User{ID: "member"}
	owner := &domain.User{ID: "owner"}
	if err := repo.Assign(ctx, domain.RoleAssignment{UserID: "member", RoleName: domain.RoleOrgMember, OrgID: &orgA}); err != nil {
		t.Fatalf("assign: %v", err)
	}
	if err := repo.Assign(ctx, domain.RoleAssignment{UserID: "owner", RoleName: domain.RoleOrgOwner, OrgID: &orgA}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	org := &domain.Organization{ID: orgA, Slug: "org-a", Name: "Org A"}

	cases := []struct {
		user      *domain.User
		attribute string
		want      bool
	}{
		{member, OrgAttrView, true},
		{member, OrgAttrEdit, false},
		{member, OrgAttrDelete, false},
		{owner, OrgAttrView, true},
		{owner, OrgAttrManage, true},
		{owner, OrgAttrDelete, true},
	}
	for _, tc := range cases {
		granted, err := svc.IsGranted(ctx, tc.user, tc.attribute, org)
		if err != nil {
			t.Fatalf("is granted %s for %s: %v", tc.attribute, tc.user.ID, err)
		}
		if granted != tc.want {
			t.Fatalf("%s on %s: got %v, want %v", tc.user.ID, tc.attribute, granted, tc.want)
		}
	}
}

func TestUserVoterSelfAccess(t *testing.T) {
	repo := newStubRoleRepo(platformRoleForest())
	hierarchy := NewRoleHierarchyService(repo, 0, nil)
	base := NewAccessService(hierarchy, repo, nil)
	svc := NewAccessService(hierarchy, repo, nil, NewUserVoter(base))
	ctx := context.Background()

	self := &domain.User{ID: "u1", Email: "u1@example.com"}

	for attribute, want := range map[string]bool{
		UserAttrView:        true,
		UserAttrEdit:        true,
		UserAttrDelete:      false,
		UserAttrRolesManage: false,
	} {
		granted, err := svc.IsGranted(ctx, self, attribute, self)
		if err != nil {
			t.Fatalf("is granted %s: %v", attribute, err)
		}
		if granted != want {
			t.Fatalf("self %s: got %v, want %v", attribute, granted, want)
		}
	}
}
