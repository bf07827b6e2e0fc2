package usecase

import (
	"context"
	"testing"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func strPtr(s string) *string { return &s }

func platformRoleForest() []domain.Role {
	return []domain.Role{
		{ID: "r-user", Name: domain.RoleUser},
		{ID: "r-moderator", Name: domain.RoleModerator, ParentID: strPtr("r-user")},
		{ID: "r-admin", Name: domain.RoleAdmin, ParentID: strPtr("r-moderator")},
		{ID: "r-org-member", Name: domain.RoleOrgMember},
		{ID: "r-org-admin", Name: domain.RoleOrgAdmin, ParentID: strPtr("r-org-member")},
		{ID: "r-org-owner", Name: domain.RoleOrgOwner, ParentID: strPtr("r-org-admin")},
	}
}

func TestResolveIncludesSelfAndAncestors(t *testing.T) {
	svc := NewRoleHierarchyService(newStubRoleRepo(platformRoleForest()), 0, nil)

	resolved, err := svc.Resolve(context.Background(), []domain.RoleName{domain.RoleAdmin})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, want := range []domain.RoleName{domain.RoleAdmin, domain.RoleModerator, domain.RoleUser} {
		if _, ok := resolved[want]; !ok {
			t.Fatalf("expected %q in resolved set, got %v", want, resolved)
		}
	}
	if _, ok := resolved[domain.RoleOrgMember]; ok {
		t.Fatalf("unexpected organization role in platform chain resolution")
	}
}

func TestResolveChildSupersetOfParent(t *testing.T) {
	svc := NewRoleHierarchyService(newStubRoleRepo(platformRoleForest()), 0, nil)
	ctx := context.Background()

	child, err := svc.Resolve(ctx, []domain.RoleName{domain.RoleModerator})
	if err != nil {
		t.Fatalf("resolve child: %v", err)
	}
	parent, err := svc.Resolve(ctx, []domain.RoleName{domain.RoleUser})
	if err != nil {
		t.Fatalf("resolve parent: %v", err)
	}

	for name := range parent {
		if _, ok := child[name]; !ok {
			t.Fatalf("child resolution missing inherited role %q", name)
		}
	}
}

func TestResolveUnknownRoleIsItself(t *testing.T) {
	svc := NewRoleHierarchyService(newStubRoleRepo(platformRoleForest()), 0, nil)

	resolved, err := svc.Resolve(context.Background(), []domain.RoleName{"ghost"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected only the unknown role itself, got %v", resolved)
	}
	if _, ok := resolved[domain.RoleName("ghost")]; !ok {
		t.Fatalf("expected unknown role to resolve to itself")
	}
}

func TestResolveTerminatesOnCycle(t *testing.T) {
	// a -> b -> c -> a
	roles := []domain.Role{
		{ID: "a", Name: "alpha", ParentID: strPtr("c")},
		{ID: "b", Name: "beta", ParentID: strPtr("a")},
		{ID: "c", Name: "gamma", ParentID: strPtr("b")},
	}
	svc := NewRoleHierarchyService(newStubRoleRepo(roles), 0, nil)

	resolved, err := svc.Resolve(context.Background(), []domain.RoleName{"beta"})
	if err != nil {
		t.Fatalf("resolve with cycle: %v", err)
	}

	// All roles reachable before the repeat must still be present.
	for _, want := range []domain.RoleName{"beta", "alpha", "gamma"} {
		if _, ok := resolved[want]; !ok {
			t.Fatalf("expected %q despite cycle, got %v", want, resolved)
		}
	}
}

func TestResolveDepthCeiling(t *testing.T) {
	roles := []domain.Role{
		{ID: "r0", Name: "level0"},
		{ID: "r1", Name: "level1", ParentID: strPtr("r0")},
		{ID: "r2", Name: "level2", ParentID: strPtr("r1")},
		{ID: "r3", Name: "level3", ParentID: strPtr("r2")},
	}
	svc := NewRoleHierarchyService(newStubRoleRepo(roles), 2, nil)

	resolved, err := svc.Resolve(context.Background(), []domain.RoleName{"level3"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if _, ok := resolved["level2"]; !ok {
		t.Fatalf("expected ancestor within ceiling, got %v", resolved)
	}
	if _, ok := resolved["level0"]; ok {
		t.Fatalf("ancestor beyond depth ceiling should be cut off, got %v", resolved)
	}
}

func TestHierarchyCachedUntilInvalidate(t *testing.T) {
	repo := newStubRoleRepo(platformRoleForest())
	svc := NewRoleHierarchyService(repo, 0, nil)
	ctx := context.Background()

	if _, err := svc.Resolve(ctx, []domain.RoleName{domain.RoleUser}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := svc.Resolve(ctx, []domain.RoleName{domain.RoleAdmin}); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if repo.listCalls != 1 {
		t.Fatalf("expected one storage read for cached lookups, got %d", repo.listCalls)
	}

	svc.Invalidate()
	if _, err := svc.Resolve(ctx, []domain.RoleName{domain.RoleUser}); err != nil {
		t.Fatalf("resolve after invalidate: %v", err)
	}
	if repo.listCalls != 2 {
		t.Fatalf("expected rebuild after invalidate, got %d reads", repo.listCalls)
	}
}
