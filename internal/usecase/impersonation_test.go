package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func TestIsImpersonatingFalseOnceExpired(t *testing.T) {
	started := time.Now().Add(-2 * time.Hour)
	session := &domain.Session{
		UserID: "target",
		Impersonation: &domain.ImpersonationContext{
			AdminID:   "admin",
			TargetID:  "target",
			StartedAt: started,
		},
	}

	// No explicit end call has happened; expiry alone flips the answer.
	if IsImpersonating(session, time.Hour, time.Now()) {
		t.Fatalf("expired context must not count as impersonating")
	}
	if !HasImpersonationExpired(session.Impersonation, time.Hour, time.Now()) {
		t.Fatalf("context started two hours ago with a one hour timeout is expired")
	}
}

func TestIsImpersonatingActiveContext(t *testing.T) {
	now := time.Now()
	session := &domain.Session{
		Impersonation: &domain.ImpersonationContext{
			AdminID:   "admin",
			TargetID:  "target",
			StartedAt: now.Add(-10 * time.Minute),
		},
	}

	if !IsImpersonating(session, time.Hour, now) {
		t.Fatalf("context inside its timeout should be active")
	}
	if IsImpersonating(&domain.Session{}, time.Hour, now) {
		t.Fatalf("session without a context is never impersonating")
	}
	if IsImpersonating(nil, time.Hour, now) {
		t.Fatalf("nil session is never impersonating")
	}
}

func TestImpersonationTimeRemainingRoundsUp(t *testing.T) {
	now := time.Now()
	imp := &domain.ImpersonationContext{StartedAt: now.Add(-29*time.Minute - 30*time.Second)}

	// 30m30s remain of a 60m budget: displayed as 31 whole minutes.
	if got := ImpersonationTimeRemaining(imp, time.Hour, now); got != 31 {
		t.Fatalf("expected 31 minutes remaining, got %d", got)
	}

	exact := &domain.ImpersonationContext{StartedAt: now.Add(-30 * time.Minute)}
	if got := ImpersonationTimeRemaining(exact, time.Hour, now); got != 30 {
		t.Fatalf("expected exactly 30 minutes remaining, got %d", got)
	}

	expired := &domain.ImpersonationContext{StartedAt: now.Add(-2 * time.Hour)}
	if got := ImpersonationTimeRemaining(expired, time.Hour, now); got != 0 {
		t.Fatalf("expired context reports zero, got %d", got)
	}
}

func newImpersonationFixture(t *testing.T) (*ImpersonationService, *stubUserRepo, *stubRoleRepo, *recordingAudit) {
	t.Helper()

	admin := &domain.User{ID: "admin-1", Email: "admin@example.com", IsActive: true, Status: domain.UserStatusActive}
	target := &domain.User{ID: "target-1", Email: "target@example.com", IsActive: true, Status: domain.UserStatusActive}
	otherAdmin := &domain.User{ID: "admin-2", Email: "admin2@example.com", IsActive: true, Status: domain.UserStatusActive}

	userRepo := newStubUserRepo(admin, target, otherAdmin)
	roleRepo := newStubRoleRepo(platformRoleForest())
	roleRepo.assignments["admin-1"] = []domain.RoleAssignment{{UserID: "admin-1", RoleName: domain.RoleAdmin}}
	roleRepo.assignments["admin-2"] = []domain.RoleAssignment{{UserID: "admin-2", RoleName: domain.RoleAdmin}}
	roleRepo.assignments["target-1"] = []domain.RoleAssignment{{UserID: "target-1", RoleName: domain.RoleUser}}

	hierarchy := NewRoleHierarchyService(roleRepo, 0, nil)
	access := NewAccessService(hierarchy, roleRepo, nil)
	audit := &recordingAudit{}

	return NewImpersonationService(access, userRepo, audit, time.Hour, nil), userRepo, roleRepo, audit
}

func TestImpersonationStart(t *testing.T) {
	svc, users, _, audit := newImpersonationFixture(t)
	ctx := context.Background()

	admin, _ := users.GetByID(ctx, "admin-1")
	imp, err := svc.Start(ctx, &domain.Session{UserID: admin.ID}, admin, "target-1", "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if imp.AdminID != "admin-1" || imp.TargetID != "target-1" {
		t.Fatalf("context carries wrong parties: %+v", imp)
	}
	if !audit.has(domain.AuditImpersonationStarted) {
		t.Fatalf("expected start audit event, got %v", audit.actions())
	}
}

func TestImpersonationStartRequiresAdmin(t *testing.T) {
	svc, users, _, audit := newImpersonationFixture(t)
	ctx := context.Background()

	target, _ := users.GetByID(ctx, "target-1")
	_, err := svc.Start(ctx, &domain.Session{UserID: target.ID}, target, "admin-1", "", "")
	if !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("non-admin must be denied, got %v", err)
	}
	if !audit.has(domain.AuditImpersonationBlocked) {
		t.Fatalf("expected blocked audit event, got %v", audit.actions())
	}
}

func TestImpersonationStartBlocksAdminTargets(t *testing.T) {
	svc, users, _, _ := newImpersonationFixture(t)
	ctx := context.Background()

	admin, _ := users.GetByID(ctx, "admin-1")
	if _, err := svc.Start(ctx, &domain.Session{UserID: admin.ID}, admin, "admin-2", "", ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("impersonating another admin must be denied, got %v", err)
	}
	if _, err := svc.Start(ctx, &domain.Session{UserID: admin.ID}, admin, "admin-1", "", ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("self-impersonation must be rejected, got %v", err)
	}
}

func TestImpersonationStartBlocksNesting(t *testing.T) {
	svc, users, _, _ := newImpersonationFixture(t)
	ctx := context.Background()

	admin, _ := users.GetByID(ctx, "admin-1")
	session := &domain.Session{
		UserID: admin.ID,
		Impersonation: &domain.ImpersonationContext{
			AdminID:   admin.ID,
			TargetID:  "target-1",
			StartedAt: time.Now(),
		},
	}

	if _, err := svc.Start(ctx, session, admin, "target-1", "", ""); !errors.Is(err, domain.ErrImpersonationBlocked) {
		t.Fatalf("nested impersonation must be blocked, got %v", err)
	}
}

func TestAssertNotImpersonating(t *testing.T) {
	svc, _, _, _ := newImpersonationFixture(t)

	active := &domain.Session{
		Impersonation: &domain.ImpersonationContext{StartedAt: time.Now()},
	}
	if err := svc.AssertNotImpersonating(active); !errors.Is(err, domain.ErrImpersonationBlocked) {
		t.Fatalf("active context must block, got %v", err)
	}

	expired := &domain.Session{
		Impersonation: &domain.ImpersonationContext{StartedAt: time.Now().Add(-2 * time.Hour)},
	}
	if err := svc.AssertNotImpersonating(expired); err != nil {
		t.Fatalf("expired context must not block, got %v", err)
	}
}

func TestImpersonationEndPublishesAudit(t *testing.T) {
	svc, _, _, audit := newImpersonationFixture(t)

	imp := &domain.ImpersonationContext{
		AdminID:   "admin-1",
		TargetID:  "target-1",
		StartedAt: time.Now().Add(-20 * time.Minute),
	}
	if err := svc.End(context.Background(), imp, "", ""); err != nil {
		t.Fatalf("end: %v", err)
	}
	if !audit.has(domain.AuditImpersonationEnded) {
		t.Fatalf("expected end audit event, got %v", audit.actions())
	}

	// Ending nothing is a quiet no-op.
	if err := svc.End(context.Background(), nil, "", ""); err != nil {
		t.Fatalf("end with nil context: %v", err)
	}
}
