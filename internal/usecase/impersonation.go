package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// DefaultImpersonationTimeout bounds how long an impersonated session
// stays valid before it silently reverts to the admin's own identity.
const DefaultImpersonationTimeout = time.Hour

// IsImpersonating reports whether the session carries a live
// impersonation context. An expired context counts as not impersonating:
// expiry is evaluated on read, never pushed by a timer.
func IsImpersonating(session *domain.Session, timeout time.Duration, ref time.Time) bool {
	if session == nil || session.Impersonation == nil {
		return false
	}
	return !HasImpersonationExpired(session.Impersonation, timeout, ref)
}

// HasImpersonationExpired reports whether the context outlived its
// timeout at ref.
func HasImpersonationExpired(imp *domain.ImpersonationContext, timeout time.Duration, ref time.Time) bool {
	if imp == nil {
		return true
	}
	if timeout <= 0 {
		timeout = DefaultImpersonationTimeout
	}
	return !ref.Before(imp.StartedAt.Add(timeout))
}

// ImpersonationTimeRemaining returns the whole minutes left before the
// context expires, rounded up, floored at zero. UIs display this as a
// countdown.
func ImpersonationTimeRemaining(imp *domain.ImpersonationContext, timeout time.Duration, ref time.Time) int {
	if imp == nil {
		return 0
	}
	if timeout <= 0 {
		timeout = DefaultImpersonationTimeout
	}

	remaining := imp.StartedAt.Add(timeout).Sub(ref)
	if remaining <= 0 {
		return 0
	}

	minutes := int(remaining / time.Minute)
	if remaining%time.Minute != 0 {
		minutes++
	}
	return minutes
}

// ImpersonationService starts and ends admin-as-user sessions. Contexts
// live entirely in the session token; the service's job is the permission
// gate and the audit trail.
type ImpersonationService struct {
	access  *AccessService
	users   port.UserRepository
	audit   port.AuditPublisher
	logger  *zap.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewImpersonationService constructs the service.
func NewImpersonationService(access *AccessService, users port.UserRepository, audit port.AuditPublisher, timeout time.Duration, logger *zap.Logger) *ImpersonationService {
	if timeout <= 0 {
		timeout = DefaultImpersonationTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImpersonationService{
		access:  access,
		users:   users,
		audit:   audit,
		logger:  logger,
		timeout: timeout,
		now:     time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *ImpersonationService) WithClock(now func() time.Time) *ImpersonationService {
	if now != nil {
		s.now = now
	}
	return s
}

// Timeout returns the configured impersonation lifetime.
func (s *ImpersonationService) Timeout() time.Duration { return s.timeout }

// Start opens an impersonation context for admin over the target user.
// Only platform admins may impersonate, never another admin, never
// themselves, and never while already impersonating.
func (s *ImpersonationService) Start(ctx context.Context, session *domain.Session, admin *domain.User, targetID, ip, agent string) (*domain.ImpersonationContext, error) {
	if admin == nil || admin.ID == "" {
		return nil, fmt.Errorf("admin user is required")
	}
	if targetID == "" {
		return nil, fmt.Errorf("%w: target user id is required", domain.ErrValidation)
	}

	now := s.now().UTC()

	if IsImpersonating(session, s.timeout, now) {
		s.publishBlocked(ctx, admin.ID, targetID, "already_impersonating", ip, agent, now)
		return nil, fmt.Errorf("%w: already impersonating", domain.ErrImpersonationBlocked)
	}

	isAdmin, err := s.access.HasRole(ctx, admin, domain.RoleAdmin, domain.PlatformScope())
	if err != nil {
		return nil, err
	}
	if !isAdmin {
		s.publishBlocked(ctx, admin.ID, targetID, "not_admin", ip, agent, now)
		return nil, domain.ErrPermissionDenied
	}

	if admin.ID == targetID {
		s.publishBlocked(ctx, admin.ID, targetID, "self", ip, agent, now)
		return nil, fmt.Errorf("%w: cannot impersonate yourself", domain.ErrValidation)
	}

	target, err := s.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, fmt.Errorf("load impersonation target: %w", err)
	}

	targetIsAdmin, err := s.access.HasRole(ctx, target, domain.RoleAdmin, domain.PlatformScope())
	if err != nil {
		return nil, err
	}
	if targetIsAdmin {
		s.publishBlocked(ctx, admin.ID, targetID, "target_is_admin", ip, agent, now)
		return nil, fmt.Errorf("%w: cannot impersonate another administrator", domain.ErrPermissionDenied)
	}

	imp := &domain.ImpersonationContext{
		AdminID:     admin.ID,
		AdminEmail:  admin.Email,
		TargetID:    target.ID,
		TargetEmail: target.Email,
		StartedAt:   now,
	}

	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditImpersonationStarted,
		Category:  domain.AuditCategoryImpersonation,
		UserID:    &admin.ID,
		IP:        ip,
		UserAgent: agent,
		Metadata: map[string]any{
			"target_id": target.ID,
		},
		OccurredAt: now,
	})

	return imp, nil
}

// End closes the impersonation context and records it. Ending an already
// expired context is a no-op success so stale UIs can always back out.
func (s *ImpersonationService) End(ctx context.Context, imp *domain.ImpersonationContext, ip, agent string) error {
	if imp == nil {
		return nil
	}

	now := s.now().UTC()
	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditImpersonationEnded,
		Category:  domain.AuditCategoryImpersonation,
		UserID:    &imp.AdminID,
		IP:        ip,
		UserAgent: agent,
		Metadata: map[string]any{
			"target_id":        imp.TargetID,
			"duration_seconds": int(now.Sub(imp.StartedAt).Seconds()),
		},
		OccurredAt: now,
	})

	return nil
}

// AssertNotImpersonating guards sensitive operations (password change,
// second-factor changes, token revocation) from being performed on behalf
// of the target by an impersonating admin.
func (s *ImpersonationService) AssertNotImpersonating(session *domain.Session) error {
	if IsImpersonating(session, s.timeout, s.now().UTC()) {
		return domain.ErrImpersonationBlocked
	}
	return nil
}

func (s *ImpersonationService) publishBlocked(ctx context.Context, adminID, targetID, reason, ip, agent string, now time.Time) {
	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditImpersonationBlocked,
		Category:  domain.AuditCategoryImpersonation,
		UserID:    &adminID,
		IP:        ip,
		UserAgent: agent,
		Metadata: map[string]any{
			"target_id": targetID,
			"reason":    reason,
		},
		OccurredAt: now,
	})
}

func (s *ImpersonationService) publish(ctx context.Context, event domain.AuditEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Publish(ctx, event); err != nil {
		s.logger.Warn("audit publish failed",
			zap.String("action", string(event.Action)),
			zap.Error(err),
		)
	}
}
