package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// Lockout defaults.
const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = 15 * time.Minute
)

const notifyTimeout = 5 * time.Second

// LockoutPolicy configures the failed-attempt counter embedded in the
// user row.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func (p LockoutPolicy) withDefaults() LockoutPolicy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultLockoutThreshold
	}
	if p.Duration <= 0 {
		p.Duration = DefaultLockoutDuration
	}
	return p
}

// LoginInput carries one credential authentication attempt.
type LoginInput struct {
	Identifier  string
	Password    string
	RememberMe  bool
	IP          string
	UserAgent   string
	Fingerprint string
}

// SessionTokens is the full set of credentials minted on a successful
// authentication. PersistentToken is empty unless remember-me was
// requested.
type SessionTokens struct {
	AccessToken     string
	RefreshToken    string
	PersistentToken string
	ExpiresAt       time.Time
	User            *domain.User
	Roles           []string
}

// LoginResult is either a finished session or a pending step-up
// challenge, never both.
type LoginResult struct {
	StepUpRequired bool
	StepUpToken    string
	Session        *SessionTokens
}

// AuthService implements credential authentication with lockout, session
// issuance, refresh, and password change.
type AuthService struct {
	users      port.UserRepository
	access     *AccessService
	hasher     *security.Hasher
	tokens     *security.TokenManager
	persistent *PersistentTokenService
	limiter    *RateLimiter
	policy     *security.PasswordPolicy
	lockout    LockoutPolicy
	audit      port.AuditPublisher
	notifier   port.Notifier
	logger     *zap.Logger
	now        func() time.Time
}

// NewAuthService constructs the service.
func NewAuthService(
	users port.UserRepository,
	access *AccessService,
	hasher *security.Hasher,
	tokens *security.TokenManager,
	persistent *PersistentTokenService,
	limiter *RateLimiter,
	policy *security.PasswordPolicy,
	lockout LockoutPolicy,
	audit port.AuditPublisher,
	notifier port.Notifier,
	logger *zap.Logger,
) *AuthService {
	if policy == nil {
		policy = security.NewPasswordPolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthService{
		users:      users,
		access:     access,
		hasher:     hasher,
		tokens:     tokens,
		persistent: persistent,
		limiter:    limiter,
		policy:     policy,
		lockout:    lockout.withDefaults(),
		audit:      audit,
		notifier:   notifier,
		logger:     logger,
		now:        time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *AuthService) WithClock(now func() time.Time) *AuthService {
	if now != nil {
		s.now = now
	}
	return s
}

// Login runs the credential authentication state machine. The caller
// learns nothing about whether the identifier exists: unknown identifier
// and wrong password both return ErrInvalidCredentials.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if in.Identifier == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: identifier and password are required", domain.ErrValidation)
	}

	if s.limiter != nil {
		res := s.limiter.Check(ctx, loginRateKey(in.Identifier, in.IP))
		if !res.Allowed {
			return nil, &domain.RateLimitedError{
				Limit:      res.Limit,
				Remaining:  res.Remaining,
				ResetAt:    res.ResetAt,
				RetryAfter: res.RetryAfter,
			}
		}
	}

	now := s.now().UTC()

	user, err := s.users.GetByIdentifier(ctx, in.Identifier)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Burn roughly the cost of a real verification so the timing
			// of the response does not reveal whether the account exists.
			s.hasher.DummyVerify(in.Password)
			s.auditLoginFailed(ctx, nil, in, "unknown_identifier", now)
			return nil, domain.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}

	if user.IsLocked(now) {
		retry := user.LockedUntil.Sub(now)
		return nil, &domain.AccountLockedError{LockedUntil: *user.LockedUntil, RetryAfter: retry}
	}
	if user.LockedUntil != nil || user.FailedLoginAttempts > 0 {
		// Lock expired or stale counter from a previous window. The reset
		// happens lazily here rather than by a background job.
		if user.LockedUntil != nil && !user.LockedUntil.After(now) {
			if err := s.users.ClearLockout(ctx, user.ID); err != nil {
				s.logger.Warn("lockout self-reset failed", zap.String("user_id", user.ID), zap.Error(err))
			}
		}
	}

	if user.PasswordHash == "" {
		// Federated-only accounts have no local credential.
		s.auditLoginFailed(ctx, user, in, "no_local_credential", now)
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(in.Password, user.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, s.registerFailure(ctx, user, in, now)
	}

	if !user.IsActive || user.Status == domain.UserStatusDisabled {
		s.auditLoginFailed(ctx, user, in, "account_disabled", now)
		return nil, domain.ErrInvalidCredentials
	}
	if !user.EmailVerified() {
		s.auditLoginFailed(ctx, user, in, "email_not_verified", now)
		return nil, domain.ErrEmailNotVerified
	}

	// Valid credential: earlier failures stop counting.
	if user.FailedLoginAttempts > 0 || user.LockedUntil != nil {
		if err := s.users.ClearLockout(ctx, user.ID); err != nil {
			s.logger.Warn("lockout clear failed", zap.String("user_id", user.ID), zap.Error(err))
		}
	}
	if s.limiter != nil {
		s.limiter.Reset(ctx, loginRateKey(in.Identifier, in.IP))
	}

	if user.TOTPEnabled {
		stepUp, err := s.tokens.IssueStepUpToken(user.ID)
		if err != nil {
			return nil, fmt.Errorf("issue step-up token: %w", err)
		}
		return &LoginResult{StepUpRequired: true, StepUpToken: stepUp}, nil
	}

	session, err := s.IssueSession(ctx, user, in.RememberMe, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.AuditEvent{
		Action:     domain.AuditLoginSucceeded,
		Category:   domain.AuditCategoryAuth,
		UserID:     &user.ID,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
		OccurredAt: now,
	})
	s.checkKnownDeviceAsync(user, in.Fingerprint, in.IP, in.UserAgent)

	return &LoginResult{Session: session}, nil
}

// IssueSession mints the access and refresh tokens for an authenticated
// user, plus a persistent-login series when remember-me is requested, and
// stamps the last-login timestamp.
func (s *AuthService) IssueSession(ctx context.Context, user *domain.User, rememberMe bool, ip, agent string) (*SessionTokens, error) {
	roles, err := s.access.EffectiveRoles(ctx, user, domain.PlatformScope())
	if err != nil {
		return nil, err
	}

	access, claims, err := s.tokens.IssueAccessToken(*user, roles)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, _, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	session := &SessionTokens{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    claims.ExpiresAt.Time,
		User:         user,
		Roles:        roles,
	}

	if rememberMe && s.persistent != nil {
		cookie, err := s.persistent.Issue(ctx, user.ID, ip, agent)
		if err != nil {
			return nil, err
		}
		session.PersistentToken = cookie
	}

	if err := s.users.UpdateLastLogin(ctx, user.ID, s.now().UTC()); err != nil {
		s.logger.Warn("last login update failed", zap.String("user_id", user.ID), zap.Error(err))
	}

	return session, nil
}

// LoginWithPersistentToken restores a session from a remember-me cookie.
// The cookie rotates on every use; callers must set the returned
// replacement value. Restored sessions are second-class: sensitive
// operations still demand a fresh credential login.
func (s *AuthService) LoginWithPersistentToken(ctx context.Context, composite, ip, agent string) (*SessionTokens, string, error) {
	if s.persistent == nil {
		return nil, "", domain.ErrTokenInvalid
	}

	userID, replacement, err := s.persistent.Validate(ctx, composite, ip, agent)
	if err != nil {
		return nil, "", err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, "", fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive || user.Status == domain.UserStatusDisabled {
		return nil, "", domain.ErrInvalidCredentials
	}

	session, err := s.IssueSession(ctx, user, false, ip, agent)
	if err != nil {
		return nil, "", err
	}
	session.PersistentToken = replacement

	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditLoginSucceeded,
		Category:  domain.AuditCategoryAuth,
		UserID:    &user.ID,
		IP:        ip,
		UserAgent: agent,
		Metadata: map[string]any{
			"method": "persistent_token",
		},
		OccurredAt: s.now().UTC(),
	})

	return session, replacement, nil
}

// RefreshAccessToken exchanges a valid refresh token for a new access
// token. The refresh token itself is not rotated here; its lifetime is
// the session's lifetime.
func (s *AuthService) RefreshAccessToken(ctx context.Context, refreshToken string) (*SessionTokens, error) {
	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.ErrTokenInvalid
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive || user.Status == domain.UserStatusDisabled {
		return nil, domain.ErrTokenInvalid
	}

	roles, err := s.access.EffectiveRoles(ctx, user, domain.PlatformScope())
	if err != nil {
		return nil, err
	}

	access, accessClaims, err := s.tokens.IssueAccessToken(*user, roles)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}

	return &SessionTokens{
		AccessToken:  access,
		RefreshToken: refreshToken,
		ExpiresAt:    accessClaims.ExpiresAt.Time,
		User:         user,
		Roles:        roles,
	}, nil
}

// LogoutEverywhere revokes every persistent-login series the user owns.
// Blocked while impersonating.
func (s *AuthService) LogoutEverywhere(ctx context.Context, session *domain.Session, impersonation *ImpersonationService, ip, agent string) (int, error) {
	if impersonation != nil {
		if err := impersonation.AssertNotImpersonating(session); err != nil {
			return 0, err
		}
	}
	if s.persistent == nil {
		return 0, nil
	}
	return s.persistent.RevokeAllForUser(ctx, session.UserID, ip, agent)
}

// ChangePassword verifies the current password, enforces the strength
// policy on the new one, and revokes all persistent-login series so a
// stolen remember-me cookie dies with the old password. Blocked while
// impersonating.
func (s *AuthService) ChangePassword(ctx context.Context, session *domain.Session, impersonation *ImpersonationService, currentPassword, newPassword, ip, agent string) error {
	if impersonation != nil {
		if err := impersonation.AssertNotImpersonating(session); err != nil {
			return err
		}
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	ok, err := s.hasher.Verify(currentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	if err := s.policy.Validate(newPassword, user.Email, user.Username); err != nil {
		return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	if err := s.users.UpdatePassword(ctx, user.ID, hash, now); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	if s.persistent != nil {
		if _, err := s.persistent.RevokeAllForUser(ctx, user.ID, ip, agent); err != nil {
			s.logger.Warn("persistent token revocation after password change failed",
				zap.String("user_id", user.ID),
				zap.Error(err),
			)
		}
	}

	s.publish(ctx, domain.AuditEvent{
		Action:     domain.AuditPasswordChanged,
		Category:   domain.AuditCategorySecurity,
		UserID:     &user.ID,
		IP:         ip,
		UserAgent:  agent,
		OccurredAt: now,
	})
	s.notifyAsync(domain.Notification{
		Kind:  domain.NotifyPasswordChanged,
		Email: user.Email,
		Data:  map[string]any{"ip": ip},
	})

	return nil
}

// registerFailure records a wrong-password attempt and maps the outcome:
// threshold reached means a fresh lockout, otherwise the generic
// credential failure. The increment and threshold check are a single
// repository call so concurrent failures cannot race past the threshold.
func (s *AuthService) registerFailure(ctx context.Context, user *domain.User, in LoginInput, now time.Time) error {
	attempts, lockedUntil, err := s.users.RegisterFailedAttempt(ctx, user.ID, s.lockout.Threshold, s.lockout.Duration)
	if err != nil {
		s.logger.Error("failed attempt registration failed", zap.String("user_id", user.ID), zap.Error(err))
		return domain.ErrInvalidCredentials
	}

	if lockedUntil != nil && lockedUntil.After(now) {
		s.publish(ctx, domain.AuditEvent{
			Action:    domain.AuditAccountLocked,
			Category:  domain.AuditCategoryAuth,
			UserID:    &user.ID,
			IP:        in.IP,
			UserAgent: in.UserAgent,
			Metadata: map[string]any{
				"attempts": attempts,
			},
			OccurredAt: now,
		})
		s.notifyAsync(domain.Notification{
			Kind:  domain.NotifyAccountLocked,
			Email: user.Email,
			Data: map[string]any{
				"locked_until": lockedUntil.Format(time.RFC3339),
			},
		})
		return &domain.AccountLockedError{LockedUntil: *lockedUntil, RetryAfter: lockedUntil.Sub(now)}
	}

	s.auditLoginFailed(ctx, user, in, "wrong_password", now)
	return domain.ErrInvalidCredentials
}

// checkKnownDeviceAsync compares the client fingerprint with the user's
// known devices, notifying on a first sighting. Best-effort off the
// request path.
func (s *AuthService) checkKnownDeviceAsync(user *domain.User, fingerprint, ip, agent string) {
	if fingerprint == "" {
		return
	}

	userCopy := *user
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("known device check panicked", zap.Any("panic", r))
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		devices, err := s.users.ListKnownDevices(ctx, userCopy.ID)
		if err != nil {
			s.logger.Warn("known device lookup failed", zap.String("user_id", userCopy.ID), zap.Error(err))
			return
		}

		now := s.now().UTC()
		for _, device := range devices {
			if device.Fingerprint == fingerprint {
				device.LastSeenAt = now
				device.IP = ip
				device.UserAgent = agent
				if err := s.users.RecordKnownDevice(ctx, device); err != nil {
					s.logger.Warn("known device refresh failed", zap.String("user_id", userCopy.ID), zap.Error(err))
				}
				return
			}
		}

		if err := s.users.RecordKnownDevice(ctx, domain.KnownDevice{
			ID:          uuid.NewString(),
			UserID:      userCopy.ID,
			Fingerprint: fingerprint,
			IP:          ip,
			UserAgent:   agent,
			FirstSeenAt: now,
			LastSeenAt:  now,
		}); err != nil {
			s.logger.Warn("known device record failed", zap.String("user_id", userCopy.ID), zap.Error(err))
			return
		}

		s.notify(ctx, domain.Notification{
			Kind:  domain.NotifyNewDevice,
			Email: userCopy.Email,
			Data: map[string]any{
				"ip":         ip,
				"user_agent": agent,
			},
		})
	}()
}

func (s *AuthService) auditLoginFailed(ctx context.Context, user *domain.User, in LoginInput, reason string, now time.Time) {
	event := domain.AuditEvent{
		Action:    domain.AuditLoginFailed,
		Category:  domain.AuditCategoryAuth,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Metadata: map[string]any{
			"reason": reason,
		},
		OccurredAt: now,
	}
	if user != nil {
		event.UserID = &user.ID
	}
	s.publish(ctx, event)
}

func (s *AuthService) publish(ctx context.Context, event domain.AuditEvent) {
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

func (s *AuthService) notifyAsync(notification domain.Notification) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("notification dispatch panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		s.notify(ctx, notification)
	}()
}

func (s *AuthService) notify(ctx context.Context, notification domain.Notification) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification); err != nil {
		s.logger.Warn("notification send failed",
			zap.String("kind", string(notification.Kind)),
			zap.Error(err),
		)
	}
}

func loginRateKey(identifier, ip string) string {
	return "login:" + identifier + ":" + ip
}
