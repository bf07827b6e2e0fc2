package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
)

// backupCodeCount is how many recovery codes a (re)generation produces.
const backupCodeCount = 10

// backupCodeLowWatermark triggers the "few codes left" warning.
const backupCodeLowWatermark = 3

// StepUpInput carries one second-factor verification attempt. Code is
// either a 6-digit TOTP code or a backup code in xxxxx-xxxxx form.
type StepUpInput struct {
	StepUpToken string
	Code        string
	RememberMe  bool
	IP          string
	UserAgent   string
	Fingerprint string
}

// StepUpResult is a finished session plus backup-code bookkeeping when a
// recovery code was burned.
type StepUpResult struct {
	Session              *SessionTokens
	UsedBackupCode       bool
	BackupCodesRemaining int
}

// TOTPSetup is the provisioning material returned when enrollment starts.
// The secret is stored immediately but stays disabled until confirmed
// with a valid code.
type TOTPSetup struct {
	Secret          string
	ProvisioningURL string
}

// StepUpService verifies the second factor of a pending login and manages
// TOTP enrollment and backup codes.
type StepUpService struct {
	users    port.UserRepository
	auth     *AuthService
	tokens   *security.TokenManager
	hasher   *security.Hasher
	limiter  *RateLimiter
	audit    port.AuditPublisher
	notifier port.Notifier
	issuer   string
	logger   *zap.Logger
	now      func() time.Time
}

// NewStepUpService constructs the service. issuer is the label shown in
// authenticator apps.
func NewStepUpService(
	users port.UserRepository,
	auth *AuthService,
	tokens *security.TokenManager,
	hasher *security.Hasher,
	limiter *RateLimiter,
	audit port.AuditPublisher,
	notifier port.Notifier,
	issuer string,
	logger *zap.Logger,
) *StepUpService {
	if issuer == "" {
		issuer = "social-platform"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StepUpService{
		users:    users,
		auth:     auth,
		tokens:   tokens,
		hasher:   hasher,
		limiter:  limiter,
		audit:    audit,
		notifier: notifier,
		issuer:   issuer,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *StepUpService) WithClock(now func() time.Time) *StepUpService {
	if now != nil {
		s.now = now
	}
	return s
}

// Verify completes a pending step-up challenge. The pending token binds
// the attempt to the user who passed credential authentication; the code
// is checked first as TOTP with one period of clock skew, then against
// the unused backup codes.
func (s *StepUpService) Verify(ctx context.Context, in StepUpInput) (*StepUpResult, error) {
	userID, err := s.tokens.ParseStepUpToken(in.StepUpToken)
	if err != nil {
		return nil, err
	}

	if s.limiter != nil {
		res := s.limiter.Check(ctx, stepUpRateKey(userID))
		if !res.Allowed {
			return nil, &domain.RateLimitedError{
				Limit:      res.Limit,
				Remaining:  res.Remaining,
				ResetAt:    res.ResetAt,
				RetryAfter: res.RetryAfter,
			}
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.TOTPEnabled || user.TOTPSecret == nil {
		return nil, domain.ErrTokenInvalid
	}

	now := s.now().UTC()
	code := strings.TrimSpace(in.Code)

	result := &StepUpResult{}
	if !security.ValidateTOTPCode(code, *user.TOTPSecret, now) {
		remaining, matched, err := s.tryBackupCode(ctx, user, code, now)
		if err != nil {
			return nil, err
		}
		if !matched {
			s.publish(ctx, domain.AuditEvent{
				Action:     domain.AuditStepUpFailed,
				Category:   domain.AuditCategoryAuth,
				UserID:     &user.ID,
				IP:         in.IP,
				UserAgent:  in.UserAgent,
				OccurredAt: now,
			})
			return nil, domain.ErrInvalidCredentials
		}
		result.UsedBackupCode = true
		result.BackupCodesRemaining = remaining
		if remaining <= backupCodeLowWatermark {
			s.logger.Info("backup codes running low",
				zap.String("user_id", user.ID),
				zap.Int("remaining", remaining),
			)
		}
	}

	if s.limiter != nil {
		s.limiter.Reset(ctx, stepUpRateKey(userID))
	}

	session, err := s.auth.IssueSession(ctx, user, in.RememberMe, in.IP, in.UserAgent)
	if err != nil {
		return nil, err
	}
	result.Session = session

	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditStepUpSucceeded,
		Category:  domain.AuditCategoryAuth,
		UserID:    &user.ID,
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Metadata: map[string]any{
			"backup_code": result.UsedBackupCode,
		},
		OccurredAt: now,
	})
	s.auth.checkKnownDeviceAsync(user, in.Fingerprint, in.IP, in.UserAgent)

	return result, nil
}

// BeginTOTPEnrollment generates and stores a new secret in the disabled
// state and returns the provisioning material. Re-running enrollment
// before confirmation replaces the secret. Blocked while impersonating
// and when TOTP is already enabled.
func (s *StepUpService) BeginTOTPEnrollment(ctx context.Context, session *domain.Session, impersonation *ImpersonationService) (*TOTPSetup, error) {
	if impersonation != nil {
		if err := impersonation.AssertNotImpersonating(session); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.TOTPEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication already enabled", domain.ErrConflict)
	}

	key, err := security.GenerateTOTPSecret(s.issuer, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}

	secret := key.Secret()
	if err := s.users.SetTOTP(ctx, user.ID, &secret, false); err != nil {
		return nil, fmt.Errorf("store totp secret: %w", err)
	}

	return &TOTPSetup{Secret: secret, ProvisioningURL: key.URL()}, nil
}

// ConfirmTOTPEnrollment flips the stored secret to enabled once the user
// proves possession with a valid code, and returns a fresh set of backup
// codes in plain text. The plain codes exist only in this response.
func (s *StepUpService) ConfirmTOTPEnrollment(ctx context.Context, session *domain.Session, impersonation *ImpersonationService, code, ip, agent string) ([]string, error) {
	if impersonation != nil {
		if err := impersonation.AssertNotImpersonating(session); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user.TOTPEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication already enabled", domain.ErrConflict)
	}
	if user.TOTPSecret == nil {
		return nil, fmt.Errorf("%w: enrollment has not started", domain.ErrValidation)
	}

	now := s.now().UTC()
	if !security.ValidateTOTPCode(strings.TrimSpace(code), *user.TOTPSecret, now) {
		return nil, domain.ErrInvalidCredentials
	}

	if err := s.users.SetTOTP(ctx, user.ID, user.TOTPSecret, true); err != nil {
		return nil, fmt.Errorf("enable totp: %w", err)
	}

	plain, err := s.regenerateBackupCodes(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, domain.AuditEvent{
		Action:     domain.AuditTOTPEnabled,
		Category:   domain.AuditCategorySecurity,
		UserID:     &user.ID,
		IP:         ip,
		UserAgent:  agent,
		OccurredAt: now,
	})
	s.notifyAsync(domain.Notification{
		Kind:  domain.NotifyTOTPEnabled,
		Email: user.Email,
	})

	return plain, nil
}

// DisableTOTP removes the second factor after re-verifying the account
// password. Backup codes are wiped with it. Blocked while impersonating.
func (s *StepUpService) DisableTOTP(ctx context.Context, session *domain.Session, impersonation *ImpersonationService, password, ip, agent string) error {
	if impersonation != nil {
		if err := impersonation.AssertNotImpersonating(session); err != nil {
			return err
		}
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if !user.TOTPEnabled {
		return fmt.Errorf("%w: two-factor authentication is not enabled", domain.ErrConflict)
	}

	ok, err := s.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return domain.ErrInvalidCredentials
	}

	if err := s.users.SetTOTP(ctx, user.ID, nil, false); err != nil {
		return fmt.Errorf("disable totp: %w", err)
	}
	if err := s.users.ReplaceBackupCodes(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("clear backup codes: %w", err)
	}

	now := s.now().UTC()
	s.publish(ctx, domain.AuditEvent{
		Action:     domain.AuditTOTPDisabled,
		Category:   domain.AuditCategorySecurity,
		UserID:     &user.ID,
		IP:         ip,
		UserAgent:  agent,
		OccurredAt: now,
	})
	s.notifyAsync(domain.Notification{
		Kind:  domain.NotifyTOTPDisabled,
		Email: user.Email,
	})

	return nil
}

// RegenerateBackupCodes replaces the whole backup code set, invalidating
// any unused old codes. Blocked while impersonating.
func (s *StepUpService) RegenerateBackupCodes(ctx context.Context, session *domain.Session, impersonation *ImpersonationService) ([]string, error) {
	if impersonation != nil {
		if err := impersonation.AssertNotImpersonating(session); err != nil {
			return nil, err
		}
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.TOTPEnabled {
		return nil, fmt.Errorf("%w: two-factor authentication is not enabled", domain.ErrConflict)
	}

	return s.regenerateBackupCodes(ctx, user.ID, s.now().UTC())
}

// tryBackupCode matches the code against unused backup codes, burning
// the match. Returns the count of codes still unused.
func (s *StepUpService) tryBackupCode(ctx context.Context, user *domain.User, code string, now time.Time) (remaining int, matched bool, err error) {
	codes, err := s.users.ListBackupCodes(ctx, user.ID)
	if err != nil {
		return 0, false, fmt.Errorf("list backup codes: %w", err)
	}

	unused := 0
	var match *domain.BackupCode
	for i := range codes {
		if codes[i].UsedAt != nil {
			continue
		}
		unused++
		if match == nil {
			ok, verr := s.hasher.Verify(code, codes[i].CodeHash)
			if verr != nil {
				return 0, false, fmt.Errorf("verify backup code: %w", verr)
			}
			if ok {
				match = &codes[i]
			}
		}
	}

	if match == nil {
		return unused, false, nil
	}

	if err := s.users.MarkBackupCodeUsed(ctx, match.ID, now); err != nil {
		return 0, false, fmt.Errorf("mark backup code used: %w", err)
	}

	return unused - 1, true, nil
}

func (s *StepUpService) regenerateBackupCodes(ctx context.Context, userID string, now time.Time) ([]string, error) {
	plain := make([]string, 0, backupCodeCount)
	records := make([]domain.BackupCode, 0, backupCodeCount)

	for i := 0; i < backupCodeCount; i++ {
		code, err := security.GenerateBackupCode()
		if err != nil {
			return nil, fmt.Errorf("generate backup code: %w", err)
		}
		hash, err := s.hasher.Hash(code)
		if err != nil {
			return nil, fmt.Errorf("hash backup code: %w", err)
		}
		plain = append(plain, code)
		records = append(records, domain.BackupCode{
			ID:        uuid.NewString(),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}

	if err := s.users.ReplaceBackupCodes(ctx, userID, records); err != nil {
		return nil, fmt.Errorf("store backup codes: %w", err)
	}

	return plain, nil
}

func (s *StepUpService) publish(ctx context.Context, event domain.AuditEvent) {
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

func (s *StepUpService) notifyAsync(notification domain.Notification) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("notification dispatch panicked", zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if s.notifier == nil {
			return
		}
		if err := s.notifier.Send(ctx, notification); err != nil {
			s.logger.Warn("notification send failed",
				zap.String("kind", string(notification.Kind)),
				zap.Error(err),
			)
		}
	}()
}

func stepUpRateKey(userID string) string {
	return "stepup:" + userID
}
