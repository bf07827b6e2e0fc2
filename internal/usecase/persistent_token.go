package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/security"
	"github.com/arklim/social-platform-auth/internal/repository"
)

// DefaultPersistentTokenTTL is how long a "remember this device" series
// stays valid without being revoked.
const DefaultPersistentTokenTTL = 30 * 24 * time.Hour

const persistentTokenBytes = 16

// PersistentTokenService manages rotating series/token credentials. The
// cookie value is "series:token"; the series survives rotation while the
// token half is replaced on every successful use. A valid series paired
// with a wrong token means the token was stolen and already used, so the
// whole account's series are revoked.
type PersistentTokenService struct {
	tokens port.PersistentTokenRepository
	audit  port.AuditPublisher
	logger *zap.Logger
	ttl    time.Duration
	now    func() time.Time
}

// NewPersistentTokenService constructs the service.
func NewPersistentTokenService(tokens port.PersistentTokenRepository, audit port.AuditPublisher, ttl time.Duration, logger *zap.Logger) *PersistentTokenService {
	if ttl <= 0 {
		ttl = DefaultPersistentTokenTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PersistentTokenService{
		tokens: tokens,
		audit:  audit,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock overrides the internal clock, used in tests.
func (s *PersistentTokenService) WithClock(now func() time.Time) *PersistentTokenService {
	if now != nil {
		s.now = now
	}
	return s
}

// Issue creates a fresh series for the user and returns the composite
// cookie value. Only the token's hash is persisted.
func (s *PersistentTokenService) Issue(ctx context.Context, userID, ip, agent string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}

	series, err := security.GenerateHexToken(persistentTokenBytes)
	if err != nil {
		return "", err
	}
	token, err := security.GenerateHexToken(persistentTokenBytes)
	if err != nil {
		return "", err
	}

	now := s.now().UTC()
	record := domain.PersistentToken{
		Series:    series,
		TokenHash: security.HashToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if ip != "" {
		record.LastIP = &ip
	}
	if agent != "" {
		record.LastAgent = &agent
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return "", fmt.Errorf("store persistent token: %w", err)
	}

	return domain.JoinPersistentToken(series, token), nil
}

// Validate checks a presented composite cookie value. On success it
// rotates the token half, persists the new hash, and returns the owning
// user id with the replacement cookie value. A known series presented
// with a wrong token is treated as theft: every series the user owns is
// revoked and the cookie is rejected.
//
// The replacement hash is committed before the new cookie value is
// returned, so a crash between the two leaves the old cookie invalid
// rather than two valid cookies.
func (s *PersistentTokenService) Validate(ctx context.Context, composite, ip, agent string) (userID, replacement string, err error) {
	series, token, err := domain.SplitPersistentToken(composite)
	if err != nil {
		return "", "", err
	}

	record, err := s.tokens.GetBySeries(ctx, series)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", "", domain.ErrTokenInvalid
		}
		return "", "", fmt.Errorf("load persistent token: %w", err)
	}

	now := s.now().UTC()
	if record.Expired(now) {
		// Expired series are useless to an attacker; drop quietly.
		if err := s.tokens.DeleteBySeries(ctx, series); err != nil {
			s.logger.Warn("expired persistent token cleanup failed",
				zap.String("series", series),
				zap.Error(err),
			)
		}
		return "", "", domain.ErrTokenExpired
	}

	presentedHash := security.HashToken(token)
	if presentedHash != record.TokenHash {
		s.handleTheft(ctx, record, ip, agent, now)
		return "", "", domain.ErrTokenInvalid
	}

	newToken, err := security.GenerateHexToken(persistentTokenBytes)
	if err != nil {
		return "", "", err
	}

	var ipPtr, agentPtr *string
	if ip != "" {
		ipPtr = &ip
	}
	if agent != "" {
		agentPtr = &agent
	}

	rotated, err := s.tokens.RotateHash(ctx, series, presentedHash, security.HashToken(newToken), now, ipPtr, agentPtr)
	if err != nil {
		return "", "", fmt.Errorf("rotate persistent token: %w", err)
	}
	if !rotated {
		// A concurrent request rotated first; this presentation now looks
		// like a replayed stolen token and is handled the same way.
		s.handleTheft(ctx, record, ip, agent, now)
		return "", "", domain.ErrTokenInvalid
	}

	return record.UserID, domain.JoinPersistentToken(series, newToken), nil
}

// RevokeAllForUser deletes every series the user owns, used by "log out
// everywhere" and by theft handling.
func (s *PersistentTokenService) RevokeAllForUser(ctx context.Context, userID, ip, agent string) (int, error) {
	count, err := s.tokens.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoke persistent tokens: %w", err)
	}

	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditTokensRevoked,
		Category:  domain.AuditCategoryToken,
		UserID:    &userID,
		IP:        ip,
		UserAgent: agent,
		Metadata: map[string]any{
			"revoked": count,
		},
		OccurredAt: s.now().UTC(),
	})

	return count, nil
}

// PurgeExpired removes series past their expiry, run periodically.
func (s *PersistentTokenService) PurgeExpired(ctx context.Context) (int, error) {
	return s.tokens.DeleteExpired(ctx, s.now().UTC())
}

func (s *PersistentTokenService) handleTheft(ctx context.Context, record *domain.PersistentToken, ip, agent string, now time.Time) {
	count, err := s.tokens.DeleteByUser(ctx, record.UserID)
	if err != nil {
		s.logger.Error("persistent token revocation after theft signal failed",
			zap.String("user_id", record.UserID),
			zap.Error(err),
		)
	}

	s.logger.Warn("persistent token theft detected, revoking all series",
		zap.String("user_id", record.UserID),
		zap.String("series", record.Series),
		zap.Int("revoked", count),
	)

	s.publish(ctx, domain.AuditEvent{
		Action:    domain.AuditTheftDetected,
		Category:  domain.AuditCategoryToken,
		UserID:    &record.UserID,
		IP:        ip,
		UserAgent: agent,
		Metadata: map[string]any{
			"series":  record.Series,
			"revoked": count,
		},
		OccurredAt: now,
	})
}

func (s *PersistentTokenService) publish(ctx context.Context, event domain.AuditEvent) {
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
