package security

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func newTestManager(t *testing.T) *TokenManager {
	t.Helper()

	manager, err := NewTokenManager(TokenManagerConfig{
		Issuer:        "auth-test",
		AccessSecret:  []byte(strings.Repeat("a", 32)),
		RefreshSecret: []byte(strings.Repeat("r", 32)),
		StepUpSecret:  []byte(strings.Repeat("s", 32)),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		StepUpTTL:     5 * time.Minute,
	})
	if err != nil {
		t.Fatalf("new token manager: %v", err)
	}
	return manager
}

func TestAccessTokenRoundTrip(t *testing.T) {
	manager := newTestManager(t)
	user := domain.User{ID: "user-1", Email: "casey@example.com"}

	token, _, err := manager.IssueAccessToken(user, []string{"user", "moderator"})
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	claims, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Fatalf("expected uid user-1, got %q", claims.UserID)
	}
	if len(claims.Roles) != 2 {
		t.Fatalf("expected 2 roles, got %v", claims.Roles)
	}
	if claims.Impersonation != nil {
		t.Fatalf("plain access token must not carry impersonation claims")
	}
}

func TestTokenFamiliesAreNotInterchangeable(t *testing.T) {
	manager := newTestManager(t)
	user := domain.User{ID: "user-1", Email: "casey@example.com"}

	access, _, err := manager.IssueAccessToken(user, nil)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}
	refresh, _, err := manager.IssueRefreshToken("user-1")
	if err != nil {
		t.Fatalf("issue refresh token: %v", err)
	}
	stepUp, err := manager.IssueStepUpToken("user-1")
	if err != nil {
		t.Fatalf("issue step-up token: %v", err)
	}

	if _, err := manager.ParseRefreshToken(access); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh: %v", err)
	}
	if _, err := manager.ParseAccessToken(refresh); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access: %v", err)
	}
	if _, err := manager.ParseStepUpToken(access); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("access token accepted as step-up: %v", err)
	}
	if _, err := manager.ParseAccessToken(stepUp); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("step-up token accepted as access: %v", err)
	}
}

func TestExpiredTokenReportsExpiry(t *testing.T) {
	manager := newTestManager(t)
	user := domain.User{ID: "user-1"}

	token, _, err := manager.IssueAccessToken(user, nil)
	if err != nil {
		t.Fatalf("issue access token: %v", err)
	}

	manager.WithClock(func() time.Time { return time.Now().Add(16 * time.Minute) })

	if _, err := manager.ParseAccessToken(token); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestImpersonatedTokenCarriesActorAndIsCapped(t *testing.T) {
	manager := newTestManager(t)
	target := domain.User{ID: "target-1", Email: "taylor@example.com"}

	imp := domain.ImpersonationContext{
		AdminID:    "admin-1",
		AdminEmail: "avery@example.com",
		TargetID:   "target-1",
		StartedAt:  time.Now().UTC().Add(-55 * time.Minute),
	}

	token, claims, err := manager.IssueImpersonatedAccessToken(target, []string{"user"}, imp, time.Hour)
	if err != nil {
		t.Fatalf("issue impersonated token: %v", err)
	}

	parsed, err := manager.ParseAccessToken(token)
	if err != nil {
		t.Fatalf("parse impersonated token: %v", err)
	}
	if parsed.Impersonation == nil || parsed.Impersonation.AdminID != "admin-1" {
		t.Fatalf("expected impersonation claims with admin-1, got %+v", parsed.Impersonation)
	}

	// 5 minutes remain of the hour window; the token cannot outlive it.
	remaining := time.Until(claims.ExpiresAt.Time)
	if remaining > 6*time.Minute {
		t.Fatalf("token lifetime %s exceeds the impersonation window", remaining)
	}

	expired := imp
	expired.StartedAt = time.Now().UTC().Add(-2 * time.Hour)
	if _, _, err := manager.IssueImpersonatedAccessToken(target, nil, expired, time.Hour); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired for spent window, got %v", err)
	}
}
