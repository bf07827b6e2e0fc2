package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

func TestPersistentTokenIssueAndValidateRotates(t *testing.T) {
	repo := newStubTokenRepo()
	audit := &recordingAudit{}
	svc := NewPersistentTokenService(repo, audit, 0, nil)
	ctx := context.Background()

	cookie, err := svc.Issue(ctx, "u1", "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	userID, replacement, err := svc.Validate(ctx, cookie, "203.0.113.9", "test-agent")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("expected owner u1, got %q", userID)
	}
	if replacement == cookie {
		t.Fatalf("token half must rotate on every use")
	}

	oldSeries, _, _ := domain.SplitPersistentToken(cookie)
	newSeries, _, _ := domain.SplitPersistentToken(replacement)
	if oldSeries != newSeries {
		t.Fatalf("series must survive rotation: %q vs %q", oldSeries, newSeries)
	}

	// The replacement keeps working.
	if _, _, err := svc.Validate(ctx, replacement, "203.0.113.9", "test-agent"); err != nil {
		t.Fatalf("validate rotated cookie: %v", err)
	}
}

func TestPersistentTokenReplayTriggersTheftRevocation(t *testing.T) {
	repo := newStubTokenRepo()
	audit := &recordingAudit{}
	svc := NewPersistentTokenService(repo, audit, 0, nil)
	ctx := context.Background()

	stolen, err := svc.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other, err := svc.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("issue second series: %v", err)
	}

	// Legitimate use rotates the stolen cookie's token half.
	if _, _, err := svc.Validate(ctx, stolen, "", ""); err != nil {
		t.Fatalf("first validate: %v", err)
	}

	// The attacker replays the pre-rotation value.
	_, _, err = svc.Validate(ctx, stolen, "198.51.100.7", "evil-agent")
	if !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("replayed cookie must be invalid, got %v", err)
	}
	if !audit.has(domain.AuditTheftDetected) {
		t.Fatalf("expected theft audit event, got %v", audit.actions())
	}

	// Every other series the user owns is dead too.
	if _, _, err := svc.Validate(ctx, other, "", ""); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("sibling series must be revoked after theft, got %v", err)
	}
}

func TestPersistentTokenExpired(t *testing.T) {
	repo := newStubTokenRepo()
	svc := NewPersistentTokenService(repo, nil, time.Hour, nil)
	ctx := context.Background()

	cookie, err := svc.Issue(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Jump past the expiry.
	future := time.Now().Add(2 * time.Hour)
	svc.WithClock(func() time.Time { return future })

	if _, _, err := svc.Validate(ctx, cookie, "", ""); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected expired, got %v", err)
	}

	// The expired series was dropped; presenting it again is just invalid.
	if _, _, err := svc.Validate(ctx, cookie, "", ""); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Fatalf("expected invalid after cleanup, got %v", err)
	}
}

func TestPersistentTokenMalformedCookie(t *testing.T) {
	svc := NewPersistentTokenService(newStubTokenRepo(), nil, 0, nil)

	for _, cookie := range []string{"", "justonepart", ":missing-series", "missing-token:"} {
		if _, _, err := svc.Validate(context.Background(), cookie, "", ""); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("cookie %q: expected invalid, got %v", cookie, err)
		}
	}
}

func TestPersistentTokenRevokeAllForUser(t *testing.T) {
	repo := newStubTokenRepo()
	audit := &recordingAudit{}
	svc := NewPersistentTokenService(repo, audit, 0, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := svc.Issue(ctx, "u1", "", ""); err != nil {
			t.Fatalf("issue: %v", err)
		}
	}
	if _, err := svc.Issue(ctx, "u2", "", ""); err != nil {
		t.Fatalf("issue for other user: %v", err)
	}

	count, err := svc.RevokeAllForUser(ctx, "u1", "", "")
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked series, got %d", count)
	}
	if len(repo.tokens) != 1 {
		t.Fatalf("other users' series must survive, got %d left", len(repo.tokens))
	}
	if !audit.has(domain.AuditTokensRevoked) {
		t.Fatalf("expected revocation audit event, got %v", audit.actions())
	}
}
