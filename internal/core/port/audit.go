package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// AuditPublisher appends events to the security audit trail. Publishing is
// best-effort from the caller's perspective: implementations may buffer or
// drop on backpressure, and callers log but never propagate failures.
type AuditPublisher interface {
	Publish(ctx context.Context, event domain.AuditEvent) error
}
