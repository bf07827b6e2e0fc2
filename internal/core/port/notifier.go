package port

import (
	"context"

	"github.com/arklim/social-platform-auth/internal/core/domain"
)

// Notifier dispatches best-effort user notifications (lockout, new device,
// password changed, second-factor changes). Failures are logged by the
// caller and never abort the triggering operation.
type Notifier interface {
	Send(ctx context.Context, notification domain.Notification) error
}
