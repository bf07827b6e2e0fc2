package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/logger"
)

// LogNotifier records notifications in the service log instead of
// delivering mail. Deployments wire a real dispatcher behind the same
// port; the service itself never composes or sends messages.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-backed notifier.
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: log}
}

// Send logs the notification with the recipient masked.
func (n *LogNotifier) Send(_ context.Context, notification domain.Notification) error {
	n.logger.Info("User notification dispatched",
		zap.String("kind", string(notification.Kind)),
		zap.String("email", logger.MaskEmail(notification.Email)),
		zap.Any("data", notification.Data),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
