package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
)

// StubPublisher logs audit events instead of sending them to Kafka.
// Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly audit publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

// Publish logs the event at info level.
func (p *StubPublisher) Publish(_ context.Context, event domain.AuditEvent) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	fields := []zap.Field{
		zap.String("action", string(event.Action)),
		zap.String("category", string(event.Category)),
		zap.Time("occurred_at", occurredAt.UTC()),
	}
	if event.UserID != nil {
		fields = append(fields, zap.String("user_id", *event.UserID))
	}
	if event.IP != "" {
		fields = append(fields, zap.String("ip", event.IP))
	}
	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("payload", event.Metadata))
	}

	p.logger.Info("Stub audit event published", fields...)
	return nil
}

var _ port.AuditPublisher = (*StubPublisher)(nil)
