package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-auth/internal/core/domain"
	"github.com/arklim/social-platform-auth/internal/core/port"
	"github.com/arklim/social-platform-auth/internal/infra/config"
)

const schemaVersion = "1.0"

// AuditPublisher implements port.AuditPublisher using Kafka. Each event
// lands on a per-category topic so downstream consumers can subscribe to
// the slice they care about.
type AuditPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewAuditPublisher constructs a Kafka-backed audit publisher.
func NewAuditPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *AuditPublisher {
	return &AuditPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type auditEnvelope struct {
	EventID    string            `json:"event_id"`
	Action     string            `json:"action"`
	Category   string            `json:"category"`
	UserID     string            `json:"user_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
	Version    string            `json:"version"`
	Payload    map[string]any    `json:"payload,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Publish serializes the event envelope and hands it to the async
// producer. Blocking only happens when the producer's input buffer is
// full; ctx bounds that wait.
func (p *AuditPublisher) Publish(ctx context.Context, event domain.AuditEvent) error {
	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	envelope := auditEnvelope{
		EventID:    uuid.NewString(),
		Action:     string(event.Action),
		Category:   string(event.Category),
		IP:         event.IP,
		UserAgent:  event.UserAgent,
		OccurredAt: occurredAt.UTC(),
		Version:    schemaVersion,
		Payload:    event.Metadata,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}
	if event.UserID != nil {
		envelope.UserID = *event.UserID
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal audit envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName("audit." + string(event.Category)),
		Value: sarama.ByteEncoder(bytes),
	}
	if envelope.UserID != "" {
		// Keyed by user so one principal's trail stays ordered within a
		// partition.
		message.Key = sarama.StringEncoder(envelope.UserID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

var _ port.AuditPublisher = (*AuditPublisher)(nil)
