package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/infra/config"
)

const schemaVersion = "1.0"

const (
	TopicProfileEnrolled       = "biometric.profile.enrolled"
	TopicProfileUpdated        = "biometric.profile.updated"
	TopicProfileDeactivated    = "biometric.profile.deactivated"
	TopicVerificationCompleted = "biometric.verification.completed"
	TopicIdentityLocked        = "biometric.identity.locked"
	TopicDeviceTrustChanged    = "biometric.device.trust_changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID    string           `json:"event_id"`
	EventType  string           `json:"event_type"`
	IdentityID string           `json:"identity_id,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
	Version    string           `json:"version"`
	Payload    any              `json:"payload"`
	Metadata   envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, identityID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:    id,
		EventType:  eventType,
		IdentityID: identityID,
		Timestamp:  ts.UTC(),
		Version:    schemaVersion,
		Payload:    payload,
		Metadata:   metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Key:   sarama.StringEncoder(identityID),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishProfileEnrolled publishes biometric.profile.enrolled events.
func (p *EventPublisher) PublishProfileEnrolled(ctx context.Context, event domain.ProfileEnrolledEvent) error {
	payload := struct {
		IdentityID     string         `json:"identity_id"`
		ProfileID      string         `json:"profile_id"`
		EncodingFormat string         `json:"encoding_format"`
		Dimension      int            `json:"dimension"`
		Reactivated    bool           `json:"reactivated"`
		EnrolledAt     time.Time      `json:"enrolled_at"`
		PerformedBy    string         `json:"performed_by"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID:     event.IdentityID,
		ProfileID:      event.ProfileID,
		EncodingFormat: string(event.EncodingFormat),
		Dimension:      event.Dimension,
		Reactivated:    event.Reactivated,
		EnrolledAt:     event.EnrolledAt.UTC(),
		PerformedBy:    event.PerformedBy,
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicProfileEnrolled, event.IdentityID, event.EnrolledAt, payload)
}

// PublishProfileUpdated publishes biometric.profile.updated events.
func (p *EventPublisher) PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error {
	payload := struct {
		IdentityID     string         `json:"identity_id"`
		ProfileID      string         `json:"profile_id"`
		EncodingFormat string         `json:"encoding_format"`
		Dimension      int            `json:"dimension"`
		UpdatedAt      time.Time      `json:"updated_at"`
		PerformedBy    string         `json:"performed_by"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID:     event.IdentityID,
		ProfileID:      event.ProfileID,
		EncodingFormat: string(event.EncodingFormat),
		Dimension:      event.Dimension,
		UpdatedAt:      event.UpdatedAt.UTC(),
		PerformedBy:    event.PerformedBy,
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicProfileUpdated, event.IdentityID, event.UpdatedAt, payload)
}

// PublishProfileDeactivated publishes biometric.profile.deactivated events.
func (p *EventPublisher) PublishProfileDeactivated(ctx context.Context, event domain.ProfileDeactivatedEvent) error {
	payload := struct {
		IdentityID    string         `json:"identity_id"`
		ProfileID     string         `json:"profile_id"`
		DeactivatedAt time.Time      `json:"deactivated_at"`
		PerformedBy   string         `json:"performed_by"`
		Metadata      map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID:    event.IdentityID,
		ProfileID:     event.ProfileID,
		DeactivatedAt: event.DeactivatedAt.UTC(),
		PerformedBy:   event.PerformedBy,
		Metadata:      event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicProfileDeactivated, event.IdentityID, event.DeactivatedAt, payload)
}

// PublishVerificationCompleted publishes biometric.verification.completed events. The feature vector never leaves the engine.
func (p *EventPublisher) PublishVerificationCompleted(ctx context.Context, event domain.VerificationCompletedEvent) error {
	payload := struct {
		VerificationID string         `json:"verification_id"`
		IdentityID     string         `json:"identity_id"`
		AttemptType    string         `json:"attempt_type"`
		Success        bool           `json:"success"`
		Confidence     float64        `json:"confidence"`
		FailureReason  string         `json:"failure_reason,omitempty"`
		CompletedAt    time.Time      `json:"completed_at"`
		Metadata       map[string]any `json:"metadata,omitempty"`
	}{
		VerificationID: event.VerificationID,
		IdentityID:     event.IdentityID,
		AttemptType:    string(event.AttemptType),
		Success:        event.Success,
		Confidence:     event.Confidence,
		FailureReason:  string(event.FailureReason),
		CompletedAt:    event.CompletedAt.UTC(),
		Metadata:       event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicVerificationCompleted, event.IdentityID, event.CompletedAt, payload)
}

// PublishIdentityLocked publishes biometric.identity.locked events.
func (p *EventPublisher) PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error {
	payload := struct {
		IdentityID          string         `json:"identity_id"`
		ConsecutiveFailures int            `json:"consecutive_failures"`
		LockedAt            time.Time      `json:"locked_at"`
		LockedUntil         time.Time      `json:"locked_until"`
		Metadata            map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID:          event.IdentityID,
		ConsecutiveFailures: event.ConsecutiveFailures,
		LockedAt:            event.LockedAt.UTC(),
		LockedUntil:         event.LockedUntil.UTC(),
		Metadata:            event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicIdentityLocked, event.IdentityID, event.LockedAt, payload)
}

// PublishDeviceTrustChanged publishes biometric.device.trust_changed events.
func (p *EventPublisher) PublishDeviceTrustChanged(ctx context.Context, event domain.DeviceTrustChangedEvent) error {
	payload := struct {
		IdentityID string         `json:"identity_id"`
		DeviceHash string         `json:"device_hash"`
		Trusted    bool           `json:"trusted"`
		Blocked    bool           `json:"blocked"`
		RiskScore  int            `json:"risk_score"`
		ChangedBy  string         `json:"changed_by"`
		ChangedAt  time.Time      `json:"changed_at"`
		Metadata   map[string]any `json:"metadata,omitempty"`
	}{
		IdentityID: event.IdentityID,
		DeviceHash: event.DeviceHash,
		Trusted:    event.Trusted,
		Blocked:    event.Blocked,
		RiskScore:  event.RiskScore,
		ChangedBy:  event.ChangedBy,
		ChangedAt:  event.ChangedAt.UTC(),
		Metadata:   event.Metadata,
	}

	return p.publish(ctx, event.EventID, TopicDeviceTrustChanged, event.IdentityID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
