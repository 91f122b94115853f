package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, identityID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("identity_id", identityID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

func (p *StubPublisher) PublishProfileEnrolled(_ context.Context, event domain.ProfileEnrolledEvent) error {
	p.logEvent(TopicProfileEnrolled, event.IdentityID, event.EnrolledAt, map[string]any{
		"profile_id":      event.ProfileID,
		"encoding_format": string(event.EncodingFormat),
		"dimension":       event.Dimension,
		"reactivated":     event.Reactivated,
		"performed_by":    event.PerformedBy,
	})
	return nil
}

func (p *StubPublisher) PublishProfileUpdated(_ context.Context, event domain.ProfileUpdatedEvent) error {
	p.logEvent(TopicProfileUpdated, event.IdentityID, event.UpdatedAt, map[string]any{
		"profile_id":      event.ProfileID,
		"encoding_format": string(event.EncodingFormat),
		"dimension":       event.Dimension,
		"performed_by":    event.PerformedBy,
	})
	return nil
}

func (p *StubPublisher) PublishProfileDeactivated(_ context.Context, event domain.ProfileDeactivatedEvent) error {
	p.logEvent(TopicProfileDeactivated, event.IdentityID, event.DeactivatedAt, map[string]any{
		"profile_id":   event.ProfileID,
		"performed_by": event.PerformedBy,
	})
	return nil
}

func (p *StubPublisher) PublishVerificationCompleted(_ context.Context, event domain.VerificationCompletedEvent) error {
	p.logEvent(TopicVerificationCompleted, event.IdentityID, event.CompletedAt, map[string]any{
		"verification_id": event.VerificationID,
		"attempt_type":    string(event.AttemptType),
		"success":         event.Success,
		"confidence":      event.Confidence,
		"failure_reason":  string(event.FailureReason),
	})
	return nil
}

func (p *StubPublisher) PublishIdentityLocked(_ context.Context, event domain.IdentityLockedEvent) error {
	p.logEvent(TopicIdentityLocked, event.IdentityID, event.LockedAt, map[string]any{
		"consecutive_failures": event.ConsecutiveFailures,
		"locked_until":         event.LockedUntil,
	})
	return nil
}

func (p *StubPublisher) PublishDeviceTrustChanged(_ context.Context, event domain.DeviceTrustChangedEvent) error {
	p.logEvent(TopicDeviceTrustChanged, event.IdentityID, event.ChangedAt, map[string]any{
		"device_hash": event.DeviceHash,
		"trusted":     event.Trusted,
		"blocked":     event.Blocked,
		"risk_score":  event.RiskScore,
		"changed_by":  event.ChangedBy,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
