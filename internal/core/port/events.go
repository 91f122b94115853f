package port

import (
	"context"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

// EventPublisher publishes biometric domain events to the message bus.
type EventPublisher interface {
	PublishProfileEnrolled(ctx context.Context, event domain.ProfileEnrolledEvent) error
	PublishProfileUpdated(ctx context.Context, event domain.ProfileUpdatedEvent) error
	PublishProfileDeactivated(ctx context.Context, event domain.ProfileDeactivatedEvent) error
	PublishVerificationCompleted(ctx context.Context, event domain.VerificationCompletedEvent) error
	PublishIdentityLocked(ctx context.Context, event domain.IdentityLockedEvent) error
	PublishDeviceTrustChanged(ctx context.Context, event domain.DeviceTrustChangedEvent) error
}
