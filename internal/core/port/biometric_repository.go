package port

import (
	"context"
	"time"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

// ProfileRepository persists biometric profiles. At most one row exists per identity.
type ProfileRepository interface {
	GetByIdentity(ctx context.Context, identityID string) (*domain.BiometricProfile, error)
	Create(ctx context.Context, profile domain.BiometricProfile) error
	Update(ctx context.Context, profile domain.BiometricProfile) error
	RecordVerification(ctx context.Context, profileID string, at time.Time) error
}

// SecurityStateRepository persists per-identity biometric flags and the lockout machine.
type SecurityStateRepository interface {
	// LockForUpdate creates the row when missing and locks it until the surrounding transaction ends.
	LockForUpdate(ctx context.Context, identityID string, now time.Time) (*domain.IdentitySecurityState, error)
	Get(ctx context.Context, identityID string) (*domain.IdentitySecurityState, error)
	Save(ctx context.Context, state domain.IdentitySecurityState) error
}

// VerificationLogRepository appends and aggregates verification log rows.
type VerificationLogRepository interface {
	Append(ctx context.Context, entry domain.VerificationLog) error
	ListByIdentity(ctx context.Context, identityID string, limit int) ([]domain.VerificationLog, error)
	Statistics(ctx context.Context, since, until time.Time) (domain.VerificationStatistics, error)
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// DeviceRepository persists device fingerprints keyed by identity and device hash.
type DeviceRepository interface {
	Get(ctx context.Context, identityID, deviceHash string) (*domain.DeviceFingerprint, error)
	// Touch inserts a first sighting or refreshes last_seen, returning the stored row.
	Touch(ctx context.Context, device domain.DeviceFingerprint) (domain.DeviceFingerprint, error)
	Save(ctx context.Context, device domain.DeviceFingerprint) error
	ListByIdentity(ctx context.Context, identityID string) ([]domain.DeviceFingerprint, error)
	ListByRisk(ctx context.Context, minRisk, limit int) ([]domain.DeviceFingerprint, error)
}

// AuditRepository appends lifecycle and policy audit events.
type AuditRepository interface {
	Append(ctx context.Context, event domain.AuditEvent) error
	CountByType(ctx context.Context, eventType domain.AuditEventType, since, until time.Time) (int, error)
}

// RateLimitPurger is implemented by rate-limit stores that support bulk retention.
type RateLimitPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// RateLimitStore defines the persistence operations required to enforce sliding-window limits.
type RateLimitStore interface {
	TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error
	CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error)
	RecordAttempt(ctx context.Context, identifier string, at time.Time) error
	OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error)
}

// Repositories groups the stores that take part in one biometric unit of work.
type Repositories struct {
	Profiles   ProfileRepository
	States     SecurityStateRepository
	Logs       VerificationLogRepository
	Devices    DeviceRepository
	Audit      AuditRepository
	RateLimits RateLimitStore
}
