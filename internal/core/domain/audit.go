package domain

import "time"

// AuditEventType enumerates lifecycle and policy audit records.
type AuditEventType string

const (
	AuditProfileCreated      AuditEventType = "profile_created"
	AuditProfileUpdated      AuditEventType = "profile_updated"
	AuditProfileDeleted      AuditEventType = "profile_deleted"
	AuditProfileDeleteFailed AuditEventType = "profile_delete_failed"
	AuditRateLimited         AuditEventType = "rate_limited"
	AuditDeviceTrustChanged  AuditEventType = "device_trust_changed"
	AuditRetentionCleanup    AuditEventType = "retention_cleanup"
)

// AuditEvent is an append-only lifecycle or policy record.
type AuditEvent struct {
	ID          string
	IdentityID  string
	EventType   AuditEventType
	PerformedBy string
	Details     map[string]any
	CreatedAt   time.Time
}
