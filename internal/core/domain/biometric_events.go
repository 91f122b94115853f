package domain

import "time"

// ProfileEnrolledEvent represents the payload for biometric.profile.enrolled messages.
type ProfileEnrolledEvent struct {
	EventID        string
	IdentityID     string
	ProfileID      string
	EncodingFormat EncodingFormat
	Dimension      int
	Reactivated    bool
	EnrolledAt     time.Time
	PerformedBy    string
	Metadata       map[string]any
}

// ProfileUpdatedEvent represents the payload for biometric.profile.updated messages.
type ProfileUpdatedEvent struct {
	EventID        string
	IdentityID     string
	ProfileID      string
	EncodingFormat EncodingFormat
	Dimension      int
	UpdatedAt      time.Time
	PerformedBy    string
	Metadata       map[string]any
}

// ProfileDeactivatedEvent represents the payload for biometric.profile.deactivated messages.
type ProfileDeactivatedEvent struct {
	EventID       string
	IdentityID    string
	ProfileID     string
	DeactivatedAt time.Time
	PerformedBy   string
	Metadata      map[string]any
}

// VerificationCompletedEvent represents the payload for biometric.verification.completed messages.
type VerificationCompletedEvent struct {
	EventID        string
	VerificationID string
	IdentityID     string
	AttemptType    AttemptType
	Success        bool
	Confidence     float64
	FailureReason  FailureReason
	CompletedAt    time.Time
	Metadata       map[string]any
}

// IdentityLockedEvent represents the payload for biometric.identity.locked messages.
type IdentityLockedEvent struct {
	EventID             string
	IdentityID          string
	ConsecutiveFailures int
	LockedAt            time.Time
	LockedUntil         time.Time
	Metadata            map[string]any
}

// DeviceTrustChangedEvent represents the payload for biometric.device.trust_changed messages.
type DeviceTrustChangedEvent struct {
	EventID    string
	IdentityID string
	DeviceHash string
	Trusted    bool
	Blocked    bool
	RiskScore  int
	ChangedBy  string
	ChangedAt  time.Time
	Metadata   map[string]any
}
