package domain

import "time"

// DeviceInfo is the free-form device description supplied by capture clients.
type DeviceInfo map[string]string

// ProfileLifecycle is the lifecycle of a biometric profile.
type ProfileLifecycle string

const (
	ProfileActive   ProfileLifecycle = "active"
	ProfileInactive ProfileLifecycle = "inactive"
)

// BiometricProfile is the stored enrollment for one identity. The raw vector is never kept:
// only its fingerprint and the sealed encoding.
type BiometricProfile struct {
	ID                  string
	IdentityID          string
	EncodingFingerprint string
	SealedEncoding      string
	Dimension           int
	EncodingFormat      EncodingFormat
	QualityScore        *float64
	Lifecycle           ProfileLifecycle
	VerificationCount   int
	LastVerifiedAt      *time.Time
	DeviceInfo          DeviceInfo
	EnrolledAt          time.Time
	UpdatedAt           time.Time
	DeactivatedAt       *time.Time
	DeactivatedBy       *string
}

// IsActive reports whether the profile participates in verification.
func (p BiometricProfile) IsActive() bool {
	return p.Lifecycle == ProfileActive
}

// EnrollmentRequest carries an enrollment or re-enrollment capture.
type EnrollmentRequest struct {
	IdentityID    string
	Vector        []float64
	Confirmation  []float64
	QualityScore  *float64
	DeviceInfo    DeviceInfo
	NetworkOrigin string
	PerformedBy   string
}

// ProfileStatus is the read model returned by status queries.
type ProfileStatus struct {
	IdentityID        string
	Registered        bool
	Active            bool
	Consent           bool
	RegisteredAt      *time.Time
	VerificationCount int
	LastVerifiedAt    *time.Time
	QualityScore      *float64
	EncodingFormat    EncodingFormat
}

// IdentitySecurityState is the per-identity row that holds the biometric flags and lockout machine.
type IdentitySecurityState struct {
	IdentityID          string
	BiometricRegistered bool
	BiometricConsent    bool
	Lockout             LockoutState
	UpdatedAt           time.Time
}

// LockoutStatus is the read model for lockout queries.
type LockoutStatus struct {
	IdentityID          string
	Phase               LockoutPhase
	ConsecutiveFailures int
	RemainingAttempts   int
	LockedUntil         *time.Time
}
