package domain

import "time"

// AttemptType classifies a verification log entry.
type AttemptType string

const (
	AttemptStart        AttemptType = "start"
	AttemptEnd          AttemptType = "end"
	AttemptRegistration AttemptType = "registration"
	AttemptUpdate       AttemptType = "update"
	AttemptTest         AttemptType = "test"
)

// Valid reports whether the attempt type is known.
func (a AttemptType) Valid() bool {
	switch a {
	case AttemptStart, AttemptEnd, AttemptRegistration, AttemptUpdate, AttemptTest:
		return true
	}
	return false
}

// IsVerification reports whether the type is accepted by verify calls.
func (a AttemptType) IsVerification() bool {
	return a == AttemptStart || a == AttemptEnd
}

// FailureReason is the human readable reason stored on failed attempts.
type FailureReason string

const (
	FailureNoMatch            FailureReason = "does not match"
	FailureLowConfidence      FailureReason = "confidence too low"
	FailureLiveness           FailureReason = "liveness detection failed"
	FailureAccountLocked      FailureReason = "account locked"
	FailureMalformed          FailureReason = "malformed encoding"
	FailureNoActiveProfile    FailureReason = "no active profile"
	FailureAlreadyEnrolled    FailureReason = "already enrolled"
	FailureLowQuality         FailureReason = "enrollment quality too low"
	FailureDeviceBlocked      FailureReason = "device blocked"
	FailureInvalidAttemptType FailureReason = "invalid attempt type"
	FailureInternal           FailureReason = "internal error"
)

// MatchThresholds drives classification of a confidence score.
type MatchThresholds struct {
	Confidence float64
	Mismatch   float64
	ExactMatch float64
}

// DefaultMatchThresholds returns the production thresholds.
func DefaultMatchThresholds() MatchThresholds {
	return MatchThresholds{Confidence: 0.85, Mismatch: 0.5, ExactMatch: 0.95}
}

// Classify turns a confidence and liveness signal into an outcome.
func (t MatchThresholds) Classify(confidence float64, liveness bool) (bool, FailureReason) {
	switch {
	case confidence >= t.Confidence && liveness:
		return true, ""
	case confidence < t.Mismatch:
		return false, FailureNoMatch
	case confidence < t.Confidence:
		return false, FailureLowConfidence
	default:
		return false, FailureLiveness
	}
}

// VerificationRequest is a live capture submitted for verification.
type VerificationRequest struct {
	IdentityID        string
	SessionRef        *string
	AttemptType       AttemptType
	Vector            []float64
	LivenessDetected  bool
	LivenessScore     *float64
	QualityScore      *float64
	LightingCondition string
	DeviceInfo        DeviceInfo
	NetworkOrigin     string
}

// VerificationResult is the verdict returned to callers.
type VerificationResult struct {
	VerificationID    string
	Success           bool
	Confidence        float64
	LivenessDetected  bool
	LivenessScore     *float64
	FailureReason     FailureReason
	DeviceFingerprint string
	LockedUntil       *time.Time
	RemainingAttempts int
}

// VerificationLog is one append-only audit row for a verification-related attempt.
type VerificationLog struct {
	ID                string
	VerificationID    string
	IdentityID        string
	SessionRef        *string
	AttemptType       AttemptType
	Success           bool
	Confidence        float64
	LivenessDetected  bool
	LivenessScore     *float64
	QualityScore      *float64
	LightingCondition string
	FailureReason     FailureReason
	DeviceFingerprint string
	DeviceInfo        DeviceInfo
	NetworkOrigin     string
	LockoutTriggered  bool
	Metadata          map[string]any
	CreatedAt         time.Time
}
