package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/similarity"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// LockedResponse is returned with 423 while an identity is locked out.
type LockedResponse struct {
	Error       string    `json:"error"`
	LockedUntil time.Time `json:"locked_until"`
	TraceID     string    `json:"trace_id,omitempty"`
}

// RateLimitedResponse is returned with 429 when the verification window is exhausted.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// EnrollRequest carries an enrollment or re-enrollment capture.
type EnrollRequest struct {
	Vector       []float64         `json:"vector" binding:"required"`
	Confirmation []float64         `json:"confirmation,omitempty"`
	QualityScore *float64          `json:"quality_score,omitempty"`
	DeviceInfo   map[string]string `json:"device_info,omitempty"`
}

// ProfilePayload describes a stored profile without any biometric material.
type ProfilePayload struct {
	ID                string     `json:"id"`
	IdentityID        string     `json:"identity_id"`
	Dimension         int        `json:"dimension"`
	EncodingFormat    string     `json:"encoding_format"`
	QualityScore      *float64   `json:"quality_score,omitempty"`
	Active            bool       `json:"active"`
	VerificationCount int        `json:"verification_count"`
	LastVerifiedAt    *time.Time `json:"last_verified_at,omitempty"`
	EnrolledAt        time.Time  `json:"enrolled_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ProfileStatusResponse is the registration status read model.
type ProfileStatusResponse struct {
	IdentityID        string     `json:"identity_id"`
	Registered        bool       `json:"registered"`
	Active            bool       `json:"active"`
	Consent           bool       `json:"consent"`
	RegisteredAt      *time.Time `json:"registered_at,omitempty"`
	VerificationCount int        `json:"verification_count"`
	LastVerifiedAt    *time.Time `json:"last_verified_at,omitempty"`
	QualityScore      *float64   `json:"quality_score,omitempty"`
	EncodingFormat    string     `json:"encoding_format,omitempty"`
}

// LockoutStatusResponse is the lockout read model.
type LockoutStatusResponse struct {
	IdentityID          string     `json:"identity_id"`
	Phase               string     `json:"phase"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	RemainingAttempts   int        `json:"remaining_attempts"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
}

// VerifyRequest is a live capture submitted for verification.
type VerifyRequest struct {
	AttemptType       string            `json:"attempt_type"`
	SessionRef        *string           `json:"session_ref,omitempty"`
	Vector            []float64         `json:"vector" binding:"required"`
	LivenessDetected  bool              `json:"liveness_detected"`
	LivenessScore     *float64          `json:"liveness_score,omitempty"`
	QualityScore      *float64          `json:"quality_score,omitempty"`
	LightingCondition string            `json:"lighting_condition,omitempty"`
	DeviceInfo        map[string]string `json:"device_info,omitempty"`
}

// VerifyResponse is the verification verdict.
type VerifyResponse struct {
	VerificationID    string     `json:"verification_id"`
	Success           bool       `json:"success"`
	Confidence        float64    `json:"confidence"`
	LivenessDetected  bool       `json:"liveness_detected"`
	LivenessScore     *float64   `json:"liveness_score,omitempty"`
	FailureReason     string     `json:"failure_reason,omitempty"`
	DeviceFingerprint string     `json:"device_fingerprint"`
	RemainingAttempts int        `json:"remaining_attempts"`
	LockedUntil       *time.Time `json:"locked_until,omitempty"`
}

// CompareRequest carries two raw captures to score against each other.
type CompareRequest struct {
	Reference  []float64         `json:"reference" binding:"required"`
	Probe      []float64         `json:"probe" binding:"required"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
}

// CompareResponse reports the similarity of two captures.
type CompareResponse struct {
	Confidence         float64 `json:"confidence"`
	EncodingFormat     string  `json:"encoding_format"`
	ComparedDimensions int     `json:"compared_dimensions"`
	Truncated          bool    `json:"truncated"`
}

// VerificationLogPayload is one verification history row.
type VerificationLogPayload struct {
	VerificationID   string    `json:"verification_id"`
	AttemptType      string    `json:"attempt_type"`
	Success          bool      `json:"success"`
	Confidence       float64   `json:"confidence"`
	LivenessDetected bool      `json:"liveness_detected"`
	FailureReason    string    `json:"failure_reason,omitempty"`
	LockoutTriggered bool      `json:"lockout_triggered"`
	CreatedAt        time.Time `json:"created_at"`
}

// HistoryResponse lists recent verification attempts.
type HistoryResponse struct {
	Attempts []VerificationLogPayload `json:"attempts"`
	Total    int                      `json:"total"`
}

// DevicePayload describes a capture device known for an identity.
type DevicePayload struct {
	IdentityID string            `json:"identity_id"`
	DeviceHash string            `json:"device_hash"`
	DeviceInfo map[string]string `json:"device_info,omitempty"`
	Trusted    bool              `json:"trusted"`
	Blocked    bool              `json:"blocked"`
	RiskScore  int               `json:"risk_score"`
	FirstSeen  time.Time         `json:"first_seen"`
	LastSeen   time.Time         `json:"last_seen"`
	UpdatedBy  *string           `json:"updated_by,omitempty"`
}

// DeviceListResponse lists devices.
type DeviceListResponse struct {
	Devices []DevicePayload `json:"devices"`
	Total   int             `json:"total"`
}

// DeviceTrustRequest toggles the trusted flag of a device.
type DeviceTrustRequest struct {
	Trusted *bool `json:"trusted" binding:"required"`
}

// AttemptTypeStatsPayload aggregates one attempt type.
type AttemptTypeStatsPayload struct {
	Total             int     `json:"total"`
	Successes         int     `json:"successes"`
	Failures          int     `json:"failures"`
	AverageConfidence float64 `json:"average_confidence"`
	LockoutsTriggered int     `json:"lockouts_triggered"`
}

// VerificationStatsResponse summarises the verification log over a window.
type VerificationStatsResponse struct {
	WindowStart       time.Time                          `json:"window_start"`
	WindowEnd         time.Time                          `json:"window_end"`
	Total             int                                `json:"total"`
	Successes         int                                `json:"successes"`
	Failures          int                                `json:"failures"`
	SuccessRate       float64                            `json:"success_rate"`
	AverageConfidence float64                            `json:"average_confidence"`
	LockoutsTriggered int                                `json:"lockouts_triggered"`
	RateLimited       int                                `json:"rate_limited"`
	ByAttemptType     map[string]AttemptTypeStatsPayload `json:"by_attempt_type"`
}

// HealthResponse describes the service health payload.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse reports the state of each dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func newProfilePayload(p domain.BiometricProfile) ProfilePayload {
	return ProfilePayload{
		ID:                p.ID,
		IdentityID:        p.IdentityID,
		Dimension:         p.Dimension,
		EncodingFormat:    string(p.EncodingFormat),
		QualityScore:      p.QualityScore,
		Active:            p.IsActive(),
		VerificationCount: p.VerificationCount,
		LastVerifiedAt:    p.LastVerifiedAt,
		EnrolledAt:        p.EnrolledAt,
		UpdatedAt:         p.UpdatedAt,
	}
}

func newProfileStatusResponse(s domain.ProfileStatus) ProfileStatusResponse {
	return ProfileStatusResponse{
		IdentityID:        s.IdentityID,
		Registered:        s.Registered,
		Active:            s.Active,
		Consent:           s.Consent,
		RegisteredAt:      s.RegisteredAt,
		VerificationCount: s.VerificationCount,
		LastVerifiedAt:    s.LastVerifiedAt,
		QualityScore:      s.QualityScore,
		EncodingFormat:    string(s.EncodingFormat),
	}
}

func newLockoutStatusResponse(s domain.LockoutStatus) LockoutStatusResponse {
	return LockoutStatusResponse{
		IdentityID:          s.IdentityID,
		Phase:               string(s.Phase),
		ConsecutiveFailures: s.ConsecutiveFailures,
		RemainingAttempts:   s.RemainingAttempts,
		LockedUntil:         s.LockedUntil,
	}
}

func newVerifyResponse(r domain.VerificationResult) VerifyResponse {
	return VerifyResponse{
		VerificationID:    r.VerificationID,
		Success:           r.Success,
		Confidence:        r.Confidence,
		LivenessDetected:  r.LivenessDetected,
		LivenessScore:     r.LivenessScore,
		FailureReason:     string(r.FailureReason),
		DeviceFingerprint: r.DeviceFingerprint,
		RemainingAttempts: r.RemainingAttempts,
		LockedUntil:       r.LockedUntil,
	}
}

func newCompareResponse(r similarity.Result) CompareResponse {
	return CompareResponse{
		Confidence:         r.Confidence,
		EncodingFormat:     string(r.Format),
		ComparedDimensions: r.ComparedDimensions,
		Truncated:          r.Truncated,
	}
}

func newVerificationLogPayload(l domain.VerificationLog) VerificationLogPayload {
	return VerificationLogPayload{
		VerificationID:   l.VerificationID,
		AttemptType:      string(l.AttemptType),
		Success:          l.Success,
		Confidence:       l.Confidence,
		LivenessDetected: l.LivenessDetected,
		FailureReason:    string(l.FailureReason),
		LockoutTriggered: l.LockoutTriggered,
		CreatedAt:        l.CreatedAt,
	}
}

func newDevicePayload(d domain.DeviceFingerprint) DevicePayload {
	return DevicePayload{
		IdentityID: d.IdentityID,
		DeviceHash: d.DeviceHash,
		DeviceInfo: d.DeviceInfo,
		Trusted:    d.Trusted,
		Blocked:    d.Blocked,
		RiskScore:  d.RiskScore,
		FirstSeen:  d.FirstSeen,
		LastSeen:   d.LastSeen,
		UpdatedBy:  d.UpdatedBy,
	}
}

func newDeviceListResponse(devices []domain.DeviceFingerprint) DeviceListResponse {
	payload := make([]DevicePayload, 0, len(devices))
	for _, d := range devices {
		payload = append(payload, newDevicePayload(d))
	}
	return DeviceListResponse{Devices: payload, Total: len(payload)}
}

func newVerificationStatsResponse(s domain.VerificationStatistics) VerificationStatsResponse {
	byType := make(map[string]AttemptTypeStatsPayload, len(s.ByAttemptType))
	for attemptType, st := range s.ByAttemptType {
		byType[string(attemptType)] = AttemptTypeStatsPayload{
			Total:             st.Total,
			Successes:         st.Successes,
			Failures:          st.Failures,
			AverageConfidence: st.AverageConfidence,
			LockoutsTriggered: st.LockoutsTriggered,
		}
	}
	return VerificationStatsResponse{
		WindowStart:       s.WindowStart,
		WindowEnd:         s.WindowEnd,
		Total:             s.Total,
		Successes:         s.Successes,
		Failures:          s.Failures,
		SuccessRate:       s.SuccessRate,
		AverageConfidence: s.AverageConfidence,
		LockoutsTriggered: s.LockoutsTriggered,
		RateLimited:       s.RateLimited,
		ByAttemptType:     byType,
	}
}
