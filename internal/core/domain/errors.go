package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAlreadyEnrolled is returned when an identity already has an active profile.
	ErrAlreadyEnrolled = errors.New("biometric profile already enrolled")
	// ErrNoActiveProfile is returned when an operation requires an active profile.
	ErrNoActiveProfile = errors.New("no active biometric profile")
	// ErrNoProfile is returned when no profile exists in any lifecycle state.
	ErrNoProfile = errors.New("biometric profile not found")
	// ErrRateLimitExceeded wraps every RateLimitError.
	ErrRateLimitExceeded = errors.New("verification rate limit exceeded")
	// ErrLocked wraps every LockedError.
	ErrLocked = errors.New("identity locked")
	// ErrMalformedVector is returned when a feature vector cannot be decoded.
	ErrMalformedVector = errors.New("malformed feature vector")
	// ErrLowEnrollmentQuality is returned when an enrollment capture is too poor to keep.
	ErrLowEnrollmentQuality = errors.New("enrollment quality too low")
	// ErrDeviceNotFound is returned when a device fingerprint is unknown for the identity.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrInvalidIdentity is returned for blank or otherwise unusable identity references.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidAttemptType is returned when an attempt type is not allowed for the operation.
	ErrInvalidAttemptType = errors.New("invalid attempt type")
	// ErrInternal marks storage or sealing failures that aborted an operation.
	ErrInternal = errors.New("internal biometric error")
)

// LockedError reports an identity that is locked until a specific instant.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("identity locked until %s", e.Until.UTC().Format(time.RFC3339))
}

func (e *LockedError) Unwrap() error { return ErrLocked }

// RateLimitError reports an exhausted verification window.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("verification rate limit exceeded, retry after %s", e.RetryAfter.Round(time.Second))
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimitExceeded }
