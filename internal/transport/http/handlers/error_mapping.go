package handlers

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/usecase"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, NewErrorResponse(c, cs.Message))
			return
		}
	}

	c.JSON(fallbackStatus, NewErrorResponse(c, fallbackMessage))
}

var biometricErrorCases = []ErrorCase{
	{Err: domain.ErrInvalidIdentity, Status: http.StatusBadRequest, Message: "invalid identity"},
	{Err: domain.ErrInvalidAttemptType, Status: http.StatusBadRequest, Message: "invalid attempt type"},
	{Err: domain.ErrMalformedVector, Status: http.StatusUnprocessableEntity, Message: "malformed feature vector"},
	{Err: domain.ErrLowEnrollmentQuality, Status: http.StatusUnprocessableEntity, Message: "enrollment quality too low"},
	{Err: domain.ErrAlreadyEnrolled, Status: http.StatusConflict, Message: "biometric profile already enrolled"},
	{Err: domain.ErrNoActiveProfile, Status: http.StatusNotFound, Message: "no active biometric profile"},
	{Err: domain.ErrNoProfile, Status: http.StatusNotFound, Message: "biometric profile not found"},
	{Err: domain.ErrDeviceNotFound, Status: http.StatusNotFound, Message: "device not found"},
	{Err: usecase.ErrUnknownDeviceAction, Status: http.StatusBadRequest, Message: "unknown device action"},
}

// respondBiometricError maps engine errors. Lockout and rate-limit errors carry their expiry.
func respondBiometricError(c *gin.Context, err error, fallbackMessage string) {
	var locked *domain.LockedError
	if errors.As(err, &locked) {
		c.JSON(http.StatusLocked, LockedResponse{
			Error:       "identity locked",
			LockedUntil: locked.Until.UTC(),
			TraceID:     NewErrorResponse(c, "").TraceID,
		})
		return
	}

	var limited *domain.RateLimitError
	if errors.As(err, &limited) {
		seconds := int(math.Ceil(limited.RetryAfter.Seconds()))
		if seconds < 0 {
			seconds = 0
		}
		c.Header("Retry-After", strconv.Itoa(seconds))
		c.JSON(http.StatusTooManyRequests, RateLimitedResponse{
			Error:      "verification rate limit exceeded",
			RetryAfter: seconds,
			TraceID:    NewErrorResponse(c, "").TraceID,
		})
		return
	}

	RespondWithMappedError(c, err, biometricErrorCases, http.StatusInternalServerError, fallbackMessage)
}
