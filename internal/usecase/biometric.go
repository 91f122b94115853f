package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/repository"
)

const tracerName = "github.com/arklim/workforce-biometric/internal/usecase"

// BiometricTxFunc runs fn inside one transaction spanning every biometric store.
type BiometricTxFunc func(ctx context.Context, fn func(repos port.Repositories) error) error

// BiometricMetrics captures telemetry hooks for enrollment and verification.
type BiometricMetrics interface {
	ObserveVerification(attemptType domain.AttemptType, success bool, confidence float64, duration time.Duration)
	IncLockout()
	IncRateLimited()
	IncEnrollment(operation string)
}

type nopMetrics struct{}

func (nopMetrics) ObserveVerification(domain.AttemptType, bool, float64, time.Duration) {}
func (nopMetrics) IncLockout()                                                          {}
func (nopMetrics) IncRateLimited()                                                      {}
func (nopMetrics) IncEnrollment(string)                                                 {}

func normalizeIdentity(identityID string) (string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return "", domain.ErrInvalidIdentity
	}
	return identityID, nil
}

func newVerificationID() string {
	return ksuid.New().String()
}

func newRowID() string {
	return uuid.NewString()
}

// lookupProfile maps a missing row to a nil profile.
func lookupProfile(ctx context.Context, repo port.ProfileRepository, identityID string) (*domain.BiometricProfile, error) {
	profile, err := repo.GetByIdentity(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return profile, err
}

func startSpan(ctx context.Context, name, identityID string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attribute.String("biometric.identity_id", identityID)))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// logEntry builds a log row for attempts that did not reach comparison.
func logEntry(verificationID, identityID string, attemptType domain.AttemptType, reason domain.FailureReason, now time.Time) domain.VerificationLog {
	return domain.VerificationLog{
		ID:             newRowID(),
		VerificationID: verificationID,
		IdentityID:     identityID,
		AttemptType:    attemptType,
		FailureReason:  reason,
		CreatedAt:      now,
	}
}
