package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/core/similarity"
	"github.com/arklim/workforce-biometric/internal/repository"
)

const selfReferenceConfidence = 1.0

// ProfileOptions configures enrollment quality gates.
type ProfileOptions struct {
	// MinQuality rejects captures whose reported quality score is below it.
	MinQuality float64
	// ConfirmationThreshold is the similarity a confirmation capture must reach against the enrolled one.
	ConfirmationThreshold float64
}

// ProfileService manages the enrollment lifecycle of biometric profiles.
type ProfileService struct {
	repos   port.Repositories
	tx      BiometricTxFunc
	policy  *SecurityPolicy
	sealer  port.VectorSealer
	hasher  port.DeviceHasher
	scorer  *similarity.Scorer
	events  port.EventPublisher
	opts    ProfileOptions
	logger  *zap.Logger
	now     func() time.Time
	metrics BiometricMetrics
}

// NewProfileService constructs the profile service. repos is used for reads outside a transaction.
func NewProfileService(repos port.Repositories, tx BiometricTxFunc, policy *SecurityPolicy, sealer port.VectorSealer, hasher port.DeviceHasher, events port.EventPublisher, opts ProfileOptions) *ProfileService {
	if opts.ConfirmationThreshold <= 0 {
		opts.ConfirmationThreshold = domain.DefaultMatchThresholds().Confidence
	}
	return &ProfileService{
		repos:   repos,
		tx:      tx,
		policy:  policy,
		sealer:  sealer,
		hasher:  hasher,
		scorer:  similarity.Default(),
		events:  events,
		opts:    opts,
		logger:  zap.NewNop(),
		now:     time.Now,
		metrics: nopMetrics{},
	}
}

// WithLogger attaches a structured logger.
func (s *ProfileService) WithLogger(logger *zap.Logger) *ProfileService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *ProfileService) WithNow(now func() time.Time) *ProfileService {
	if now != nil {
		s.now = now
	}
	return s
}

// WithMetrics wires telemetry observers.
func (s *ProfileService) WithMetrics(metrics BiometricMetrics) *ProfileService {
	if metrics != nil {
		s.metrics = metrics
	}
	return s
}

// Enroll creates a profile, or reactivates an inactive one in place with its counters reset.
func (s *ProfileService) Enroll(ctx context.Context, req domain.EnrollmentRequest) (profile *domain.BiometricProfile, err error) {
	ctx, span := startSpan(ctx, "biometric.enroll", req.IdentityID)
	defer func() { endSpan(span, err) }()

	identityID, err := normalizeIdentity(req.IdentityID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	entry := s.newLog(identityID, domain.AttemptRegistration, req, now)

	vector, fingerprint, sealed, err := s.prepare(ctx, req, &entry)
	if err != nil {
		return nil, err
	}

	var (
		stored      domain.BiometricProfile
		reactivated bool
		verdict     error
	)
	txErr := s.tx(ctx, func(repos port.Repositories) error {
		state, err := repos.States.LockForUpdate(ctx, identityID, now)
		if err != nil {
			return fmt.Errorf("lock security state: %w", err)
		}
		existing, err := lookupProfile(ctx, repos.Profiles, identityID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if existing != nil && existing.IsActive() {
			verdict = domain.ErrAlreadyEnrolled
			entry.FailureReason = domain.FailureAlreadyEnrolled
			return repos.Logs.Append(ctx, entry)
		}

		stored = domain.BiometricProfile{
			ID:                  newRowID(),
			IdentityID:          identityID,
			EncodingFingerprint: fingerprint,
			SealedEncoding:      sealed,
			Dimension:           vector.Len(),
			EncodingFormat:      vector.Format(),
			QualityScore:        req.QualityScore,
			Lifecycle:           domain.ProfileActive,
			DeviceInfo:          req.DeviceInfo,
			EnrolledAt:          now,
			UpdatedAt:           now,
		}
		if existing != nil {
			reactivated = true
			stored.ID = existing.ID
			if err := repos.Profiles.Update(ctx, stored); err != nil {
				return fmt.Errorf("reactivate profile: %w", err)
			}
		} else if err := repos.Profiles.Create(ctx, stored); err != nil {
			return fmt.Errorf("create profile: %w", err)
		}

		state.BiometricRegistered = true
		state.BiometricConsent = true
		state.UpdatedAt = now
		if err := repos.States.Save(ctx, *state); err != nil {
			return fmt.Errorf("save security state: %w", err)
		}

		if err := repos.Audit.Append(ctx, domain.AuditEvent{
			ID:          newRowID(),
			IdentityID:  identityID,
			EventType:   domain.AuditProfileCreated,
			PerformedBy: performer(req.PerformedBy, identityID),
			Details: map[string]any{
				"profile_id":      stored.ID,
				"reactivated":     reactivated,
				"dimension":       stored.Dimension,
				"encoding_format": string(stored.EncodingFormat),
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}

		entry.Success = true
		entry.Confidence = selfReferenceConfidence
		entry.Metadata["profile_id"] = stored.ID
		entry.Metadata["reactivated"] = reactivated
		return repos.Logs.Append(ctx, entry)
	})
	if txErr != nil {
		return nil, s.abort(ctx, entry, txErr)
	}
	if verdict != nil {
		return nil, verdict
	}

	s.metrics.IncEnrollment("enroll")
	s.logger.Info("biometric profile enrolled",
		zap.String("identity_id", identityID),
		zap.String("profile_id", stored.ID),
		zap.Bool("reactivated", reactivated),
		zap.String("encoding_format", string(stored.EncodingFormat)),
	)
	if s.events != nil {
		event := domain.ProfileEnrolledEvent{
			EventID:        newRowID(),
			IdentityID:     identityID,
			ProfileID:      stored.ID,
			EncodingFormat: stored.EncodingFormat,
			Dimension:      stored.Dimension,
			Reactivated:    reactivated,
			EnrolledAt:     now,
			PerformedBy:    performer(req.PerformedBy, identityID),
		}
		if err := s.events.PublishProfileEnrolled(ctx, event); err != nil {
			s.logger.Warn("failed to publish profile enrolled event", zap.String("identity_id", identityID), zap.Error(err))
		}
	}
	return &stored, nil
}

// Update replaces the enrolled capture of an active profile and resets its verification counter.
func (s *ProfileService) Update(ctx context.Context, req domain.EnrollmentRequest) (profile *domain.BiometricProfile, err error) {
	ctx, span := startSpan(ctx, "biometric.update", req.IdentityID)
	defer func() { endSpan(span, err) }()

	identityID, err := normalizeIdentity(req.IdentityID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	entry := s.newLog(identityID, domain.AttemptUpdate, req, now)

	vector, fingerprint, sealed, err := s.prepare(ctx, req, &entry)
	if err != nil {
		return nil, err
	}

	var (
		stored  domain.BiometricProfile
		verdict error
	)
	txErr := s.tx(ctx, func(repos port.Repositories) error {
		if _, err := repos.States.LockForUpdate(ctx, identityID, now); err != nil {
			return fmt.Errorf("lock security state: %w", err)
		}
		existing, err := lookupProfile(ctx, repos.Profiles, identityID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if existing == nil || !existing.IsActive() {
			verdict = domain.ErrNoActiveProfile
			entry.FailureReason = domain.FailureNoActiveProfile
			return repos.Logs.Append(ctx, entry)
		}

		stored = *existing
		stored.EncodingFingerprint = fingerprint
		stored.SealedEncoding = sealed
		stored.Dimension = vector.Len()
		stored.EncodingFormat = vector.Format()
		stored.QualityScore = req.QualityScore
		stored.VerificationCount = 0
		stored.LastVerifiedAt = nil
		stored.UpdatedAt = now
		if req.DeviceInfo != nil {
			stored.DeviceInfo = req.DeviceInfo
		}
		if err := repos.Profiles.Update(ctx, stored); err != nil {
			return fmt.Errorf("update profile: %w", err)
		}

		if err := repos.Audit.Append(ctx, domain.AuditEvent{
			ID:          newRowID(),
			IdentityID:  identityID,
			EventType:   domain.AuditProfileUpdated,
			PerformedBy: performer(req.PerformedBy, identityID),
			Details: map[string]any{
				"profile_id":         stored.ID,
				"previous_dimension": existing.Dimension,
				"dimension":          stored.Dimension,
				"encoding_format":    string(stored.EncodingFormat),
			},
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append audit event: %w", err)
		}

		entry.Success = true
		entry.Confidence = selfReferenceConfidence
		entry.Metadata["profile_id"] = stored.ID
		return repos.Logs.Append(ctx, entry)
	})
	if txErr != nil {
		return nil, s.abort(ctx, entry, txErr)
	}
	if verdict != nil {
		return nil, verdict
	}

	s.metrics.IncEnrollment("update")
	s.logger.Info("biometric profile updated", zap.String("identity_id", identityID), zap.String("profile_id", stored.ID))
	if s.events != nil {
		event := domain.ProfileUpdatedEvent{
			EventID:        newRowID(),
			IdentityID:     identityID,
			ProfileID:      stored.ID,
			EncodingFormat: stored.EncodingFormat,
			Dimension:      stored.Dimension,
			UpdatedAt:      now,
			PerformedBy:    performer(req.PerformedBy, identityID),
		}
		if err := s.events.PublishProfileUpdated(ctx, event); err != nil {
			s.logger.Warn("failed to publish profile updated event", zap.String("identity_id", identityID), zap.Error(err))
		}
	}
	return &stored, nil
}

// Deactivate soft-deletes the profile, clears the identity flags and resets the lockout machine.
func (s *ProfileService) Deactivate(ctx context.Context, identityID, performedBy string) (err error) {
	ctx, span := startSpan(ctx, "biometric.deactivate", identityID)
	defer func() { endSpan(span, err) }()

	identityID, err = normalizeIdentity(identityID)
	if err != nil {
		return err
	}
	now := s.now().UTC()
	actor := performer(performedBy, identityID)

	var (
		profileID string
		verdict   error
	)
	txErr := s.tx(ctx, func(repos port.Repositories) error {
		state, err := repos.States.LockForUpdate(ctx, identityID, now)
		if err != nil {
			return fmt.Errorf("lock security state: %w", err)
		}
		existing, err := lookupProfile(ctx, repos.Profiles, identityID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if existing == nil {
			verdict = domain.ErrNoProfile
			return repos.Audit.Append(ctx, domain.AuditEvent{
				ID:          newRowID(),
				IdentityID:  identityID,
				EventType:   domain.AuditProfileDeleteFailed,
				PerformedBy: actor,
				Details:     map[string]any{"reason": domain.ErrNoProfile.Error()},
				CreatedAt:   now,
			})
		}

		profileID = existing.ID
		existing.Lifecycle = domain.ProfileInactive
		existing.UpdatedAt = now
		existing.DeactivatedAt = &now
		existing.DeactivatedBy = &actor
		if err := repos.Profiles.Update(ctx, *existing); err != nil {
			return fmt.Errorf("deactivate profile: %w", err)
		}

		state.BiometricRegistered = false
		state.BiometricConsent = false
		state.Lockout = domain.LockoutState{}
		state.UpdatedAt = now
		if err := repos.States.Save(ctx, *state); err != nil {
			return fmt.Errorf("save security state: %w", err)
		}

		return repos.Audit.Append(ctx, domain.AuditEvent{
			ID:          newRowID(),
			IdentityID:  identityID,
			EventType:   domain.AuditProfileDeleted,
			PerformedBy: actor,
			Details:     map[string]any{"profile_id": profileID},
			CreatedAt:   now,
		})
	})
	if txErr != nil {
		s.logger.Error("biometric profile deactivation aborted", zap.String("identity_id", identityID), zap.Error(txErr))
		return fmt.Errorf("%w: %v", domain.ErrInternal, txErr)
	}
	if verdict != nil {
		return verdict
	}

	s.metrics.IncEnrollment("deactivate")
	s.logger.Info("biometric profile deactivated",
		zap.String("identity_id", identityID),
		zap.String("profile_id", profileID),
		zap.String("performed_by", actor),
	)
	if s.events != nil {
		event := domain.ProfileDeactivatedEvent{
			EventID:       newRowID(),
			IdentityID:    identityID,
			ProfileID:     profileID,
			DeactivatedAt: now,
			PerformedBy:   actor,
		}
		if err := s.events.PublishProfileDeactivated(ctx, event); err != nil {
			s.logger.Warn("failed to publish profile deactivated event", zap.String("identity_id", identityID), zap.Error(err))
		}
	}
	return nil
}

// Status returns the profile read model. Unknown identities yield an all-false status.
func (s *ProfileService) Status(ctx context.Context, identityID string) (domain.ProfileStatus, error) {
	identityID, err := normalizeIdentity(identityID)
	if err != nil {
		return domain.ProfileStatus{}, err
	}
	status := domain.ProfileStatus{IdentityID: identityID}

	profile, err := lookupProfile(ctx, s.repos.Profiles, identityID)
	if err != nil {
		return status, fmt.Errorf("load profile: %w", err)
	}
	state, err := s.repos.States.Get(ctx, identityID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return status, fmt.Errorf("load security state: %w", err)
	}
	if state != nil {
		status.Registered = state.BiometricRegistered
		status.Consent = state.BiometricConsent
	}
	if profile != nil {
		status.Active = profile.IsActive()
		status.VerificationCount = profile.VerificationCount
		status.LastVerifiedAt = profile.LastVerifiedAt
		status.QualityScore = profile.QualityScore
		status.EncodingFormat = profile.EncodingFormat
		if status.Active {
			enrolledAt := profile.EnrolledAt
			status.RegisteredAt = &enrolledAt
		}
	}
	return status, nil
}

// LockoutStatus returns the lockout read model for identityID.
func (s *ProfileService) LockoutStatus(ctx context.Context, identityID string) (domain.LockoutStatus, error) {
	identityID, err := normalizeIdentity(identityID)
	if err != nil {
		return domain.LockoutStatus{}, err
	}
	state, err := s.repos.States.Get(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		state = &domain.IdentitySecurityState{IdentityID: identityID}
	} else if err != nil {
		return domain.LockoutStatus{}, fmt.Errorf("load security state: %w", err)
	}
	return s.policy.Status(*state, s.now().UTC()), nil
}

// History returns the latest verification log rows of identityID.
func (s *ProfileService) History(ctx context.Context, identityID string, limit int) ([]domain.VerificationLog, error) {
	identityID, err := normalizeIdentity(identityID)
	if err != nil {
		return nil, err
	}
	return s.repos.Logs.ListByIdentity(ctx, identityID, limit)
}

// prepare validates the capture and derives its fingerprint and seal. Rejections are logged on entry.
func (s *ProfileService) prepare(ctx context.Context, req domain.EnrollmentRequest, entry *domain.VerificationLog) (domain.FeatureVector, string, string, error) {
	vector, err := domain.ParseFeatureVector(req.Vector)
	if err != nil {
		s.logRejected(ctx, *entry, domain.FailureMalformed)
		return vector, "", "", err
	}
	entry.Metadata["dimension"] = vector.Len()
	entry.Metadata["encoding_format"] = string(vector.Format())

	if req.QualityScore != nil && *req.QualityScore < s.opts.MinQuality {
		entry.Metadata["min_quality"] = s.opts.MinQuality
		s.logRejected(ctx, *entry, domain.FailureLowQuality)
		return vector, "", "", fmt.Errorf("%w: quality %.2f below %.2f", domain.ErrLowEnrollmentQuality, *req.QualityScore, s.opts.MinQuality)
	}

	if len(req.Confirmation) > 0 {
		confirmation, err := domain.ParseFeatureVector(req.Confirmation)
		if err != nil {
			s.logRejected(ctx, *entry, domain.FailureMalformed)
			return vector, "", "", err
		}
		res := s.scorer.Score(vector, confirmation)
		entry.Metadata["confirmation_confidence"] = res.Confidence
		if res.Truncated || res.Confidence < s.opts.ConfirmationThreshold {
			entry.Confidence = res.Confidence
			s.logRejected(ctx, *entry, domain.FailureLowQuality)
			return vector, "", "", fmt.Errorf("%w: confirmation capture scored %.3f", domain.ErrLowEnrollmentQuality, res.Confidence)
		}
	}

	sealed, err := s.sealer.Seal(vector)
	if err != nil {
		return vector, "", "", s.abort(ctx, *entry, fmt.Errorf("seal vector: %w", err))
	}
	return vector, s.sealer.Fingerprint(vector), sealed, nil
}

func (s *ProfileService) newLog(identityID string, attemptType domain.AttemptType, req domain.EnrollmentRequest, now time.Time) domain.VerificationLog {
	entry := logEntry(newVerificationID(), identityID, attemptType, "", now)
	entry.QualityScore = req.QualityScore
	entry.DeviceInfo = req.DeviceInfo
	entry.DeviceFingerprint = s.hasher.HashDevice(req.DeviceInfo)
	entry.NetworkOrigin = req.NetworkOrigin
	entry.Metadata = map[string]any{}
	return entry
}

func (s *ProfileService) logRejected(ctx context.Context, entry domain.VerificationLog, reason domain.FailureReason) {
	entry.Success = false
	entry.FailureReason = reason
	if err := s.tx(ctx, func(repos port.Repositories) error {
		return repos.Logs.Append(ctx, entry)
	}); err != nil {
		s.logger.Error("failed to record rejected enrollment", zap.String("identity_id", entry.IdentityID), zap.Error(err))
	}
}

// abort records an internal failure in its own transaction and wraps cause as ErrInternal.
func (s *ProfileService) abort(ctx context.Context, entry domain.VerificationLog, cause error) error {
	s.logger.Error("biometric enrollment aborted",
		zap.String("identity_id", entry.IdentityID),
		zap.String("attempt_type", string(entry.AttemptType)),
		zap.Error(cause),
	)
	s.logRejected(ctx, entry, domain.FailureInternal)
	return fmt.Errorf("%w: %v", domain.ErrInternal, cause)
}

func performer(performedBy, identityID string) string {
	if p := strings.TrimSpace(performedBy); p != "" {
		return p
	}
	return identityID
}
