package usecase

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/core/similarity"
)

// VerificationEngine verifies live captures against enrolled profiles.
// Every call takes the identity's security-state row lock first, so attempts for one identity are serialized
// and the rate limit, lockout, profile counters and audit rows commit together.
type VerificationEngine struct {
	tx         BiometricTxFunc
	policy     *SecurityPolicy
	sealer     port.VectorSealer
	hasher     port.DeviceHasher
	scorer     *similarity.Scorer
	events     port.EventPublisher
	thresholds domain.MatchThresholds
	logger     *zap.Logger
	now        func() time.Time
	metrics    BiometricMetrics
}

// NewVerificationEngine constructs the engine.
func NewVerificationEngine(tx BiometricTxFunc, policy *SecurityPolicy, sealer port.VectorSealer, hasher port.DeviceHasher, events port.EventPublisher, thresholds domain.MatchThresholds) *VerificationEngine {
	if thresholds == (domain.MatchThresholds{}) {
		thresholds = domain.DefaultMatchThresholds()
	}
	return &VerificationEngine{
		tx:         tx,
		policy:     policy,
		sealer:     sealer,
		hasher:     hasher,
		scorer:     similarity.Default(),
		events:     events,
		thresholds: thresholds,
		logger:     zap.NewNop(),
		now:        time.Now,
		metrics:    nopMetrics{},
	}
}

// WithLogger attaches a structured logger.
func (e *VerificationEngine) WithLogger(logger *zap.Logger) *VerificationEngine {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithNow overrides the clock, primarily for deterministic testing.
func (e *VerificationEngine) WithNow(now func() time.Time) *VerificationEngine {
	if now != nil {
		e.now = now
	}
	return e
}

// WithMetrics wires telemetry observers.
func (e *VerificationEngine) WithMetrics(metrics BiometricMetrics) *VerificationEngine {
	if metrics != nil {
		e.metrics = metrics
	}
	return e
}

// WithScorer overrides the similarity scorer used for sample comparison.
func (e *VerificationEngine) WithScorer(scorer *similarity.Scorer) *VerificationEngine {
	if scorer != nil {
		e.scorer = scorer
	}
	return e
}

// Verify runs one verification attempt. A non-matching capture is a verdict, not an error:
// the result carries Success=false and the failure reason. Errors are returned for rate limiting,
// lockout, malformed vectors, missing profiles and internal failures.
func (e *VerificationEngine) Verify(ctx context.Context, req domain.VerificationRequest) (result domain.VerificationResult, err error) {
	ctx, span := startSpan(ctx, "biometric.verify", req.IdentityID)
	defer func() { endSpan(span, err) }()

	identityID, err := normalizeIdentity(req.IdentityID)
	if err != nil {
		return result, err
	}
	attemptType := req.AttemptType
	if attemptType == "" {
		attemptType = domain.AttemptStart
	}

	started := e.now()
	now := started.UTC()
	deviceHash := e.hasher.HashDevice(req.DeviceInfo)
	result = domain.VerificationResult{
		VerificationID:    newVerificationID(),
		LivenessDetected:  req.LivenessDetected,
		LivenessScore:     req.LivenessScore,
		DeviceFingerprint: deviceHash,
	}

	if !attemptType.IsVerification() {
		e.recordFailure(ctx, result.VerificationID, identityID, attemptType, req, deviceHash, domain.FailureInvalidAttemptType, now)
		result.FailureReason = domain.FailureInvalidAttemptType
		return result, fmt.Errorf("%w: %q", domain.ErrInvalidAttemptType, attemptType)
	}

	var (
		verdict   error
		completed bool
		locked    *domain.IdentityLockedEvent
	)

	txErr := e.tx(ctx, func(repos port.Repositories) error {
		state, err := repos.States.LockForUpdate(ctx, identityID, now)
		if err != nil {
			return fmt.Errorf("lock security state: %w", err)
		}

		entry := e.newLog(result.VerificationID, identityID, attemptType, req, deviceHash, now)

		if err := e.policy.CheckRateLimit(ctx, repos.RateLimits, identityID, now); err != nil {
			var limited *domain.RateLimitError
			if !errors.As(err, &limited) {
				return err
			}
			verdict = err
			return repos.Audit.Append(ctx, domain.AuditEvent{
				ID:          newRowID(),
				IdentityID:  identityID,
				EventType:   domain.AuditRateLimited,
				PerformedBy: identityID,
				Details: map[string]any{
					"verification_id":     result.VerificationID,
					"attempt_type":        string(attemptType),
					"retry_after_seconds": int(limited.RetryAfter.Seconds()),
					"network_origin":      req.NetworkOrigin,
				},
				CreatedAt: now,
			})
		}

		if err := e.policy.CheckLockout(state, now); err != nil {
			verdict = err
			result.LockedUntil = state.Lockout.LockedUntil
			result.FailureReason = domain.FailureAccountLocked
			entry.FailureReason = domain.FailureAccountLocked
			return repos.Logs.Append(ctx, entry)
		}

		vector, parseErr := domain.ParseFeatureVector(req.Vector)
		if parseErr != nil {
			verdict = parseErr
			return e.reject(ctx, repos, state, &entry, &result, domain.FailureMalformed)
		}
		entry.Metadata["presented_dimension"] = vector.Len()

		profile, err := lookupProfile(ctx, repos.Profiles, identityID)
		if err != nil {
			return fmt.Errorf("load profile: %w", err)
		}
		if profile == nil || !profile.IsActive() {
			verdict = domain.ErrNoActiveProfile
			return e.reject(ctx, repos, state, &entry, &result, domain.FailureNoActiveProfile)
		}

		device, err := e.policy.ObserveDevice(ctx, repos.Devices, identityID, deviceHash, req.DeviceInfo, now)
		if err != nil {
			return err
		}
		if e.policy.DeviceRejected(device) {
			completed = true
			return e.reject(ctx, repos, state, &entry, &result, domain.FailureDeviceBlocked)
		}

		confidence, err := e.match(vector, profile, entry.Metadata)
		if err != nil {
			return err
		}
		success, reason := e.thresholds.Classify(confidence, req.LivenessDetected)
		triggered := e.policy.RecordOutcome(state, success, now)

		if err := repos.States.Save(ctx, *state); err != nil {
			return fmt.Errorf("save security state: %w", err)
		}
		if success {
			if err := repos.Profiles.RecordVerification(ctx, profile.ID, now); err != nil {
				return fmt.Errorf("record verification: %w", err)
			}
		}

		entry.Success = success
		entry.Confidence = confidence
		entry.FailureReason = reason
		entry.LockoutTriggered = triggered
		if err := repos.Logs.Append(ctx, entry); err != nil {
			return fmt.Errorf("append verification log: %w", err)
		}

		result.Success = success
		result.Confidence = confidence
		result.FailureReason = reason
		result.RemainingAttempts = state.Lockout.RemainingAttempts(e.policy.Config().Lockout)
		if triggered {
			result.LockedUntil = state.Lockout.LockedUntil
			locked = &domain.IdentityLockedEvent{
				EventID:             newRowID(),
				IdentityID:          identityID,
				ConsecutiveFailures: state.Lockout.ConsecutiveFailures,
				LockedAt:            now,
				LockedUntil:         *state.Lockout.LockedUntil,
			}
		}
		completed = true
		return nil
	})
	if txErr != nil {
		e.recordFailure(ctx, result.VerificationID, identityID, attemptType, req, deviceHash, domain.FailureInternal, now)
		e.logger.Error("biometric verification aborted",
			zap.String("identity_id", identityID),
			zap.String("verification_id", result.VerificationID),
			zap.Error(txErr),
		)
		return domain.VerificationResult{VerificationID: result.VerificationID, FailureReason: domain.FailureInternal}, fmt.Errorf("%w: %v", domain.ErrInternal, txErr)
	}

	var limited *domain.RateLimitError
	if errors.As(verdict, &limited) {
		e.metrics.IncRateLimited()
		e.logger.Warn("biometric verification rate limited",
			zap.String("identity_id", identityID),
			zap.Duration("retry_after", limited.RetryAfter),
		)
		return result, verdict
	}

	e.metrics.ObserveVerification(attemptType, result.Success, result.Confidence, e.now().Sub(started))
	e.logger.Info("biometric verification completed",
		zap.String("identity_id", identityID),
		zap.String("verification_id", result.VerificationID),
		zap.String("attempt_type", string(attemptType)),
		zap.Bool("success", result.Success),
		zap.Float64("confidence", result.Confidence),
		zap.String("failure_reason", string(result.FailureReason)),
	)

	if completed {
		e.publishCompleted(ctx, identityID, attemptType, result, now)
	}
	if locked != nil {
		e.metrics.IncLockout()
		e.logger.Warn("identity locked after consecutive biometric failures",
			zap.String("identity_id", identityID),
			zap.Time("locked_until", locked.LockedUntil),
		)
		if e.events != nil {
			if err := e.events.PublishIdentityLocked(ctx, *locked); err != nil {
				e.logger.Warn("failed to publish identity locked event", zap.String("identity_id", identityID), zap.Error(err))
			}
		}
	}

	return result, verdict
}

// Compare scores two captures of the same identity without touching policy state and logs a test attempt.
func (e *VerificationEngine) Compare(ctx context.Context, identityID string, reference, probe []float64, info domain.DeviceInfo) (res similarity.Result, err error) {
	ctx, span := startSpan(ctx, "biometric.compare", identityID)
	defer func() { endSpan(span, err) }()

	identityID, err = normalizeIdentity(identityID)
	if err != nil {
		return res, err
	}
	now := e.now().UTC()
	entry := e.newLog(newVerificationID(), identityID, domain.AttemptTest, domain.VerificationRequest{DeviceInfo: info}, e.hasher.HashDevice(info), now)

	refVector, refErr := domain.ParseFeatureVector(reference)
	probeVector, probeErr := domain.ParseFeatureVector(probe)
	parseErr := errors.Join(refErr, probeErr)
	if parseErr == nil {
		res = e.scorer.Score(refVector, probeVector)
		entry.Confidence = res.Confidence
		entry.Success = res.Confidence >= e.thresholds.Confidence
		entry.Metadata["truncated"] = res.Truncated
		entry.Metadata["compared_dimensions"] = res.ComparedDimensions
		if !entry.Success {
			_, entry.FailureReason = e.thresholds.Classify(res.Confidence, true)
		}
	} else {
		entry.FailureReason = domain.FailureMalformed
	}

	if err := e.tx(ctx, func(repos port.Repositories) error {
		return repos.Logs.Append(ctx, entry)
	}); err != nil {
		return similarity.Result{}, fmt.Errorf("%w: %v", domain.ErrInternal, err)
	}
	if parseErr != nil {
		return res, parseErr
	}
	return res, nil
}

func (e *VerificationEngine) newLog(verificationID, identityID string, attemptType domain.AttemptType, req domain.VerificationRequest, deviceHash string, now time.Time) domain.VerificationLog {
	entry := logEntry(verificationID, identityID, attemptType, "", now)
	entry.SessionRef = req.SessionRef
	entry.LivenessDetected = req.LivenessDetected
	entry.LivenessScore = req.LivenessScore
	entry.QualityScore = req.QualityScore
	entry.LightingCondition = req.LightingCondition
	entry.DeviceFingerprint = deviceHash
	entry.DeviceInfo = req.DeviceInfo
	entry.NetworkOrigin = req.NetworkOrigin
	entry.Metadata = map[string]any{}
	return entry
}

// reject records a failed attempt that never reached comparison. The lockout counter is untouched.
func (e *VerificationEngine) reject(ctx context.Context, repos port.Repositories, state *domain.IdentitySecurityState, entry *domain.VerificationLog, result *domain.VerificationResult, reason domain.FailureReason) error {
	entry.FailureReason = reason
	result.FailureReason = reason
	result.RemainingAttempts = state.Lockout.RemainingAttempts(e.policy.Config().Lockout)
	if err := repos.States.Save(ctx, *state); err != nil {
		return fmt.Errorf("save security state: %w", err)
	}
	if err := repos.Logs.Append(ctx, *entry); err != nil {
		return fmt.Errorf("append verification log: %w", err)
	}
	return nil
}

// match checks the presented vector against the stored fingerprint and seal.
// A confirmed seal yields the exact-match confidence; anything else scores zero.
func (e *VerificationEngine) match(vector domain.FeatureVector, profile *domain.BiometricProfile, meta map[string]any) (float64, error) {
	meta["profile_id"] = profile.ID
	meta["encoding_format"] = string(vector.Format())
	if vector.Len() != profile.Dimension {
		meta["dimension_mismatch"] = true
		meta["stored_dimension"] = profile.Dimension
	}

	fingerprint := e.sealer.Fingerprint(vector)
	if subtle.ConstantTimeCompare([]byte(fingerprint), []byte(profile.EncodingFingerprint)) != 1 {
		meta["fingerprint_match"] = false
		return 0, nil
	}
	meta["fingerprint_match"] = true

	confirmed, err := e.sealer.Confirm(vector, profile.SealedEncoding)
	if err != nil {
		return 0, fmt.Errorf("confirm seal: %w", err)
	}
	meta["seal_confirmed"] = confirmed
	if !confirmed {
		meta["seal_mismatch"] = true
		e.logger.Warn("fingerprint matched but seal did not confirm", zap.String("profile_id", profile.ID))
		return 0, nil
	}
	return e.thresholds.ExactMatch, nil
}

// recordFailure appends a standalone failed log row for attempts that never ran the policy checks.
func (e *VerificationEngine) recordFailure(ctx context.Context, verificationID, identityID string, attemptType domain.AttemptType, req domain.VerificationRequest, deviceHash string, reason domain.FailureReason, now time.Time) {
	entry := e.newLog(verificationID, identityID, attemptType, req, deviceHash, now)
	entry.FailureReason = reason
	if err := e.tx(ctx, func(repos port.Repositories) error {
		return repos.Logs.Append(ctx, entry)
	}); err != nil {
		e.logger.Error("failed to record rejected verification",
			zap.String("identity_id", identityID),
			zap.String("failure_reason", string(reason)),
			zap.Error(err),
		)
	}
}

func (e *VerificationEngine) publishCompleted(ctx context.Context, identityID string, attemptType domain.AttemptType, result domain.VerificationResult, now time.Time) {
	if e.events == nil {
		return
	}
	event := domain.VerificationCompletedEvent{
		EventID:        newRowID(),
		VerificationID: result.VerificationID,
		IdentityID:     identityID,
		AttemptType:    attemptType,
		Success:        result.Success,
		Confidence:     result.Confidence,
		FailureReason:  result.FailureReason,
		CompletedAt:    now,
	}
	if err := e.events.PublishVerificationCompleted(ctx, event); err != nil {
		e.logger.Warn("failed to publish verification completed event", zap.String("identity_id", identityID), zap.Error(err))
	}
}
