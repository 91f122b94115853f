package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

func TestVerifySelfMatchSucceeds(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	profile := h.enroll(t, "identity-1", vector)

	result, err := h.verify("identity-1", vector, true)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if !result.Success || result.Confidence != 0.95 {
		t.Fatalf("expected exact match, got %+v", result)
	}
	if result.VerificationID == "" || result.DeviceFingerprint == "" {
		t.Fatalf("expected verification id and device fingerprint, got %+v", result)
	}

	stored := h.store.profiles["identity-1"]
	if stored.ID != profile.ID || stored.VerificationCount != 1 || stored.LastVerifiedAt == nil {
		t.Fatalf("expected verification counter to advance, got %+v", stored)
	}
	if len(h.events.completed) != 1 || !h.events.completed[0].Success {
		t.Fatalf("expected completion event, got %+v", h.events.completed)
	}
}

func TestVerifyDifferentVectorDoesNotMatch(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	h.enroll(t, "identity-1", sampleVector(1, 128))

	result, err := h.verify("identity-1", sampleVector(2, 128), true)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Success || result.Confidence >= 0.5 {
		t.Fatalf("expected mismatch, got %+v", result)
	}
	if result.FailureReason != domain.FailureNoMatch {
		t.Fatalf("expected %q, got %q", domain.FailureNoMatch, result.FailureReason)
	}
	if result.RemainingAttempts != 2 {
		t.Fatalf("expected two remaining attempts, got %d", result.RemainingAttempts)
	}
}

func TestVerifyRequiresLiveness(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)

	result, err := h.verify("identity-1", vector, false)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Success || result.Confidence != 0.95 {
		t.Fatalf("expected liveness failure with full confidence, got %+v", result)
	}
	if result.FailureReason != domain.FailureLiveness {
		t.Fatalf("expected %q, got %q", domain.FailureLiveness, result.FailureReason)
	}
	if h.store.states["identity-1"].Lockout.ConsecutiveFailures != 1 {
		t.Fatalf("expected liveness failure to count, got %+v", h.store.states["identity-1"].Lockout)
	}
}

func TestVerifyLocksAfterThreeFailures(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)
	wrong := sampleVector(9, 128)

	for i := 0; i < 2; i++ {
		if _, err := h.verify("identity-1", wrong, true); err != nil {
			t.Fatalf("attempt %d returned error: %v", i+1, err)
		}
	}
	third, err := h.verify("identity-1", wrong, true)
	if err != nil {
		t.Fatalf("third attempt returned error: %v", err)
	}
	if third.LockedUntil == nil || !third.LockedUntil.Equal(h.clock.Now().Add(15*time.Minute)) {
		t.Fatalf("expected lock for fifteen minutes, got %+v", third)
	}
	if len(h.events.locked) != 1 || h.metrics.lockouts != 1 {
		t.Fatalf("expected one lock event, got %d events and %d metrics", len(h.events.locked), h.metrics.lockouts)
	}

	h.clock.Advance(time.Minute)
	locked, err := h.verify("identity-1", vector, true)
	var lockedErr *domain.LockedError
	if !errors.As(err, &lockedErr) || !errors.Is(err, domain.ErrLocked) {
		t.Fatalf("expected LockedError, got %v", err)
	}
	if locked.Success || locked.FailureReason != domain.FailureAccountLocked {
		t.Fatalf("expected locked verdict, got %+v", locked)
	}
	if got := h.store.states["identity-1"].Lockout.ConsecutiveFailures; got != 3 {
		t.Fatalf("locked attempts must not move the counter, got %d", got)
	}

	h.clock.Advance(15 * time.Minute)
	unlocked, err := h.verify("identity-1", vector, true)
	if err != nil {
		t.Fatalf("Verify after lock expiry returned error: %v", err)
	}
	if !unlocked.Success {
		t.Fatalf("expected success after lock expiry, got %+v", unlocked)
	}
	if state := h.store.states["identity-1"].Lockout; state.ConsecutiveFailures != 0 || state.LockedUntil != nil {
		t.Fatalf("expected reset lockout state, got %+v", state)
	}
}

func TestVerifySuccessResetsFailureCounter(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)

	if _, err := h.verify("identity-1", sampleVector(3, 128), true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if _, err := h.verify("identity-1", vector, true); err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if got := h.store.states["identity-1"].Lockout.ConsecutiveFailures; got != 0 {
		t.Fatalf("expected counter reset, got %d", got)
	}
}

func TestVerifyRateLimitedOnEleventhAttempt(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)

	for i := 0; i < 10; i++ {
		if _, err := h.verify("identity-1", vector, true); err != nil {
			t.Fatalf("attempt %d returned error: %v", i+1, err)
		}
		h.clock.Advance(time.Second)
	}

	_, err := h.verify("identity-1", sampleVector(4, 128), true)
	var limited *domain.RateLimitError
	if !errors.As(err, &limited) || !errors.Is(err, domain.ErrRateLimitExceeded) {
		t.Fatalf("expected RateLimitError, got %v", err)
	}
	if limited.RetryAfter <= 0 || limited.RetryAfter > time.Minute {
		t.Fatalf("unexpected retry after %v", limited.RetryAfter)
	}
	if got := h.store.states["identity-1"].Lockout.ConsecutiveFailures; got != 0 {
		t.Fatalf("rate limited attempt must not count as failure, got %d", got)
	}
	if got := len(h.store.auditOf(domain.AuditRateLimited)); got != 1 {
		t.Fatalf("expected one rate_limited audit event, got %d", got)
	}
	if h.metrics.rateLimited != 1 {
		t.Fatalf("expected rate limit metric, got %d", h.metrics.rateLimited)
	}

	h.clock.Advance(time.Minute)
	if _, err := h.verify("identity-1", vector, true); err != nil {
		t.Fatalf("expected window to slide, got %v", err)
	}
}

func TestVerifyDimensionMismatchIsNoMatch(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)

	result, err := h.verify("identity-1", vector[:64], true)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result.Success || result.FailureReason != domain.FailureNoMatch {
		t.Fatalf("expected mismatch, got %+v", result)
	}
	logs := h.store.logsFor("identity-1")
	last := logs[len(logs)-1]
	if last.Metadata["dimension_mismatch"] != true {
		t.Fatalf("expected dimension mismatch to be flagged, got %+v", last.Metadata)
	}
}

func TestVerifyMalformedVectorIsLogged(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	h.enroll(t, "identity-1", sampleVector(1, 128))

	_, err := h.verify("identity-1", nil, true)
	if !errors.Is(err, domain.ErrMalformedVector) {
		t.Fatalf("expected ErrMalformedVector, got %v", err)
	}
	logs := h.store.logsFor("identity-1")
	if last := logs[len(logs)-1]; last.FailureReason != domain.FailureMalformed || last.AttemptType != domain.AttemptStart {
		t.Fatalf("expected malformed attempt log, got %+v", last)
	}
	if got := h.store.states["identity-1"].Lockout.ConsecutiveFailures; got != 0 {
		t.Fatalf("malformed input must not count as mismatch, got %d", got)
	}
}

func TestVerifyWithoutProfile(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())

	_, err := h.verify("identity-1", sampleVector(1, 128), true)
	if !errors.Is(err, domain.ErrNoActiveProfile) {
		t.Fatalf("expected ErrNoActiveProfile, got %v", err)
	}
	if logs := h.store.logsFor("identity-1"); len(logs) != 1 || logs[0].FailureReason != domain.FailureNoActiveProfile {
		t.Fatalf("expected one no-profile log, got %+v", logs)
	}
}

func TestVerifyRejectsUnknownAttemptType(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())

	_, err := h.engine.Verify(context.Background(), domain.VerificationRequest{
		IdentityID:  "identity-1",
		AttemptType: domain.AttemptRegistration,
		Vector:      sampleVector(1, 8),
	})
	if !errors.Is(err, domain.ErrInvalidAttemptType) {
		t.Fatalf("expected ErrInvalidAttemptType, got %v", err)
	}
	logs := h.store.logsFor("identity-1")
	if len(logs) != 1 {
		t.Fatalf("expected one log row for the rejected attempt, got %d", len(logs))
	}
	if logs[0].Success || logs[0].FailureReason != domain.FailureInvalidAttemptType || logs[0].AttemptType != domain.AttemptRegistration {
		t.Fatalf("unexpected log row %+v", logs[0])
	}
}

func TestVerifyInternalFailureRollsBack(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)
	before := len(h.store.logs)

	h.store.failLogAppends = 1
	result, err := h.verify("identity-1", sampleVector(2, 128), true)
	if !errors.Is(err, domain.ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}
	if result.FailureReason != domain.FailureInternal {
		t.Fatalf("expected internal failure reason, got %+v", result)
	}
	if got := h.store.states["identity-1"].Lockout.ConsecutiveFailures; got != 0 {
		t.Fatalf("expected rolled back counter, got %d", got)
	}
	if got := len(h.store.attempts["verify:identity-1"]); got != 0 {
		t.Fatalf("expected rolled back rate limit attempt, got %d", got)
	}
	logs := h.store.logs[before:]
	if len(logs) != 1 || logs[0].FailureReason != domain.FailureInternal {
		t.Fatalf("expected one internal error log, got %+v", logs)
	}
}

func TestVerifyConcurrentFailuresAreSerialized(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	h.enroll(t, "identity-1", sampleVector(1, 128))
	wrong := sampleVector(5, 128)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = h.verify("identity-1", wrong, true)
		}()
	}
	wg.Wait()

	state := h.store.states["identity-1"].Lockout
	if state.ConsecutiveFailures != 3 || state.LockedUntil == nil {
		t.Fatalf("expected three serialized failures and a lock, got %+v", state)
	}
}

func TestVerifyTracksDevicesAndHonoursBlock(t *testing.T) {
	cfg := DefaultPolicyConfig()
	cfg.RejectBlockedDevices = true
	h := newHarness(t, cfg)
	vector := sampleVector(1, 128)
	h.enroll(t, "identity-1", vector)

	result, err := h.verify("identity-1", vector, true)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	devices, err := h.devices.List(context.Background(), "identity-1")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(devices) != 1 || devices[0].RiskScore != domain.DeviceRiskNeutral || devices[0].Trusted {
		t.Fatalf("expected neutral first sighting, got %+v", devices)
	}

	if _, err := h.devices.Apply(context.Background(), "identity-1", result.DeviceFingerprint, DeviceActionBlock, "admin-1"); err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	blocked, err := h.verify("identity-1", vector, true)
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if blocked.Success || blocked.FailureReason != domain.FailureDeviceBlocked {
		t.Fatalf("expected blocked device rejection, got %+v", blocked)
	}
}

func TestCompareLogsTestAttempt(t *testing.T) {
	h := newHarness(t, DefaultPolicyConfig())
	a := sampleVector(1, 64)

	res, err := h.engine.Compare(context.Background(), "identity-1", a, a, nil)
	if err != nil {
		t.Fatalf("Compare returned error: %v", err)
	}
	if res.Confidence < 0.999 {
		t.Fatalf("expected identical samples to score ~1, got %v", res.Confidence)
	}
	logs := h.store.logsFor("identity-1")
	if len(logs) != 1 || logs[0].AttemptType != domain.AttemptTest || !logs[0].Success {
		t.Fatalf("expected one successful test log, got %+v", logs)
	}
	if _, ok := h.store.states["identity-1"]; ok {
		t.Fatal("compare must not touch policy state")
	}
}
