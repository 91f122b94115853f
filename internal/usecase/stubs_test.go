package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
	"github.com/arklim/workforce-biometric/internal/infra/security"
	"github.com/arklim/workforce-biometric/internal/repository"
)

var errInjected = errors.New("injected storage failure")

// memStore is an in-memory stand-in for the PostgreSQL unit of work. A transaction holds the store mutex
// and restores a snapshot when fn fails.
type memStore struct {
	mu             sync.Mutex
	profiles       map[string]domain.BiometricProfile
	states         map[string]domain.IdentitySecurityState
	logs           []domain.VerificationLog
	devices        map[string]domain.DeviceFingerprint
	audit          []domain.AuditEvent
	attempts       map[string][]time.Time
	failLogAppends int
}

func newMemStore() *memStore {
	return &memStore{
		profiles: make(map[string]domain.BiometricProfile),
		states:   make(map[string]domain.IdentitySecurityState),
		devices:  make(map[string]domain.DeviceFingerprint),
		attempts: make(map[string][]time.Time),
	}
}

func (s *memStore) repos() port.Repositories {
	return port.Repositories{
		Profiles:   memProfiles{s},
		States:     memStates{s},
		Logs:       memLogs{s},
		Devices:    memDevices{s},
		Audit:      memAudit{s},
		RateLimits: memRateLimits{s},
	}
}

func (s *memStore) Tx(_ context.Context, fn func(repos port.Repositories) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(s.repos()); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	profiles map[string]domain.BiometricProfile
	states   map[string]domain.IdentitySecurityState
	logs     []domain.VerificationLog
	devices  map[string]domain.DeviceFingerprint
	audit    []domain.AuditEvent
	attempts map[string][]time.Time
}

func (s *memStore) snapshot() memSnapshot {
	snap := memSnapshot{
		profiles: make(map[string]domain.BiometricProfile, len(s.profiles)),
		states:   make(map[string]domain.IdentitySecurityState, len(s.states)),
		logs:     append([]domain.VerificationLog(nil), s.logs...),
		devices:  make(map[string]domain.DeviceFingerprint, len(s.devices)),
		audit:    append([]domain.AuditEvent(nil), s.audit...),
		attempts: make(map[string][]time.Time, len(s.attempts)),
	}
	for k, v := range s.profiles {
		snap.profiles[k] = v
	}
	for k, v := range s.states {
		snap.states[k] = v
	}
	for k, v := range s.devices {
		snap.devices[k] = v
	}
	for k, v := range s.attempts {
		snap.attempts[k] = append([]time.Time(nil), v...)
	}
	return snap
}

func (s *memStore) restore(snap memSnapshot) {
	s.profiles = snap.profiles
	s.states = snap.states
	s.logs = snap.logs
	s.devices = snap.devices
	s.audit = snap.audit
	s.attempts = snap.attempts
}

func (s *memStore) logsFor(identityID string) []domain.VerificationLog {
	var out []domain.VerificationLog
	for _, l := range s.logs {
		if l.IdentityID == identityID {
			out = append(out, l)
		}
	}
	return out
}

func (s *memStore) auditOf(eventType domain.AuditEventType) []domain.AuditEvent {
	var out []domain.AuditEvent
	for _, e := range s.audit {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

type memProfiles struct{ s *memStore }

func (r memProfiles) GetByIdentity(_ context.Context, identityID string) (*domain.BiometricProfile, error) {
	p, ok := r.s.profiles[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r memProfiles) Create(_ context.Context, profile domain.BiometricProfile) error {
	if _, ok := r.s.profiles[profile.IdentityID]; ok {
		return errors.New("duplicate profile")
	}
	r.s.profiles[profile.IdentityID] = profile
	return nil
}

func (r memProfiles) Update(_ context.Context, profile domain.BiometricProfile) error {
	current, ok := r.s.profiles[profile.IdentityID]
	if !ok || current.ID != profile.ID {
		return repository.ErrNotFound
	}
	r.s.profiles[profile.IdentityID] = profile
	return nil
}

func (r memProfiles) RecordVerification(_ context.Context, profileID string, at time.Time) error {
	for k, p := range r.s.profiles {
		if p.ID == profileID && p.IsActive() {
			p.VerificationCount++
			p.LastVerifiedAt = &at
			r.s.profiles[k] = p
			return nil
		}
	}
	return repository.ErrNotFound
}

type memStates struct{ s *memStore }

func (r memStates) LockForUpdate(_ context.Context, identityID string, now time.Time) (*domain.IdentitySecurityState, error) {
	st, ok := r.s.states[identityID]
	if !ok {
		st = domain.IdentitySecurityState{IdentityID: identityID, UpdatedAt: now}
		r.s.states[identityID] = st
	}
	return &st, nil
}

func (r memStates) Get(_ context.Context, identityID string) (*domain.IdentitySecurityState, error) {
	st, ok := r.s.states[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (r memStates) Save(_ context.Context, state domain.IdentitySecurityState) error {
	r.s.states[state.IdentityID] = state
	return nil
}

type memLogs struct{ s *memStore }

func (r memLogs) Append(_ context.Context, entry domain.VerificationLog) error {
	if r.s.failLogAppends > 0 {
		r.s.failLogAppends--
		return errInjected
	}
	r.s.logs = append(r.s.logs, entry)
	return nil
}

func (r memLogs) ListByIdentity(_ context.Context, identityID string, limit int) ([]domain.VerificationLog, error) {
	logs := r.s.logsFor(identityID)
	sort.SliceStable(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (r memLogs) Statistics(_ context.Context, since, until time.Time) (domain.VerificationStatistics, error) {
	stats := domain.VerificationStatistics{
		WindowStart:   since,
		WindowEnd:     until,
		ByAttemptType: make(map[domain.AttemptType]domain.AttemptTypeStats),
	}
	sums := make(map[domain.AttemptType]float64)
	for _, l := range r.s.logs {
		if l.CreatedAt.Before(since) || l.CreatedAt.After(until) {
			continue
		}
		st := stats.ByAttemptType[l.AttemptType]
		st.Total++
		if l.Success {
			st.Successes++
		} else {
			st.Failures++
		}
		if l.LockoutTriggered {
			st.LockoutsTriggered++
		}
		sums[l.AttemptType] += l.Confidence
		st.AverageConfidence = sums[l.AttemptType] / float64(st.Total)
		stats.ByAttemptType[l.AttemptType] = st
	}
	stats.Finalize()
	return stats, nil
}

func (r memLogs) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	kept := r.s.logs[:0:0]
	var purged int64
	for _, l := range r.s.logs {
		if l.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, l)
	}
	r.s.logs = kept
	return purged, nil
}

type memDevices struct{ s *memStore }

func deviceKey(identityID, hash string) string { return identityID + "|" + hash }

func (r memDevices) Get(_ context.Context, identityID, deviceHash string) (*domain.DeviceFingerprint, error) {
	d, ok := r.s.devices[deviceKey(identityID, deviceHash)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &d, nil
}

func (r memDevices) Touch(_ context.Context, device domain.DeviceFingerprint) (domain.DeviceFingerprint, error) {
	key := deviceKey(device.IdentityID, device.DeviceHash)
	if existing, ok := r.s.devices[key]; ok {
		existing.LastSeen = device.LastSeen
		existing.DeviceInfo = device.DeviceInfo
		r.s.devices[key] = existing
		return existing, nil
	}
	r.s.devices[key] = device
	return device, nil
}

func (r memDevices) Save(_ context.Context, device domain.DeviceFingerprint) error {
	key := deviceKey(device.IdentityID, device.DeviceHash)
	if _, ok := r.s.devices[key]; !ok {
		return repository.ErrNotFound
	}
	r.s.devices[key] = device
	return nil
}

func (r memDevices) ListByIdentity(_ context.Context, identityID string) ([]domain.DeviceFingerprint, error) {
	var out []domain.DeviceFingerprint
	for _, d := range r.s.devices {
		if d.IdentityID == identityID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (r memDevices) ListByRisk(_ context.Context, minRisk, limit int) ([]domain.DeviceFingerprint, error) {
	var out []domain.DeviceFingerprint
	for _, d := range r.s.devices {
		if d.RiskScore >= minRisk {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RiskScore > out[j].RiskScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memAudit struct{ s *memStore }

func (r memAudit) Append(_ context.Context, event domain.AuditEvent) error {
	r.s.audit = append(r.s.audit, event)
	return nil
}

func (r memAudit) CountByType(_ context.Context, eventType domain.AuditEventType, since, until time.Time) (int, error) {
	count := 0
	for _, e := range r.s.audit {
		if e.EventType == eventType && !e.CreatedAt.Before(since) && !e.CreatedAt.After(until) {
			count++
		}
	}
	return count, nil
}

type memRateLimits struct{ s *memStore }

func (r memRateLimits) TrimWindow(_ context.Context, identifier string, window time.Duration, reference time.Time) error {
	threshold := reference.Add(-window)
	var kept []time.Time
	for _, at := range r.s.attempts[identifier] {
		if at.After(threshold) {
			kept = append(kept, at)
		}
	}
	r.s.attempts[identifier] = kept
	return nil
}

func (r memRateLimits) CountAttempts(_ context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	threshold := reference.Add(-window)
	count := 0
	for _, at := range r.s.attempts[identifier] {
		if at.After(threshold) && !at.After(reference) {
			count++
		}
	}
	return count, nil
}

func (r memRateLimits) RecordAttempt(_ context.Context, identifier string, at time.Time) error {
	r.s.attempts[identifier] = append(r.s.attempts[identifier], at)
	return nil
}

func (r memRateLimits) OldestAttempt(_ context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	threshold := reference.Add(-window)
	var oldest time.Time
	found := false
	for _, at := range r.s.attempts[identifier] {
		if at.After(threshold) && (!found || at.Before(oldest)) {
			oldest = at
			found = true
		}
	}
	return oldest, found, nil
}

func (r memRateLimits) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var purged int64
	for k, list := range r.s.attempts {
		var kept []time.Time
		for _, at := range list {
			if at.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, at)
		}
		r.s.attempts[k] = kept
	}
	return purged, nil
}

type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type stubEventPublisher struct {
	mu          sync.Mutex
	enrolled    []domain.ProfileEnrolledEvent
	updated     []domain.ProfileUpdatedEvent
	deactivated []domain.ProfileDeactivatedEvent
	completed   []domain.VerificationCompletedEvent
	locked      []domain.IdentityLockedEvent
	devices     []domain.DeviceTrustChangedEvent
}

func (p *stubEventPublisher) PublishProfileEnrolled(_ context.Context, e domain.ProfileEnrolledEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enrolled = append(p.enrolled, e)
	return nil
}

func (p *stubEventPublisher) PublishProfileUpdated(_ context.Context, e domain.ProfileUpdatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, e)
	return nil
}

func (p *stubEventPublisher) PublishProfileDeactivated(_ context.Context, e domain.ProfileDeactivatedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deactivated = append(p.deactivated, e)
	return nil
}

func (p *stubEventPublisher) PublishVerificationCompleted(_ context.Context, e domain.VerificationCompletedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completed = append(p.completed, e)
	return nil
}

func (p *stubEventPublisher) PublishIdentityLocked(_ context.Context, e domain.IdentityLockedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locked = append(p.locked, e)
	return nil
}

func (p *stubEventPublisher) PublishDeviceTrustChanged(_ context.Context, e domain.DeviceTrustChangedEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.devices = append(p.devices, e)
	return nil
}

type stubMetrics struct {
	mu            sync.Mutex
	verifications int
	lockouts      int
	rateLimited   int
	enrollments   map[string]int
}

func (m *stubMetrics) ObserveVerification(domain.AttemptType, bool, float64, time.Duration) {
	m.mu.Lock()
	m.verifications++
	m.mu.Unlock()
}

func (m *stubMetrics) IncLockout() {
	m.mu.Lock()
	m.lockouts++
	m.mu.Unlock()
}

func (m *stubMetrics) IncRateLimited() {
	m.mu.Lock()
	m.rateLimited++
	m.mu.Unlock()
}

func (m *stubMetrics) IncEnrollment(op string) {
	m.mu.Lock()
	if m.enrollments == nil {
		m.enrollments = make(map[string]int)
	}
	m.enrollments[op]++
	m.mu.Unlock()
}

type harness struct {
	store    *memStore
	clock    *stubClock
	events   *stubEventPublisher
	metrics  *stubMetrics
	policy   *SecurityPolicy
	profiles *ProfileService
	engine   *VerificationEngine
	devices  *DeviceTrustService
	reports  *ComplianceService
}

func newHarness(t *testing.T, cfg PolicyConfig) *harness {
	t.Helper()

	sealer, err := security.NewVectorSealer(security.Argon2Config{
		Memory:      8 * 1024,
		Iterations:  1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}, "pepper-for-unit-tests")
	if err != nil {
		t.Fatalf("NewVectorSealer returned error: %v", err)
	}

	h := &harness{
		store:   newMemStore(),
		clock:   newStubClock(),
		events:  &stubEventPublisher{},
		metrics: &stubMetrics{},
		policy:  NewSecurityPolicy(cfg),
	}
	repos := h.store.repos()
	hasher := security.DeviceHasher{}

	h.profiles = NewProfileService(repos, h.store.Tx, h.policy, sealer, hasher, h.events, ProfileOptions{MinQuality: 0.3}).
		WithNow(h.clock.Now).
		WithMetrics(h.metrics)
	h.engine = NewVerificationEngine(h.store.Tx, h.policy, sealer, hasher, h.events, domain.DefaultMatchThresholds()).
		WithNow(h.clock.Now).
		WithMetrics(h.metrics)
	h.devices = NewDeviceTrustService(repos, h.store.Tx, h.events).WithNow(h.clock.Now)
	h.reports = NewComplianceService(repos, h.store.Tx, ComplianceOptions{}).WithNow(h.clock.Now)
	return h
}

func sampleVector(seed, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64((i*31+seed*17)%97)/97.0 - 0.5
	}
	return out
}

func (h *harness) enroll(t *testing.T, identityID string, vector []float64) *domain.BiometricProfile {
	t.Helper()
	profile, err := h.profiles.Enroll(context.Background(), domain.EnrollmentRequest{
		IdentityID: identityID,
		Vector:     vector,
		DeviceInfo: domain.DeviceInfo{"model": "kiosk-1"},
	})
	if err != nil {
		t.Fatalf("Enroll returned error: %v", err)
	}
	return profile
}

func (h *harness) verify(identityID string, vector []float64, liveness bool) (domain.VerificationResult, error) {
	return h.engine.Verify(context.Background(), domain.VerificationRequest{
		IdentityID:       identityID,
		AttemptType:      domain.AttemptStart,
		Vector:           vector,
		LivenessDetected: liveness,
		DeviceInfo:       domain.DeviceInfo{"model": "kiosk-1"},
		NetworkOrigin:    "10.0.0.4",
	})
}
