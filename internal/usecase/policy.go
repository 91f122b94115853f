package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
)

// PolicyConfig configures the security policy controller.
type PolicyConfig struct {
	RateLimitWindow      time.Duration
	RateLimitMaxAttempts int
	Lockout              domain.LockoutPolicy
	RejectBlockedDevices bool
}

// DefaultPolicyConfig returns ten attempts per minute and the default lockout.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		RateLimitWindow:      time.Minute,
		RateLimitMaxAttempts: 10,
		Lockout:              domain.DefaultLockoutPolicy(),
	}
}

// SecurityPolicy enforces the verification rate limit, the lockout machine and device tracking.
// It holds no state of its own; every decision reads and writes the stores it is handed.
type SecurityPolicy struct {
	cfg PolicyConfig
}

// NewSecurityPolicy constructs a policy controller, filling unset limits with defaults.
func NewSecurityPolicy(cfg PolicyConfig) *SecurityPolicy {
	def := DefaultPolicyConfig()
	if cfg.RateLimitWindow <= 0 {
		cfg.RateLimitWindow = def.RateLimitWindow
	}
	if cfg.RateLimitMaxAttempts <= 0 {
		cfg.RateLimitMaxAttempts = def.RateLimitMaxAttempts
	}
	if cfg.Lockout.MaxAttempts <= 0 {
		cfg.Lockout.MaxAttempts = def.Lockout.MaxAttempts
	}
	if cfg.Lockout.Duration <= 0 {
		cfg.Lockout.Duration = def.Lockout.Duration
	}
	return &SecurityPolicy{cfg: cfg}
}

// Config returns the effective configuration.
func (p *SecurityPolicy) Config() PolicyConfig {
	return p.cfg
}

func rateLimitKey(identityID string) string {
	return "verify:" + identityID
}

// CheckRateLimit admits and records one attempt, or returns a *domain.RateLimitError.
func (p *SecurityPolicy) CheckRateLimit(ctx context.Context, store port.RateLimitStore, identityID string, now time.Time) error {
	key := rateLimitKey(identityID)
	window := p.cfg.RateLimitWindow

	if err := store.TrimWindow(ctx, key, window, now); err != nil {
		return fmt.Errorf("trim rate limit window: %w", err)
	}
	count, err := store.CountAttempts(ctx, key, window, now)
	if err != nil {
		return fmt.Errorf("count rate limit attempts: %w", err)
	}
	if count >= p.cfg.RateLimitMaxAttempts {
		retryAfter := window
		oldest, ok, err := store.OldestAttempt(ctx, key, window, now)
		if err != nil {
			return fmt.Errorf("oldest rate limit attempt: %w", err)
		}
		if ok {
			retryAfter = oldest.Add(window).Sub(now)
		}
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return &domain.RateLimitError{RetryAfter: retryAfter}
	}

	if err := store.RecordAttempt(ctx, key, now); err != nil {
		return fmt.Errorf("record rate limit attempt: %w", err)
	}
	return nil
}

// CheckLockout clears an expired lock on state and reports an active one as *domain.LockedError.
func (p *SecurityPolicy) CheckLockout(state *domain.IdentitySecurityState, now time.Time) error {
	state.Lockout = state.Lockout.Normalize(now)
	if state.Lockout.IsLocked(now) {
		return &domain.LockedError{Until: *state.Lockout.LockedUntil}
	}
	return nil
}

// RecordOutcome advances the lockout machine. It reports whether the failure triggered a lock.
func (p *SecurityPolicy) RecordOutcome(state *domain.IdentitySecurityState, success bool, now time.Time) bool {
	state.UpdatedAt = now
	if success {
		state.Lockout = state.Lockout.RecordSuccess()
		return false
	}
	next, triggered := state.Lockout.RecordFailure(now, p.cfg.Lockout)
	state.Lockout = next
	return triggered
}

// Status projects state into the read model.
func (p *SecurityPolicy) Status(state domain.IdentitySecurityState, now time.Time) domain.LockoutStatus {
	lockout := state.Lockout.Normalize(now)
	return domain.LockoutStatus{
		IdentityID:          state.IdentityID,
		Phase:               lockout.Phase(now),
		ConsecutiveFailures: lockout.ConsecutiveFailures,
		RemainingAttempts:   lockout.RemainingAttempts(p.cfg.Lockout),
		LockedUntil:         lockout.LockedUntil,
	}
}

// ObserveDevice records a sighting of hash for identityID. An empty hash is not tracked.
func (p *SecurityPolicy) ObserveDevice(ctx context.Context, devices port.DeviceRepository, identityID, hash string, info domain.DeviceInfo, now time.Time) (*domain.DeviceFingerprint, error) {
	if hash == "" {
		return nil, nil
	}
	stored, err := devices.Touch(ctx, domain.NewDeviceFingerprint(identityID, hash, info, now))
	if err != nil {
		return nil, fmt.Errorf("observe device: %w", err)
	}
	return &stored, nil
}

// DeviceRejected reports whether policy refuses captures from device.
func (p *SecurityPolicy) DeviceRejected(device *domain.DeviceFingerprint) bool {
	return p.cfg.RejectBlockedDevices && device != nil && device.Blocked
}

