package domain

import "time"

// LockoutPolicy configures the consecutive-failure lockout.
type LockoutPolicy struct {
	MaxAttempts int
	Duration    time.Duration
}

// DefaultLockoutPolicy locks after three consecutive failures for fifteen minutes.
func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{MaxAttempts: 3, Duration: 15 * time.Minute}
}

// LockoutPhase names the state of the lockout machine.
type LockoutPhase string

const (
	LockoutPhaseUnlocked LockoutPhase = "unlocked"
	LockoutPhaseLocked   LockoutPhase = "locked"
)

// LockoutState tracks consecutive verification failures for one identity.
// LockedUntil is set only when the failure that produced it reached the policy threshold.
type LockoutState struct {
	ConsecutiveFailures int
	LockedUntil         *time.Time
}

// Phase reports the phase at now.
func (s LockoutState) Phase(now time.Time) LockoutPhase {
	if s.IsLocked(now) {
		return LockoutPhaseLocked
	}
	return LockoutPhaseUnlocked
}

// IsLocked reports whether the lock is still in force at now.
func (s LockoutState) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// Normalize clears an expired lock together with its failure count.
func (s LockoutState) Normalize(now time.Time) LockoutState {
	if s.LockedUntil != nil && !now.Before(*s.LockedUntil) {
		return LockoutState{}
	}
	return s
}

// RemainingAttempts returns how many failures are left before a lock.
func (s LockoutState) RemainingAttempts(policy LockoutPolicy) int {
	left := policy.MaxAttempts - s.ConsecutiveFailures
	if left < 0 {
		return 0
	}
	return left
}

// RecordFailure applies a failed verification. The second result reports whether it triggered a lock.
func (s LockoutState) RecordFailure(now time.Time, policy LockoutPolicy) (LockoutState, bool) {
	next := s.Normalize(now)
	if next.IsLocked(now) {
		return next, false
	}
	next.ConsecutiveFailures++
	if policy.MaxAttempts > 0 && next.ConsecutiveFailures >= policy.MaxAttempts {
		until := now.Add(policy.Duration)
		next.LockedUntil = &until
		return next, true
	}
	return next, false
}

// RecordSuccess resets the machine.
func (s LockoutState) RecordSuccess() LockoutState {
	return LockoutState{}
}
