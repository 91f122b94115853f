package domain

import "time"

// AttemptTypeStats aggregates verification logs of a single attempt type.
type AttemptTypeStats struct {
	Total             int
	Successes         int
	Failures          int
	AverageConfidence float64
	LockoutsTriggered int
}

// VerificationStatistics summarises the verification log over a window.
type VerificationStatistics struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	Total             int
	Successes         int
	Failures          int
	SuccessRate       float64
	AverageConfidence float64
	LockoutsTriggered int
	RateLimited       int
	ByAttemptType     map[AttemptType]AttemptTypeStats
}

// Finalize derives the totals from the per-type aggregates.
func (s *VerificationStatistics) Finalize() {
	s.Total, s.Successes, s.Failures, s.LockoutsTriggered = 0, 0, 0, 0
	var weighted float64
	for _, st := range s.ByAttemptType {
		s.Total += st.Total
		s.Successes += st.Successes
		s.Failures += st.Failures
		s.LockoutsTriggered += st.LockoutsTriggered
		weighted += st.AverageConfidence * float64(st.Total)
	}
	s.SuccessRate, s.AverageConfidence = 0, 0
	if s.Total > 0 {
		s.SuccessRate = float64(s.Successes) / float64(s.Total)
		s.AverageConfidence = weighted / float64(s.Total)
	}
}
