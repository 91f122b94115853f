package telemetry

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/arklim/workforce-biometric/internal/core/domain"
)

// BiometricMetrics exposes Prometheus collectors for engine outcomes.
type BiometricMetrics struct {
	verifications *prometheus.CounterVec
	confidence    *prometheus.HistogramVec
	duration      *prometheus.HistogramVec
	lockouts      prometheus.Counter
	rateLimited   prometheus.Counter
	enrollments   *prometheus.CounterVec
}

// NewBiometricMetrics registers the engine collectors with reg, reusing collectors that are already registered.
func NewBiometricMetrics(reg prometheus.Registerer) (*BiometricMetrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	verifications, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biometric",
		Name:      "verifications_total",
		Help:      "Verification attempts partitioned by attempt type and outcome.",
	}, []string{"attempt_type", "outcome"}))
	if err != nil {
		return nil, err
	}

	confidence, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "biometric",
		Name:      "verification_confidence",
		Help:      "Distribution of verification confidence scores.",
		Buckets:   []float64{0.1, 0.25, 0.5, 0.6, 0.7, 0.8, 0.85, 0.9, 0.95, 1},
	}, []string{"attempt_type"}))
	if err != nil {
		return nil, err
	}

	duration, err := register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "biometric",
		Name:      "verification_duration_seconds",
		Help:      "Latency of verification attempts including sealing and persistence.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"attempt_type"}))
	if err != nil {
		return nil, err
	}

	lockouts, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "biometric",
		Name:      "lockouts_total",
		Help:      "Identities locked after consecutive failed verifications.",
	}))
	if err != nil {
		return nil, err
	}

	rateLimited, err := register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "biometric",
		Name:      "rate_limited_total",
		Help:      "Verification attempts rejected by the sliding-window rate limit.",
	}))
	if err != nil {
		return nil, err
	}

	enrollments, err := register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "biometric",
		Name:      "profile_operations_total",
		Help:      "Successful profile lifecycle operations partitioned by operation.",
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}

	return &BiometricMetrics{
		verifications: verifications,
		confidence:    confidence,
		duration:      duration,
		lockouts:      lockouts,
		rateLimited:   rateLimited,
		enrollments:   enrollments,
	}, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, collector C) (C, error) {
	if err := reg.Register(collector); err != nil {
		already, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(C)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}
	return collector, nil
}

func (m *BiometricMetrics) ObserveVerification(attemptType domain.AttemptType, success bool, confidence float64, duration time.Duration) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	m.verifications.WithLabelValues(string(attemptType), outcome).Inc()
	m.confidence.WithLabelValues(string(attemptType)).Observe(confidence)
	m.duration.WithLabelValues(string(attemptType)).Observe(duration.Seconds())
}

func (m *BiometricMetrics) IncLockout() {
	m.lockouts.Inc()
}

func (m *BiometricMetrics) IncRateLimited() {
	m.rateLimited.Inc()
}

func (m *BiometricMetrics) IncEnrollment(operation string) {
	m.enrollments.WithLabelValues(operation).Inc()
}
