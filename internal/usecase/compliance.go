package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/core/domain"
	"github.com/arklim/workforce-biometric/internal/core/port"
)

// ComplianceOptions configures reporting and retention.
type ComplianceOptions struct {
	VerificationLogRetention time.Duration
	RateLimitRetention       time.Duration
}

// RetentionReport summarises one retention run.
type RetentionReport struct {
	Cutoff            time.Time
	VerificationLogs  int64
	RateLimitAttempts int64
}

// ComplianceService produces audit reports and enforces log retention.
type ComplianceService struct {
	repos  port.Repositories
	tx     BiometricTxFunc
	opts   ComplianceOptions
	logger *zap.Logger
	now    func() time.Time
}

// NewComplianceService constructs the service.
func NewComplianceService(repos port.Repositories, tx BiometricTxFunc, opts ComplianceOptions) *ComplianceService {
	if opts.VerificationLogRetention <= 0 {
		opts.VerificationLogRetention = 365 * 24 * time.Hour
	}
	if opts.RateLimitRetention <= 0 {
		opts.RateLimitRetention = 24 * time.Hour
	}
	return &ComplianceService{
		repos:  repos,
		tx:     tx,
		opts:   opts,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

// WithLogger attaches a structured logger.
func (s *ComplianceService) WithLogger(logger *zap.Logger) *ComplianceService {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithNow overrides the clock, primarily for deterministic testing.
func (s *ComplianceService) WithNow(now func() time.Time) *ComplianceService {
	if now != nil {
		s.now = now
	}
	return s
}

// Statistics aggregates verification outcomes for the trailing window.
func (s *ComplianceService) Statistics(ctx context.Context, window time.Duration) (domain.VerificationStatistics, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	until := s.now().UTC()
	since := until.Add(-window)

	stats, err := s.repos.Logs.Statistics(ctx, since, until)
	if err != nil {
		return stats, fmt.Errorf("verification statistics: %w", err)
	}
	limited, err := s.repos.Audit.CountByType(ctx, domain.AuditRateLimited, since, until)
	if err != nil {
		return stats, fmt.Errorf("count rate limited attempts: %w", err)
	}
	stats.RateLimited = limited
	return stats, nil
}

// DeviceRiskReport lists devices whose risk score is at least minRisk.
func (s *ComplianceService) DeviceRiskReport(ctx context.Context, minRisk, limit int) ([]domain.DeviceFingerprint, error) {
	devices, err := s.repos.Devices.ListByRisk(ctx, minRisk, limit)
	if err != nil {
		return nil, fmt.Errorf("device risk report: %w", err)
	}
	return devices, nil
}

// RunRetention purges verification logs and rate-limit attempts past their retention and audits the purge.
func (s *ComplianceService) RunRetention(ctx context.Context) (RetentionReport, error) {
	now := s.now().UTC()
	report := RetentionReport{Cutoff: now.Add(-s.opts.VerificationLogRetention)}

	err := s.tx(ctx, func(repos port.Repositories) error {
		purged, err := repos.Logs.DeleteBefore(ctx, report.Cutoff)
		if err != nil {
			return err
		}
		report.VerificationLogs = purged

		if purger, ok := repos.RateLimits.(port.RateLimitPurger); ok {
			attempts, err := purger.PurgeBefore(ctx, now.Add(-s.opts.RateLimitRetention))
			if err != nil {
				return err
			}
			report.RateLimitAttempts = attempts
		}

		return repos.Audit.Append(ctx, domain.AuditEvent{
			ID:          newRowID(),
			IdentityID:  "system",
			EventType:   domain.AuditRetentionCleanup,
			PerformedBy: "retention",
			Details: map[string]any{
				"cutoff":              report.Cutoff.Format(time.RFC3339),
				"verification_logs":   report.VerificationLogs,
				"rate_limit_attempts": report.RateLimitAttempts,
			},
			CreatedAt: now,
		})
	})
	if err != nil {
		return RetentionReport{}, fmt.Errorf("run retention: %w", err)
	}

	s.logger.Info("biometric retention completed",
		zap.Time("cutoff", report.Cutoff),
		zap.Int64("verification_logs", report.VerificationLogs),
		zap.Int64("rate_limit_attempts", report.RateLimitAttempts),
	)
	return report, nil
}

// Execute runs retention as a scheduled batch job and reports the number of purged rows.
func (s *ComplianceService) Execute(ctx context.Context) (int, error) {
	report, err := s.RunRetention(ctx)
	if err != nil {
		return 0, err
	}
	return int(report.VerificationLogs + report.RateLimitAttempts), nil
}
