// Package scheduler runs periodic maintenance jobs using gocron v2.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// BatchJob processes one batch and returns the number of items processed.
type BatchJob interface {
	Execute(ctx context.Context) (int, error)
}

// Manager owns the gocron scheduler and its registered jobs.
type Manager struct {
	scheduler gocron.Scheduler
	logger    *zap.Logger

	started   bool
	startedMu sync.Mutex
}

// NewManager creates a scheduler in UTC.
func NewManager(logger *zap.Logger) (*Manager, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{scheduler: s, logger: logger}, nil
}

// RegisterRetentionJob runs job every interval, starting immediately. Overlapping runs are rescheduled.
func (m *Manager) RegisterRetentionJob(job BatchJob, interval, timeout time.Duration) error {
	_, err := m.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			m.runBatch(ctx, "retention", job)
		}),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithTags("retention", "compliance"),
		gocron.WithName("biometric-retention"),
	)
	if err != nil {
		return err
	}

	m.logger.Info("registered retention job", zap.Duration("interval", interval))
	return nil
}

func (m *Manager) runBatch(ctx context.Context, name string, job BatchJob) {
	start := time.Now()
	count, err := job.Execute(ctx)
	if err != nil {
		m.logger.Error("scheduled job failed",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err),
		)
		return
	}
	if count > 0 {
		m.logger.Info("scheduled job processed rows",
			zap.String("job", name),
			zap.Int("count", count),
			zap.Duration("duration", time.Since(start)),
		)
		return
	}
	m.logger.Debug("scheduled job found nothing to process", zap.String("job", name))
}

// Start starts the scheduler and all registered jobs.
func (m *Manager) Start() {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if m.started {
		return
	}

	m.scheduler.Start()
	m.started = true
	m.logger.Info("scheduler started", zap.Int("job_count", len(m.scheduler.Jobs())))
}

// Stop waits for running jobs to complete and shuts the scheduler down.
func (m *Manager) Stop() error {
	m.startedMu.Lock()
	defer m.startedMu.Unlock()

	if !m.started {
		return nil
	}

	err := m.scheduler.Shutdown()
	m.started = false
	if err != nil {
		m.logger.Error("scheduler shutdown with error", zap.Error(err))
		return err
	}

	m.logger.Info("scheduler stopped")
	return nil
}

// Jobs returns all registered jobs for inspection.
func (m *Manager) Jobs() []gocron.Job {
	return m.scheduler.Jobs()
}
