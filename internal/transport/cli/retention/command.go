// Package retention implements the biometricctl retention command group.
package retention

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/infra/config"
	"github.com/arklim/workforce-biometric/internal/infra/database"
	"github.com/arklim/workforce-biometric/internal/infra/logger"
	postgresrepo "github.com/arklim/workforce-biometric/internal/repository/postgres"
	"github.com/arklim/workforce-biometric/internal/usecase"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retention",
		Short: "Compliance retention tools",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Purge verification logs and rate-limit attempts past retention",
		Long:  `Runs one retention pass immediately, independent of the in-process schedule.`,
		RunE:  runRetention,
	})

	return cmd
}

func runRetention(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	pool, err := database.NewPostgresPool(cmd.Context(), cfg.Postgres, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	// The Redis window expires on its own TTL, so only the PostgreSQL store is purged here.
	repos := postgresrepo.NewRepositories(pool, nil)
	tx := postgresrepo.NewTxManager(pool, nil, log)

	compliance := usecase.NewComplianceService(repos, tx.Run, usecase.ComplianceOptions{
		VerificationLogRetention: cfg.Retention.VerificationLogs,
		RateLimitRetention:       cfg.Retention.RateLimitAttempts,
	}).WithLogger(log)

	report, err := compliance.RunRetention(cmd.Context())
	if err != nil {
		log.Error("retention failed", zap.Error(err))
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "cutoff=%s verification_logs=%d rate_limit_attempts=%d\n",
		report.Cutoff.Format(time.RFC3339), report.VerificationLogs, report.RateLimitAttempts)
	return nil
}
