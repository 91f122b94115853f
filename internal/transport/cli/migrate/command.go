// Package migrate implements the biometricctl migrate command group.
package migrate

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/arklim/workforce-biometric/internal/infra/config"
	"github.com/arklim/workforce-biometric/internal/infra/database"
	"github.com/arklim/workforce-biometric/internal/infra/logger"
)

var steps int

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Apply, roll back or inspect the embedded biometric schema migrations.`,
	}

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE:  runUp,
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE:  runDown,
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE:  runStatus,
	}
}

type session struct {
	log      *zap.Logger
	pool     *pgxpool.Pool
	migrator *database.Migrator
}

func (s *session) close() {
	_ = s.migrator.Close()
	s.pool.Close()
	_ = s.log.Sync()
}

func open(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(cfg.App.Env, cfg.App.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, err
	}

	migrator, err := database.NewMigrator(pool, log)
	if err != nil {
		pool.Close()
		return nil, err
	}

	return &session{log: log, pool: pool, migrator: migrator}, nil
}

func runUp(cmd *cobra.Command, args []string) error {
	s, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	s.log.Info("running up migrations")
	if err := s.migrator.Up(cmd.Context()); err != nil {
		s.log.Error("migration failed", zap.Error(err))
		return fmt.Errorf("migration failed: %w", err)
	}

	s.log.Info("migrations completed successfully")
	return nil
}

func runDown(cmd *cobra.Command, args []string) error {
	if steps < 1 {
		return fmt.Errorf("steps must be at least 1")
	}

	s, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	s.log.Info("running down migrations", zap.Int("steps", steps))
	if err := s.migrator.Down(cmd.Context(), steps); err != nil {
		s.log.Error("down migration failed", zap.Error(err))
		return fmt.Errorf("down migration failed: %w", err)
	}

	s.log.Info("down migration completed successfully")
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.migrator.Status(cmd.Context()); err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}

	version, err := s.migrator.Version(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "current version: %d\n", version)
	return nil
}
