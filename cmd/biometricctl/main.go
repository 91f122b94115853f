package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/arklim/workforce-biometric/internal/transport/cli/migrate"
	"github.com/arklim/workforce-biometric/internal/transport/cli/retention"
)

func main() {
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "biometricctl",
		Short: "Operator tooling for the workforce biometric engine",
		Long:  `biometricctl applies schema migrations and runs compliance maintenance against the biometric store.`,
	}

	rootCmd.AddCommand(
		migrate.NewCommand(),
		retention.NewCommand(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cancel()
		os.Exit(1)
	}
}
