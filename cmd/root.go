package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/khizarrm/outreach/internal/config"
	"github.com/khizarrm/outreach/internal/telemetry"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	cfg               *config.Config
	shutdownTelemetry telemetry.Shutdown
)

var rootCmd = &cobra.Command{
	Use:   "outreach",
	Short: "Company leadership research agent",
	Long:  "Researches a company from a name or domain, finds its leadership team with search-backed model agents, and enriches them with work emails.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		shutdown, err := telemetry.Init(cfg.Telemetry, version)
		if err != nil {
			return fmt.Errorf("init telemetry: %w", err)
		}
		shutdownTelemetry = shutdown

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTelemetry != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTelemetry(ctx); err != nil {
				zap.L().Warn("telemetry shutdown failed", zap.Error(err))
			}
		}
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
