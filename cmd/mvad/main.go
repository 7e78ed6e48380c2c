// Package main provides the mvad command line tool.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/mvad/internal/bootstrap"
	"github.com/maauso/mvad/internal/config"
	"github.com/maauso/mvad/internal/metrics"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "mvad",
		Short:         "Merge VAD segments into speaker-homogeneous training chunks",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(newPrepareCmd())
	rootCmd.AddCommand(newPrepareAllCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newServeCmd())
	return rootCmd
}

// app bundles what every command needs after configuration is loaded.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	deps   *bootstrap.Dependencies
}

func newApp() (*app, error) {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// Create structured logger
	logger := cfg.NewLogger()
	slog.SetDefault(logger)

	logger.Debug("configuration loaded",
		slog.String("version", version),
		slog.String("config", cfg.String()),
		slog.Bool("s3_enabled", cfg.S3Enabled()),
	)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return &app{cfg: cfg, logger: logger, deps: deps}, nil
}

// close exports metrics when a textfile path is configured.
func (a *app) close() {
	if a.cfg.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(a.cfg.MetricsFile); err != nil {
		a.logger.Warn("failed to write metrics",
			slog.String("path", a.cfg.MetricsFile),
			slog.String("error", err.Error()),
		)
	}
}
