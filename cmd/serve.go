package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askbase/askbase/api"
	"github.com/askbase/askbase/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// runServe initializes the application and starts the HTTP API server.
// Blocks until SIGINT or SIGTERM, then shuts down gracefully.
func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := slog.Default()
	logger.Info("starting HTTP API server", "version", AppVersion)

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	resolve := api.NewResolveHandler(a.Resolver, a.Router, a.QueryLog, logger)
	admin := api.NewAdminHandler(a.Answers, a, logger)
	server := api.NewServer(a.DBPool, resolve, admin, logger)

	logger.Info("HTTP server ready",
		"addr", cfg.ListenAddr,
		"api", "/api/*",
		"health", "/health, /ready",
	)

	return server.Run(ctx, cfg.ListenAddr)
}
