// Package cmd implements the askbase command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/askbase/askbase/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "askbase",
	Short: "Canonical answer cache and retrieval router for support queries",
	Long: `askbase serves repeated support questions from a curated cache of
canonical answers and routes cache misses into domain knowledge
partitions for retrieval.

Commands:
  serve    start the HTTP API server
  mine     run one offline clustering pass over the query log
  promote  write a mined cluster into the canonical answer store`,
	SilenceUsage: true,
}

// Execute is the main entry point for the askbase CLI.
// It initializes logging before dispatching to subcommands; subcommands
// load configuration themselves so --help works without a config file.
func Execute() error {
	slog.SetDefault(initLogger())
	return rootCmd.Execute()
}

// initLogger initializes the structured logger.
//
// Log level is controlled by the DEBUG environment variable:
//   - DEBUG set (any value): debug level logging
//   - DEBUG not set: info level logging
func initLogger() *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if os.Getenv("DEBUG") != "" {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// loadConfig loads and validates configuration, then verifies provider
// credentials are present.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := checkRequiredEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// checkRequiredEnv verifies provider credentials.
// Gemini needs GEMINI_API_KEY; Ollama is addressed by host and needs none.
func checkRequiredEnv(cfg *config.Config) error {
	if cfg.Provider == config.ProviderGemini && os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "The gemini embedding provider requires an API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")
		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}
