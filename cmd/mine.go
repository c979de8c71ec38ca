package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/askbase/askbase/internal/app"
	"github.com/askbase/askbase/internal/miner"
)

var (
	mineWindow    time.Duration
	mineThreshold float64
	mineOut       string
)

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Run one offline clustering pass over the query log",
	Long: `mine reads the query log for the given window ending now,
clusters near-duplicate questions, and writes a frequency-ranked JSON
report. Nothing is written to the answer store; use promote to publish
a cluster from the report.

Only one mining run may execute at a time; concurrent invocations fail
fast on a file lock.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMine(cmd.Context())
	},
}

func init() {
	mineCmd.Flags().DurationVar(&mineWindow, "window", 7*24*time.Hour,
		"log window ending now (e.g. 24h, 168h)")
	mineCmd.Flags().Float64Var(&mineThreshold, "threshold", 0,
		"override the clustering similarity threshold (0 = use config)")
	mineCmd.Flags().StringVar(&mineOut, "out", "",
		"write the JSON report to this file instead of stdout")
	rootCmd.AddCommand(mineCmd)
}

// runMine executes one mining run under an exclusive file lock.
func runMine(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if mineWindow <= 0 {
		return fmt.Errorf("window must be positive, got %v", mineWindow)
	}
	if mineThreshold != 0 && (mineThreshold <= 0 || mineThreshold > 1) {
		return fmt.Errorf("threshold %g out of range (0, 1]", mineThreshold)
	}

	unlock, err := acquireMineLock()
	if err != nil {
		return err
	}
	defer unlock()

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			slog.Warn("shutdown error", "error", closeErr)
		}
	}()

	m := a.Miner
	if mineThreshold != 0 {
		// Per-run threshold override for operator experimentation.
		m = miner.New(a.QueryLog, a.Answers, a.Embedder, slog.Default(), miner.Config{
			SimilarityThreshold: mineThreshold,
			MinClusterSize:      cfg.MinClusterSize,
			EmbedRate:           cfg.EmbedRatePerSecond,
		})
	}

	now := time.Now().UTC()
	report, err := m.Mine(ctx, miner.TimeRange{From: now.Add(-mineWindow), To: now})
	if err != nil {
		return fmt.Errorf("mining run failed: %w", err)
	}

	return writeReport(report)
}

// acquireMineLock takes the exclusive mining lock. A held lock means
// another run is in progress; fail fast rather than queue.
func acquireMineLock() (func(), error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolving home directory: %w", err)
	}
	dir := filepath.Join(home, ".askbase")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, "mine.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring mining lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("another mining run is in progress (lock held at %s)", lock.Path())
	}
	return func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("releasing mining lock", "error", err)
		}
	}, nil
}

// writeReport marshals the report to --out or stdout.
func writeReport(report *miner.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	data = append(data, '\n')

	if mineOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(mineOut, data, 0o640); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	slog.Info("mining report written", "path", mineOut)
	return nil
}
