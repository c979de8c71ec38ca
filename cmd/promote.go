package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/askbase/askbase/internal/app"
	"github.com/askbase/askbase/internal/miner"
)

var (
	promoteReport     string
	promoteCluster    string
	promoteAnswer     string
	promoteAnswerFile string
	promoteSources    []string
	promoteConfidence float64
)

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Write a mined cluster into the canonical answer store",
	Long: `promote publishes one cluster from a mining report together with
operator-authored answer text. All member phrasings become exact-match
variants in a single transaction. Answer text is never generated;
it comes from --answer or --answer-file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runPromote(cmd.Context())
	},
}

func init() {
	promoteCmd.Flags().StringVar(&promoteReport, "report", "", "mining report JSON file (required)")
	promoteCmd.Flags().StringVar(&promoteCluster, "cluster", "", "cluster ID to promote (required)")
	promoteCmd.Flags().StringVar(&promoteAnswer, "answer", "", "curated answer text")
	promoteCmd.Flags().StringVar(&promoteAnswerFile, "answer-file", "", "file containing the curated answer text")
	promoteCmd.Flags().StringSliceVar(&promoteSources, "source", nil, "source reference (repeatable)")
	promoteCmd.Flags().Float64Var(&promoteConfidence, "confidence", 0.9, "answer confidence in [0, 1]")
	_ = promoteCmd.MarkFlagRequired("report")
	_ = promoteCmd.MarkFlagRequired("cluster")
	rootCmd.AddCommand(promoteCmd)
}

// runPromote loads the report, finds the cluster, and writes it.
func runPromote(parent context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	answerText, err := resolveAnswerText()
	if err != nil {
		return err
	}

	cluster, err := findCluster(promoteReport, promoteCluster)
	if err != nil {
		return err
	}

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

	if err := a.Miner.Promote(ctx, *cluster, answerText, promoteSources, promoteConfidence); err != nil {
		return fmt.Errorf("promoting cluster %s: %w", cluster.ClusterID, err)
	}

	fmt.Printf("Promoted %s (%d variants, frequency %d)\n",
		cluster.ClusterID, len(cluster.Members), cluster.TotalFrequency)
	fmt.Println("Running servers pick up the new answer at the next snapshot refresh.")
	return nil
}

// resolveAnswerText returns the curated answer from --answer or
// --answer-file; exactly one must be given.
func resolveAnswerText() (string, error) {
	switch {
	case promoteAnswer != "" && promoteAnswerFile != "":
		return "", fmt.Errorf("use either --answer or --answer-file, not both")
	case promoteAnswer != "":
		return promoteAnswer, nil
	case promoteAnswerFile != "":
		data, err := os.ReadFile(promoteAnswerFile)
		if err != nil {
			return "", fmt.Errorf("reading answer file: %w", err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return "", fmt.Errorf("answer file %s is empty", promoteAnswerFile)
		}
		return text, nil
	default:
		return "", fmt.Errorf("an answer is required: use --answer or --answer-file")
	}
}

// findCluster loads a mining report and returns the named cluster.
func findCluster(path, clusterID string) (*miner.Cluster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading report: %w", err)
	}

	var report miner.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parsing report: %w", err)
	}

	for i := range report.Clusters {
		if report.Clusters[i].ClusterID == clusterID {
			return &report.Clusters[i], nil
		}
	}
	return nil, fmt.Errorf("cluster %s not found in %s (%d clusters)",
		clusterID, path, len(report.Clusters))
}
