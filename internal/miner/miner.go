// Package miner implements the offline clustering job that keeps the
// canonical answer cache populated with high-value answers.
//
// A run reads a bounded window of historical query logs, deduplicates by
// content hash, embeds the unique queries, clusters them by density, and
// reports a frequency-ranked worklist with coverage statistics. Clusters
// are never auto-promoted with generated text: Promote is a separate,
// operator-triggered step that writes one cluster per transaction.
//
// The miner runs one instance at a time; overlapping runs over the same
// window are prevented by the external scheduler, not in-process
// locking.
package miner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/firebase/genkit/go/ai"
	"golang.org/x/time/rate"

	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/embedding"
	"github.com/askbase/askbase/internal/querylog"
	"github.com/askbase/askbase/internal/resolver"
)

// ErrNoClusters indicates a run over a non-empty window produced no
// clusters at all. Surfaced to the operator, never auto-retried.
var ErrNoClusters = errors.New("no clusters formed")

// logSource is the query log surface the miner consumes.
type logSource interface {
	ListWindow(ctx context.Context, from, to time.Time) ([]querylog.Record, error)
}

// promoter is the answer store surface used by Promote.
type promoter interface {
	PromoteCluster(ctx context.Context, a answer.CanonicalAnswer, embedding []float32, variants []answer.Variant) error
}

// Config tunes one mining run.
type Config struct {
	// SimilarityThreshold sets the clustering radius: the DBSCAN
	// neighborhood eps is 1 − SimilarityThreshold.
	SimilarityThreshold float64

	// MinClusterSize is the minimum number of near-duplicate phrasings
	// to form a cluster (DBSCAN minPts). At least 3; default 3.
	MinClusterSize int

	// EmbedRate limits embedding calls per second during the batch.
	EmbedRate float64
}

// Miner mines query logs into clusters of near-duplicate questions.
type Miner struct {
	logs     logSource
	answers  promoter
	embedder ai.Embedder
	logger   *slog.Logger
	cfg      Config
}

// New creates a Miner. Zero config fields get production defaults.
func New(logs logSource, answers promoter, embedder ai.Embedder, logger *slog.Logger, cfg Config) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SimilarityThreshold == 0 {
		cfg.SimilarityThreshold = 0.80
	}
	if cfg.MinClusterSize < 3 {
		cfg.MinClusterSize = 3
	}
	if cfg.EmbedRate <= 0 {
		cfg.EmbedRate = 10
	}
	return &Miner{logs: logs, answers: answers, embedder: embedder, logger: logger, cfg: cfg}
}

// uniqueQuery is one deduplicated query with its window frequency.
type uniqueQuery struct {
	text string
	freq int
}

// Mine executes one run over the given window.
//
// Individual embedding failures are skipped with a warning and counted
// in the report; the run only fails when the window is unreadable or no
// clusters could be formed from a non-empty window. Cancellation is
// checked between per-cluster processing steps, never mid-batch.
func (m *Miner) Mine(ctx context.Context, window TimeRange) (*Report, error) {
	records, err := m.logs.ListWindow(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("reading query log window: %w", err)
	}

	uniques := dedupe(records)
	m.logger.Info("mining window",
		"from", window.From, "to", window.To,
		"records", len(records), "unique", len(uniques))

	report := &Report{Window: window, UniqueQueries: len(uniques)}
	if len(uniques) == 0 {
		return report, nil
	}

	vectors, kept, skipped, err := m.embedAll(ctx, uniques)
	if err != nil {
		return nil, err
	}
	report.SkippedEmbeddings = skipped

	eps := 1 - m.cfg.SimilarityThreshold
	labels := dbscan(vectors, eps, m.cfg.MinClusterSize)

	clusters, err := m.buildClusters(ctx, labels, vectors, kept)
	if err != nil {
		return nil, err
	}

	if len(clusters) == 0 {
		return nil, fmt.Errorf("window %v-%v with %d unique queries: %w",
			window.From, window.To, len(uniques), ErrNoClusters)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].TotalFrequency > clusters[j].TotalFrequency
	})
	report.Clusters = clusters
	report.Coverage = coverage(clusters, len(records))

	m.logger.Info("mining run complete",
		"clusters", len(clusters),
		"total_coverage_pct", report.Coverage.TotalPercent,
		"skipped_embeddings", skipped)

	return report, nil
}

// dedupe collapses records to unique normalized queries with frequency
// counts, preserving first-seen order.
func dedupe(records []querylog.Record) []uniqueQuery {
	index := make(map[string]int)
	var uniques []uniqueQuery
	for _, r := range records {
		normalized := resolver.Normalize(r.Query)
		if normalized == "" {
			continue
		}
		if i, ok := index[normalized]; ok {
			uniques[i].freq++
			continue
		}
		index[normalized] = len(uniques)
		uniques = append(uniques, uniqueQuery{text: normalized, freq: 1})
	}
	return uniques
}

// embedAll embeds every unique query under the rate limit. Failed
// embeddings are skipped, not fatal; the returned slices are parallel
// and contain only successfully embedded queries.
func (m *Miner) embedAll(ctx context.Context, uniques []uniqueQuery) (vectors [][]float32, kept []uniqueQuery, skipped int, err error) {
	limiter := rate.NewLimiter(rate.Limit(m.cfg.EmbedRate), 1)

	for _, u := range uniques {
		if err := limiter.Wait(ctx); err != nil {
			return nil, nil, 0, fmt.Errorf("mining canceled during embedding: %w", err)
		}
		vec, embedErr := embedding.Text(ctx, m.embedder, u.text)
		if embedErr != nil {
			m.logger.Warn("skipping query, embedding failed",
				"query", u.text, "error", embedErr)
			skipped++
			continue
		}
		vectors = append(vectors, vec)
		kept = append(kept, u)
	}
	return vectors, kept, skipped, nil
}

// buildClusters turns DBSCAN labels into Cluster values. Noise points
// are dropped from this run; they remain candidates for a future run if
// their frequency grows.
func (m *Miner) buildClusters(ctx context.Context, labels []int, vectors [][]float32, kept []uniqueQuery) ([]Cluster, error) {
	byLabel := make(map[int][]int)
	for i, label := range labels {
		if label == labelNoise {
			continue
		}
		byLabel[label] = append(byLabel[label], i)
	}

	labelOrder := make([]int, 0, len(byLabel))
	for label := range byLabel {
		labelOrder = append(labelOrder, label)
	}
	sort.Ints(labelOrder)

	clusters := make([]Cluster, 0, len(byLabel))
	for _, label := range labelOrder {
		// Cancellation boundary: a canceled run stops cleanly between
		// clusters with the already-built clusters discarded.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("mining canceled: %w", err)
		}
		indices := byLabel[label]
		clusters = append(clusters, m.buildCluster(indices, vectors, kept))
	}
	return clusters, nil
}

// buildCluster computes the centroid, canonical representative, and
// statistics for one group of member indices.
func (*Miner) buildCluster(indices []int, vectors [][]float32, kept []uniqueQuery) Cluster {
	memberVecs := make([][]float32, len(indices))
	for i, idx := range indices {
		memberVecs[i] = vectors[idx]
	}
	centroid := embedding.Centroid(memberVecs)

	// Canonical representative: the member closest to the centroid.
	bestIdx := indices[0]
	bestSim := embedding.Cosine(vectors[bestIdx], centroid)
	for _, idx := range indices[1:] {
		if sim := embedding.Cosine(vectors[idx], centroid); sim > bestSim {
			bestIdx = idx
			bestSim = sim
		}
	}

	var c Cluster
	c.CanonicalQuestion = kept[bestIdx].text
	c.ClusterID = ClusterID(c.CanonicalQuestion)
	for _, idx := range indices {
		c.Members = append(c.Members, Member{Text: kept[idx].text, Frequency: kept[idx].freq})
		c.TotalFrequency += kept[idx].freq
	}
	c.AvgInternalSimilarity = avgPairwiseSimilarity(memberVecs)
	return c
}

// avgPairwiseSimilarity is the mean cosine similarity over all member
// pairs; 1.0 for a single-member group.
func avgPairwiseSimilarity(vectors [][]float32) float64 {
	n := len(vectors)
	if n < 2 {
		return 1.0
	}
	var sum float64
	var pairs int
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			sum += embedding.Cosine(vectors[i], vectors[j])
			pairs++
		}
	}
	return sum / float64(pairs)
}

// coverage computes the share of window volume explained by all
// clusters and by the top-10 / top-50, as percentages. clusters must
// already be sorted by total frequency descending.
func coverage(clusters []Cluster, totalQueries int) Coverage {
	cov := Coverage{TotalQueries: totalQueries}
	if totalQueries == 0 {
		return cov
	}

	for i, c := range clusters {
		cov.ClusteredQueries += c.TotalFrequency
		if i < 10 {
			cov.Top10Percent += float64(c.TotalFrequency)
		}
		if i < 50 {
			cov.Top50Percent += float64(c.TotalFrequency)
		}
	}
	total := float64(totalQueries)
	cov.TotalPercent = float64(cov.ClusteredQueries) / total * 100
	cov.Top10Percent = cov.Top10Percent / total * 100
	cov.Top50Percent = cov.Top50Percent / total * 100
	return cov
}

// Promote writes one mined cluster into the canonical answer store with
// operator-authored answer text. The canonical question is re-embedded
// so its vector is cached on the answer row; all member phrasings become
// exact-match variants. The write is one transaction per cluster.
func (m *Miner) Promote(ctx context.Context, c Cluster, answerText string, sources []string, confidence float64) error {
	if answerText == "" {
		return fmt.Errorf("answer text is required")
	}
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("confidence %g out of range [0,1]", confidence)
	}

	vec, err := embedding.Text(ctx, m.embedder, c.CanonicalQuestion)
	if err != nil {
		return fmt.Errorf("embedding canonical question: %w", err)
	}

	variants := make([]answer.Variant, 0, len(c.Members))
	for _, member := range c.Members {
		variants = append(variants, answer.Variant{
			QueryHash: resolver.HashQuery(member.Text),
			ClusterID: c.ClusterID,
			RawText:   member.Text,
		})
	}

	return m.answers.PromoteCluster(ctx, answer.CanonicalAnswer{
		ClusterID:         c.ClusterID,
		CanonicalQuestion: c.CanonicalQuestion,
		AnswerText:        answerText,
		Sources:           sources,
		Confidence:        confidence,
	}, vec, variants)
}
