// Package router classifies cache-missed queries into domain knowledge
// partitions and executes the tier-filtered retrieval search.
//
// Routing is a pure function of (query, user tier, static config):
// nothing persists across calls. Partition configuration is read-only at
// request time and reloaded only at process start or an explicit admin
// refresh.
package router

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/askbase/askbase/internal/config"
	"github.com/askbase/askbase/internal/embedding"
	"github.com/askbase/askbase/internal/partition"
)

// Plan is the retrieval plan produced by routing.
type Plan struct {
	// Partition is the selected knowledge partition.
	Partition string

	// AllowedTiers restricts document access tiers; nil means the
	// partition is tier-agnostic and no filter applies.
	AllowedTiers []int

	// ScoreBias is an additive adjustment applied to result scores from
	// this partition. Final scores are capped at 1.0.
	ScoreBias float64
}

// docSearcher is the partition search surface the router consumes.
type docSearcher interface {
	Search(ctx context.Context, vec []float32, partitionName string, allowedTiers []int, limit int) ([]partition.Result, error)
}

// routeConfig is the immutable routing configuration swapped wholesale
// by Reload.
type routeConfig struct {
	partitions       []config.PartitionConfig
	defaultPartition string
	pricingKeywords  []string
}

// Router selects a partition per query and runs the retrieval search.
//
// Router is safe for concurrent use: its configuration is immutable
// after construction and swapped wholesale by Reload.
type Router struct {
	docs     docSearcher
	embedder ai.Embedder
	logger   *slog.Logger

	cfg          atomic.Pointer[routeConfig]
	embedTimeout time.Duration
}

// New creates a Router from the given partition configuration.
// Partition declaration order is the tie-break priority order.
func New(docs docSearcher, embedder ai.Embedder, logger *slog.Logger,
	partitions []config.PartitionConfig, defaultPartition string,
	pricingKeywords []string, embedTimeout time.Duration) *Router {

	if logger == nil {
		logger = slog.Default()
	}
	if defaultPartition == "" {
		defaultPartition = config.DefaultPartitionName
	}
	if embedTimeout == 0 {
		embedTimeout = 5 * time.Second
	}

	r := &Router{
		docs:         docs,
		embedder:     embedder,
		logger:       logger,
		embedTimeout: embedTimeout,
	}
	r.cfg.Store(&routeConfig{
		partitions:       partitions,
		defaultPartition: defaultPartition,
		pricingKeywords:  pricingKeywords,
	})
	return r
}

// Route classifies the query and resolves the access-tier filter.
// It never fails: an empty or misconfigured partition set falls back to
// the default partition with a configuration warning.
func (r *Router) Route(query string, userTier int) Plan {
	cfg := r.cfg.Load()
	lowered := strings.ToLower(query)

	// Pricing queries short-circuit: incorrect pricing answers carry
	// outsized business risk, so any pricing-intent keyword wins over
	// every other signal.
	for _, kw := range cfg.pricingKeywords {
		if strings.Contains(lowered, kw) {
			return r.planFor(cfg, config.PricingPartitionName, userTier)
		}
	}

	// Generic keyword classifier: strongest keyword overlap wins,
	// earlier declaration wins ties.
	bestName := ""
	bestScore := 0
	for _, p := range cfg.partitions {
		score := 0
		for _, kw := range p.RoutingKeywords {
			if strings.Contains(lowered, strings.ToLower(kw)) {
				score++
			}
		}
		if score > bestScore {
			bestName = p.Name
			bestScore = score
		}
	}

	if bestName == "" {
		bestName = cfg.defaultPartition
	}
	return r.planFor(cfg, bestName, userTier)
}

// planFor builds the Plan for a named partition, falling back to the
// default partition when the name is not configured.
func (r *Router) planFor(cfg *routeConfig, name string, userTier int) Plan {
	p, ok := cfg.lookup(name)
	if !ok {
		r.logger.Warn("unknown partition reference, falling back to default",
			"partition", name, "default", cfg.defaultPartition)
		p, ok = cfg.lookup(cfg.defaultPartition)
		if !ok {
			// Even the default is missing: serve an unfiltered plan so
			// the request path keeps working.
			r.logger.Warn("default partition not configured", "default", cfg.defaultPartition)
			return Plan{Partition: cfg.defaultPartition}
		}
	}

	plan := Plan{
		Partition: p.Name,
		ScoreBias: p.PriorityBoost,
	}
	if p.TierFiltered {
		plan.AllowedTiers = AllowedTiers(userTier)
	}
	return plan
}

func (c *routeConfig) lookup(name string) (config.PartitionConfig, bool) {
	for _, p := range c.partitions {
		if p.Name == name {
			return p, true
		}
	}
	return config.PartitionConfig{}, false
}

// Search routes the query and executes the similarity search within the
// selected partition, applying the partition's score bias. Failures
// degrade to an empty result set with a warning; the caller falls back
// to answering without retrieved context.
func (r *Router) Search(ctx context.Context, query string, userTier, limit int) (Plan, []partition.Result) {
	plan := r.Route(query, userTier)

	embedCtx, cancel := context.WithTimeout(ctx, r.embedTimeout)
	defer cancel()

	vec, err := embedding.Text(embedCtx, r.embedder, Normalize(query))
	if err != nil {
		r.logger.Warn("query embedding failed, returning empty retrieval",
			"partition", plan.Partition, "error", err)
		return plan, nil
	}

	results, err := r.docs.Search(ctx, vec, plan.Partition, plan.AllowedTiers, limit)
	if err != nil {
		r.logger.Error("partition search failed", "partition", plan.Partition, "error", err)
		return plan, nil
	}

	if plan.ScoreBias != 0 {
		for i := range results {
			results[i].Similarity = applyBias(results[i].Similarity, plan.ScoreBias)
		}
	}
	return plan, results
}

// Reload swaps the partition configuration. Used by the admin refresh
// surface after deployments. In-flight requests keep the configuration
// they started with.
func (r *Router) Reload(partitions []config.PartitionConfig, defaultPartition string, pricingKeywords []string) {
	if defaultPartition == "" {
		defaultPartition = config.DefaultPartitionName
	}
	r.cfg.Store(&routeConfig{
		partitions:       partitions,
		defaultPartition: defaultPartition,
		pricingKeywords:  pricingKeywords,
	})
}

// Normalize lower-cases and trims a query for embedding and keyword
// matching.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// applyBias adds the partition bias and caps the score at 1.0. Pricing
// documents tend to be short and dense, scoring lower under raw cosine
// distance; the fixed additive boost compensates.
func applyBias(score, bias float64) float64 {
	score += bias
	if score > 1.0 {
		return 1.0
	}
	return score
}
