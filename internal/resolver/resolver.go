// Package resolver implements the cache resolution step that sits
// between an incoming user question and the expensive generation path.
//
// Resolution order:
//  1. Exact path: content-hash lookup in the query-variant index. No
//     embedding computation; this path is the cheap, hot one.
//  2. Semantic path: cosine similarity between the query embedding and a
//     popularity-ordered candidate set of canonical questions.
//
// The resolver fails open: any storage or embedding failure degrades to
// a Miss (full retrieval downstream) rather than a user-visible error.
package resolver

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/firebase/genkit/go/ai"

	"github.com/askbase/askbase/internal/answer"
	"github.com/askbase/askbase/internal/embedding"
)

// MatchType distinguishes how a cache hit was found.
type MatchType string

const (
	// MatchExact is a hit via direct content-hash lookup.
	MatchExact MatchType = "exact"

	// MatchSemantic is a hit via embedding similarity against candidate
	// canonical questions.
	MatchSemantic MatchType = "semantic"
)

// Result is the outcome of a cache resolution.
type Result struct {
	Hit        bool
	ClusterID  string
	Answer     string
	Sources    []string
	Confidence float64
	MatchType  MatchType

	// Similarity is the observed cosine similarity for semantic hits;
	// zero for exact hits and misses.
	Similarity float64
}

// miss is the zero Result.
var miss = Result{}

// answerStore is the subset of the answer store the resolver consumes.
// Defined here, by the consumer, so tests can substitute mocks.
type answerStore interface {
	GetByCluster(ctx context.Context, clusterID string) (*answer.CanonicalAnswer, error)
	TopByUsage(ctx context.Context, limit int) ([]answer.CanonicalAnswer, error)
	RecordUse(ctx context.Context, clusterID string) error
	GetVariant(ctx context.Context, queryHash string) (*answer.Variant, error)
	PutVariant(ctx context.Context, v answer.Variant) error
}

// Config tunes the resolver.
type Config struct {
	// Threshold is the minimum cosine similarity for a semantic hit.
	// The boundary is inclusive: a candidate at exactly Threshold hits.
	Threshold float64

	// CandidateLimit bounds the popularity-ordered candidate set.
	CandidateLimit int

	// SnapshotTTL bounds the staleness of the in-memory candidate set.
	SnapshotTTL time.Duration

	// EmbedTimeout bounds the external embedding call on the semantic
	// path. On timeout the resolution degrades to a Miss.
	EmbedTimeout time.Duration
}

// Resolver answers queries from the canonical answer cache.
//
// Resolver is safe for concurrent use by multiple goroutines; the only
// shared mutable state is the candidate snapshot and the store-side
// usage counters, both of which tolerate races.
type Resolver struct {
	answers  answerStore
	embedder ai.Embedder
	logger   *slog.Logger
	cfg      Config
	snap     *snapshot
}

// New creates a Resolver. Zero config fields get production defaults.
func New(answers answerStore, embedder ai.Embedder, logger *slog.Logger, cfg Config) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Threshold == 0 {
		cfg.Threshold = 0.80
	}
	if cfg.CandidateLimit == 0 {
		cfg.CandidateLimit = 100
	}
	if cfg.SnapshotTTL == 0 {
		cfg.SnapshotTTL = 30 * time.Second
	}
	if cfg.EmbedTimeout == 0 {
		cfg.EmbedTimeout = 5 * time.Second
	}

	return &Resolver{
		answers:  answers,
		embedder: embedder,
		logger:   logger,
		cfg:      cfg,
		snap:     newSnapshot(answers, cfg.CandidateLimit, cfg.SnapshotTTL),
	}
}

// Resolve attempts to answer the query from the cache. userID is
// accepted for audit logging only; cache content is not user-scoped.
//
// Resolve never returns an error: failures are logged and degrade to a
// Miss so the caller falls back to full retrieval.
func (r *Resolver) Resolve(ctx context.Context, query, userID string) Result {
	normalized := Normalize(query)
	if normalized == "" {
		// Nothing to match; do not touch the store or the candidate set.
		return miss
	}

	hash := HashQuery(query)

	if res, ok := r.resolveExact(ctx, hash); ok {
		return res
	}

	return r.resolveSemantic(ctx, normalized, hash, query, userID)
}

// resolveExact runs the hash-lookup path. ok is false when the path
// missed (unknown hash, dangling cluster reference, or a storage error,
// all of which fall through to the semantic path).
func (r *Resolver) resolveExact(ctx context.Context, hash string) (Result, bool) {
	variant, err := r.answers.GetVariant(ctx, hash)
	if errors.Is(err, answer.ErrNotFound) {
		return miss, false
	}
	if err != nil {
		// Transient store error: fail open and report.
		r.logger.Error("variant lookup failed, degrading to semantic path", "error", err)
		return miss, false
	}

	ans, err := r.answers.GetByCluster(ctx, variant.ClusterID)
	if errors.Is(err, answer.ErrNotFound) {
		// Dangling reference: the cluster was removed after the variant
		// was written. A miss, not an error.
		r.logger.Warn("dangling variant reference",
			"query_hash", hash, "cluster_id", variant.ClusterID)
		return miss, false
	}
	if err != nil {
		r.logger.Error("canonical answer lookup failed", "error", err)
		return miss, false
	}

	r.recordUse(ctx, ans.ClusterID)

	return Result{
		Hit:        true,
		ClusterID:  ans.ClusterID,
		Answer:     ans.AnswerText,
		Sources:    ans.Sources,
		Confidence: ans.Confidence,
		MatchType:  MatchExact,
	}, true
}

// resolveSemantic embeds the query and scans the popularity-ordered
// candidate set for the best cosine match.
func (r *Resolver) resolveSemantic(ctx context.Context, normalized, hash, rawQuery, userID string) Result {
	candidates, err := r.snap.get(ctx)
	if err != nil {
		r.logger.Error("candidate snapshot unavailable", "error", err)
		return miss
	}
	if len(candidates) == 0 {
		return miss
	}

	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()

	queryVec, err := embedding.Text(embedCtx, r.embedder, normalized)
	if err != nil {
		r.logger.Warn("query embedding failed, degrading to miss", "error", err)
		return miss
	}

	// Candidates are ordered by usage descending; a strict > comparison
	// resolves similarity ties to the earlier, more-used answer.
	best := -1
	bestSim := math.Inf(-1)
	for i, cand := range candidates {
		if len(cand.QuestionEmbedding) == 0 {
			continue
		}
		sim := embedding.Cosine(queryVec, cand.QuestionEmbedding)
		if math.IsNaN(sim) {
			r.logger.Warn("invalid similarity score, skipping candidate",
				"cluster_id", cand.ClusterID)
			continue
		}
		if sim > bestSim {
			best = i
			bestSim = sim
		}
	}

	if best < 0 || bestSim < r.cfg.Threshold {
		return miss
	}

	matched := candidates[best]
	r.recordUse(ctx, matched.ClusterID)

	// Self-reinforcing cache: remember this exact phrasing so future
	// identical queries take the cheap exact path. Best-effort.
	if err := r.answers.PutVariant(ctx, answer.Variant{
		QueryHash: hash,
		ClusterID: matched.ClusterID,
		RawText:   rawQuery,
	}); err != nil {
		r.logger.Warn("variant insert failed", "error", err, "user_id", userID)
	}

	return Result{
		Hit:        true,
		ClusterID:  matched.ClusterID,
		Answer:     matched.AnswerText,
		Sources:    matched.Sources,
		Confidence: matched.Confidence,
		MatchType:  MatchSemantic,
		Similarity: bestSim,
	}
}

// recordUse increments the usage counter. Counter correctness is
// best-effort, not transactional: failures are logged and swallowed.
func (r *Resolver) recordUse(ctx context.Context, clusterID string) {
	if err := r.answers.RecordUse(ctx, clusterID); err != nil {
		r.logger.Warn("usage increment failed", "cluster_id", clusterID, "error", err)
	}
}

// Invalidate drops the in-memory candidate snapshot so the next
// resolution reloads it. Called from the admin refresh surface.
func (r *Resolver) Invalidate() {
	r.snap.invalidate()
}
