// Package answer implements the canonical answer store: a versioned
// table of pre-computed answers keyed by cluster ID, plus the
// query-variant index used for exact-hash cache lookups.
//
// The store is exclusively owned by the cache resolver / cluster miner
// pair; no other component mutates these tables.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages canonical answers and query variants backed by
// PostgreSQL + pgvector.
//
// Store is safe for concurrent use by multiple goroutines. Usage
// counters are eventually consistent: concurrent increments may race and
// slightly under-count under heavy identical-query bursts, which is an
// accepted trade-off for a lock-free hot path.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates an answer Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// GetByCluster fetches a canonical answer by cluster ID.
// Returns ErrNotFound when the cluster does not exist.
func (s *Store) GetByCluster(ctx context.Context, clusterID string) (*CanonicalAnswer, error) {
	var a CanonicalAnswer
	err := s.pool.QueryRow(ctx,
		`SELECT cluster_id, canonical_question, answer_text, sources, confidence,
		        usage_count, last_used_at, created_at
		 FROM canonical_answers
		 WHERE cluster_id = $1`,
		clusterID,
	).Scan(&a.ClusterID, &a.CanonicalQuestion, &a.AnswerText, &a.Sources,
		&a.Confidence, &a.UsageCount, &a.LastUsedAt, &a.CreatedAt)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("querying canonical answer %q: %w", clusterID, err)
	}
	return &a, nil
}

// TopByUsage returns the limit most-used canonical answers, including
// their cached question embeddings. This is the popularity-biased
// candidate set for the resolver's semantic path.
func (s *Store) TopByUsage(ctx context.Context, limit int) ([]CanonicalAnswer, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT cluster_id, canonical_question, answer_text, sources, confidence,
		        usage_count, last_used_at, created_at, question_embedding
		 FROM canonical_answers
		 ORDER BY usage_count DESC, cluster_id
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top answers: %w", err)
	}
	defer rows.Close()

	var answers []CanonicalAnswer
	for rows.Next() {
		var a CanonicalAnswer
		var emb *pgvector.Vector
		if err := rows.Scan(&a.ClusterID, &a.CanonicalQuestion, &a.AnswerText,
			&a.Sources, &a.Confidence, &a.UsageCount, &a.LastUsedAt,
			&a.CreatedAt, &emb); err != nil {
			return nil, fmt.Errorf("scanning canonical answer: %w", err)
		}
		if emb != nil {
			a.QuestionEmbedding = emb.Slice()
		}
		answers = append(answers, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top answers: %w", err)
	}
	return answers, nil
}

// RecordUse increments a cluster's usage counter and stamps
// last_used_at. The increment is a single atomic UPDATE; no transaction
// spans the preceding read, so counters are best-effort.
func (s *Store) RecordUse(ctx context.Context, clusterID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE canonical_answers
		 SET usage_count = usage_count + 1, last_used_at = now()
		 WHERE cluster_id = $1`,
		clusterID,
	)
	if err != nil {
		return fmt.Errorf("recording use of %q: %w", clusterID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("recording use of %q: %w", clusterID, ErrNotFound)
	}
	return nil
}

// Upsert creates or refreshes a canonical answer. On conflict the
// answer text, sources, and cached embedding are updated, while
// usage_count, confidence, and created_at keep their original values:
// counters are monotonic and confidence is a creation-time property.
func (s *Store) Upsert(ctx context.Context, a CanonicalAnswer, embedding []float32) error {
	return s.upsert(ctx, s.pool, a, embedding)
}

func (*Store) upsert(ctx context.Context, q querier, a CanonicalAnswer, embedding []float32) error {
	if a.ClusterID == "" {
		return fmt.Errorf("cluster ID is required")
	}
	if a.CanonicalQuestion == "" {
		return fmt.Errorf("canonical question is required")
	}
	if a.Sources == nil {
		a.Sources = []string{}
	}

	vec := pgvector.NewVector(embedding)
	_, err := q.Exec(ctx,
		`INSERT INTO canonical_answers
		     (cluster_id, canonical_question, answer_text, sources, confidence,
		      usage_count, created_at, question_embedding)
		 VALUES ($1, $2, $3, $4, $5, 0, now(), $6)
		 ON CONFLICT (cluster_id) DO UPDATE
		 SET canonical_question = EXCLUDED.canonical_question,
		     answer_text        = EXCLUDED.answer_text,
		     sources            = EXCLUDED.sources,
		     question_embedding = EXCLUDED.question_embedding`,
		a.ClusterID, a.CanonicalQuestion, a.AnswerText, a.Sources, a.Confidence, vec,
	)
	if err != nil {
		return fmt.Errorf("upserting canonical answer %q: %w", a.ClusterID, err)
	}
	return nil
}

// GetVariant looks up the exact-hash index.
// Returns ErrNotFound when the hash is unknown.
func (s *Store) GetVariant(ctx context.Context, queryHash string) (*Variant, error) {
	var v Variant
	err := s.pool.QueryRow(ctx,
		`SELECT query_hash, cluster_id, raw_text
		 FROM query_variants
		 WHERE query_hash = $1`,
		queryHash,
	).Scan(&v.QueryHash, &v.ClusterID, &v.RawText)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("querying variant %q: %w", queryHash, err)
	}
	return &v, nil
}

// PutVariant inserts a variant mapping. Idempotent: an existing hash
// wins, preserving the first-writer cluster assignment.
func (s *Store) PutVariant(ctx context.Context, v Variant) error {
	return s.putVariant(ctx, s.pool, v)
}

func (*Store) putVariant(ctx context.Context, q querier, v Variant) error {
	if v.QueryHash == "" || v.ClusterID == "" {
		return fmt.Errorf("query hash and cluster ID are required")
	}
	_, err := q.Exec(ctx,
		`INSERT INTO query_variants (query_hash, cluster_id, raw_text)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (query_hash) DO NOTHING`,
		v.QueryHash, v.ClusterID, v.RawText,
	)
	if err != nil {
		return fmt.Errorf("inserting variant %q: %w", v.QueryHash, err)
	}
	return nil
}

// PromoteCluster durably writes one cluster: the canonical answer row
// plus all member variants, in a single transaction. The miner applies
// promotions per cluster so a cancellation after N clusters leaves
// exactly N clusters written.
func (s *Store) PromoteCluster(ctx context.Context, a CanonicalAnswer, embedding []float32, variants []Variant) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning promotion transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			s.logger.Debug("promotion rollback", "error", rbErr)
		}
	}()

	if err := s.upsert(ctx, tx, a, embedding); err != nil {
		return err
	}
	for _, v := range variants {
		if err := s.putVariant(ctx, tx, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing promotion of %q: %w", a.ClusterID, err)
	}

	s.logger.Info("promoted cluster", "cluster_id", a.ClusterID, "variants", len(variants))
	return nil
}

// Count returns the number of canonical answers.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM canonical_answers`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting canonical answers: %w", err)
	}
	return n, nil
}

// Stats returns aggregate usage statistics for the admin surface.
func (s *Store) Stats(ctx context.Context, topN int) (*Stats, error) {
	if topN < 1 {
		topN = 10
	}

	var st Stats
	err := s.pool.QueryRow(ctx,
		`SELECT count(*), COALESCE(sum(usage_count), 0), COALESCE(avg(confidence), 0)
		 FROM canonical_answers`,
	).Scan(&st.TotalAnswers, &st.TotalUsage, &st.AvgConfidence)
	if err != nil {
		return nil, fmt.Errorf("querying answer aggregates: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT cluster_id, canonical_question, usage_count
		 FROM canonical_answers
		 ORDER BY usage_count DESC, cluster_id
		 LIMIT $1`,
		topN,
	)
	if err != nil {
		return nil, fmt.Errorf("querying top answers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t TopAnswer
		if err := rows.Scan(&t.ClusterID, &t.CanonicalQuestion, &t.UsageCount); err != nil {
			return nil, fmt.Errorf("scanning top answer: %w", err)
		}
		st.TopAnswers = append(st.TopAnswers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating top answers: %w", err)
	}

	return &st, nil
}
