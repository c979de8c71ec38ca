// Package querylog stores the historical (query, response, model) records
// mined offline by the cluster miner. Records are appended best-effort by
// the request path after retrieval; losing individual records only delays
// a cluster's growth, so append failures never reach the user.
package querylog

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one logged query/response pair.
type Record struct {
	ID        uuid.UUID
	Query     string
	Response  string
	ModelUsed string
	CreatedAt time.Time
}

// Store persists query log records in PostgreSQL.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a query log Store.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Append logs one query/response pair.
func (s *Store) Append(ctx context.Context, query, response, modelUsed string) error {
	if query == "" {
		return fmt.Errorf("query is required")
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO query_log (id, query, response, model_used)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), query, response, modelUsed,
	)
	if err != nil {
		return fmt.Errorf("appending query log record: %w", err)
	}
	return nil
}

// ListWindow returns all records with from <= created_at < to, oldest
// first. The miner reads one bounded window per run.
func (s *Store) ListWindow(ctx context.Context, from, to time.Time) ([]Record, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid window: %v is not before %v", from, to)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, query, COALESCE(response, ''), COALESCE(model_used, ''), created_at
		 FROM query_log
		 WHERE created_at >= $1 AND created_at < $2
		 ORDER BY created_at`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("querying log window: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Query, &r.Response, &r.ModelUsed, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning log record: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log window: %w", err)
	}
	return records, nil
}
