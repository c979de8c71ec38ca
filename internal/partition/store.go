// Package partition implements the partitioned document vector store
// searched by the domain router. Each partition is an isolated subset of
// the knowledge base; one partition additionally enforces document-level
// access-tier filtering.
package partition

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// DocStore manages partition documents backed by PostgreSQL + pgvector.
//
// DocStore is safe for concurrent use by multiple goroutines.
type DocStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDocStore creates a partition document store.
func NewDocStore(pool *pgxpool.Pool, logger *slog.Logger) (*DocStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &DocStore{pool: pool, logger: logger}, nil
}

// Search runs a cosine similarity search within one partition. When
// allowedTiers is non-nil, results are restricted to documents whose
// access_tier is in the set; a nil slice means the partition is
// tier-agnostic and no filter applies.
func (s *DocStore) Search(ctx context.Context, vec []float32, partitionName string, allowedTiers []int, limit int) ([]Result, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	qv := pgvector.NewVector(vec)

	query := `SELECT id, partition, content, access_tier, metadata, created_at,
	                 1 - (embedding <=> $1) AS similarity
	          FROM partition_documents
	          WHERE partition = $2`
	args := []any{qv, partitionName}
	if allowedTiers != nil {
		query += ` AND access_tier = ANY($3)`
		args = append(args, allowedTiers)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1 LIMIT %d`, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("searching partition %q: %w", partitionName, err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var metadataJSON []byte
		if err := rows.Scan(&r.Document.ID, &r.Document.Partition, &r.Document.Content,
			&r.Document.AccessTier, &metadataJSON, &r.Document.CreatedAt, &r.Similarity); err != nil {
			return nil, fmt.Errorf("scanning partition document: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &r.Document.Metadata); err != nil {
				s.logger.Warn("failed to parse document metadata",
					"document_id", r.Document.ID, "error", err)
				r.Document.Metadata = map[string]string{}
			}
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating partition results: %w", err)
	}
	return results, nil
}

// Upsert inserts or replaces documents with their embeddings.
// docs and vectors must be the same length.
func (s *DocStore) Upsert(ctx context.Context, docs []Document, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("document/vector count mismatch: %d vs %d", len(docs), len(vectors))
	}

	for i, doc := range docs {
		metadataJSON, err := json.Marshal(doc.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling metadata for %q: %w", doc.ID, err)
		}
		vec := pgvector.NewVector(vectors[i])
		_, err = s.pool.Exec(ctx,
			`INSERT INTO partition_documents (id, partition, content, access_tier, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (id) DO UPDATE
			 SET partition = EXCLUDED.partition,
			     content = EXCLUDED.content,
			     access_tier = EXCLUDED.access_tier,
			     metadata = EXCLUDED.metadata,
			     embedding = EXCLUDED.embedding`,
			doc.ID, doc.Partition, doc.Content, doc.AccessTier, metadataJSON, vec,
		)
		if err != nil {
			return fmt.Errorf("upserting document %q: %w", doc.ID, err)
		}
	}

	s.logger.Debug("upserted partition documents", "count", len(docs))
	return nil
}
