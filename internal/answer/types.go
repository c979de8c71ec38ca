package answer

import "time"

// CanonicalAnswer is a pre-computed answer for a cluster of
// near-duplicate user questions.
//
// ClusterID is stable: it is derived from the canonical question content
// by the miner, so re-running the miner on unchanged input is idempotent.
// UsageCount never decreases. Confidence is set once at promotion and is
// not mutated by lookups.
type CanonicalAnswer struct {
	ClusterID         string
	CanonicalQuestion string
	AnswerText        string
	Sources           []string
	Confidence        float64
	UsageCount        int64
	LastUsedAt        *time.Time
	CreatedAt         time.Time

	// QuestionEmbedding is the cached embedding of CanonicalQuestion.
	// Loaded only by TopByUsage for the resolver's candidate snapshot.
	QuestionEmbedding []float32
}

// Variant maps a normalized query hash to a cluster. Many variants may
// point at the same cluster; a hash maps to exactly one cluster.
type Variant struct {
	QueryHash string
	ClusterID string
	RawText   string
}

// Stats aggregates usage for dashboards. It is informational only and
// never feeds serving decisions.
type Stats struct {
	TotalAnswers  int64       `json:"total_answers"`
	TotalUsage    int64       `json:"total_usage"`
	AvgConfidence float64     `json:"avg_confidence"`
	TopAnswers    []TopAnswer `json:"top_answers"`
}

// TopAnswer is one row of the most-used canonical answers list.
type TopAnswer struct {
	ClusterID         string `json:"cluster_id"`
	CanonicalQuestion string `json:"canonical_question"`
	UsageCount        int64  `json:"usage_count"`
}
