package miner

import "time"

// TimeRange bounds one mining run: records with
// From <= created_at < To are read.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Member is one unique query phrasing inside a cluster, with its
// occurrence count in the source window.
type Member struct {
	Text      string `json:"text"`
	Frequency int    `json:"frequency"`
}

// Cluster is a group of near-duplicate question phrasings found by one
// mining run. Clusters are transient: only promoted clusters feed the
// canonical answer store.
type Cluster struct {
	// ClusterID is derived from the canonical question content, so
	// re-running the miner on unchanged input produces the same ID.
	ClusterID string `json:"cluster_id"`

	// CanonicalQuestion is the member whose embedding is closest to the
	// cluster centroid, minimizing expected distance to future unseen
	// paraphrases of the same intent.
	CanonicalQuestion string `json:"canonical_question"`

	Members []Member `json:"members"`

	// TotalFrequency is the summed occurrence count of all members.
	TotalFrequency int `json:"total_frequency"`

	// AvgInternalSimilarity is the mean pairwise cosine similarity among
	// members: a tightness diagnostic for operator review, not a
	// rejection criterion.
	AvgInternalSimilarity float64 `json:"avg_internal_similarity"`
}

// Coverage quantifies how much of the window's query volume the mined
// clusters explain. It guides how many canonical answers are worth
// hand-curating.
type Coverage struct {
	TotalQueries     int     `json:"total_queries"`
	ClusteredQueries int     `json:"clustered_queries"`
	TotalPercent     float64 `json:"total_percent"`
	Top10Percent     float64 `json:"top10_percent"`
	Top50Percent     float64 `json:"top50_percent"`
}

// Report is the output of one mining run: a prioritized worklist for
// answer curation, not an automated write path.
type Report struct {
	Window            TimeRange `json:"window"`
	UniqueQueries     int       `json:"unique_queries"`
	SkippedEmbeddings int       `json:"skipped_embeddings"`
	Clusters          []Cluster `json:"clusters"`
	Coverage          Coverage  `json:"coverage"`
}
