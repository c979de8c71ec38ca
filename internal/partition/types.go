package partition

import "time"

// Document is a knowledge document stored in one partition.
//
// Known fields are modeled explicitly; Metadata carries unmodeled
// extension data as a plain string map.
type Document struct {
	ID         string            `json:"id"`
	Partition  string            `json:"partition"`
	Content    string            `json:"content"`
	AccessTier int               `json:"access_tier"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Result is a single search result with its adjusted score.
type Result struct {
	Document   Document `json:"document"`
	Similarity float64  `json:"similarity"`
}
