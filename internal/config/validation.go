package config

import (
	"fmt"
	"strings"
)

// validSSLModes are the PostgreSQL SSL modes accepted by pgx.
var validSSLModes = map[string]struct{}{
	"disable":     {},
	"allow":       {},
	"prefer":      {},
	"require":     {},
	"verify-ca":   {},
	"verify-full": {},
}

// Validate checks the configuration for correctness. It is called by
// Load() immediately after unmarshalling (fail-fast) and returns sentinel
// errors wrapped with context.
func (c *Config) Validate() error {
	if c.Provider != ProviderGemini && c.Provider != ProviderOllama {
		return fmt.Errorf("%w: %q (expected %q or %q)",
			ErrInvalidProvider, c.Provider, ProviderGemini, ProviderOllama)
	}

	if strings.TrimSpace(c.EmbedderModel) == "" {
		return fmt.Errorf("%w: embedder model must not be empty", ErrInvalidEmbedderModel)
	}

	if strings.TrimSpace(c.PostgresHost) == "" {
		return fmt.Errorf("%w: host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d (expected 1-65535)", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if strings.TrimSpace(c.PostgresDBName) == "" {
		return fmt.Errorf("%w: database name must not be empty", ErrInvalidPostgresDBName)
	}
	if _, ok := validSSLModes[c.PostgresSSLMode]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("%w: %g (expected 0 < t <= 1)", ErrInvalidThreshold, c.SimilarityThreshold)
	}
	if c.CandidateLimit < 1 || c.CandidateLimit > 1000 {
		return fmt.Errorf("%w: %d (expected 1-1000)", ErrInvalidCandidateLimit, c.CandidateLimit)
	}

	// Below 3 members a "cluster" is just a repeated phrasing; the miner
	// refuses to treat pairs as clusters.
	if c.MinClusterSize < 3 {
		return fmt.Errorf("%w: %d (expected >= 3)", ErrInvalidMinClusterSize, c.MinClusterSize)
	}

	return nil
}

// PartitionsOrDefault returns the configured partitions, falling back to
// the built-in layout when the config file declares none.
func (c *Config) PartitionsOrDefault() []PartitionConfig {
	if len(c.Partitions) > 0 {
		return c.Partitions
	}
	return DefaultPartitions()
}

// PricingKeywordsOrDefault returns the configured pricing keywords,
// falling back to the built-in list.
func (c *Config) PricingKeywordsOrDefault() []string {
	if len(c.PricingKeywords) > 0 {
		return c.PricingKeywords
	}
	return DefaultPricingKeywords
}
