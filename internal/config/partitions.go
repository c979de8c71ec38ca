package config

// Partition name constants for the built-in domain layout.
const (
	// PricingPartitionName is the dedicated pricing partition. Pricing
	// queries short-circuit to it regardless of other keyword matches.
	PricingPartitionName = "pricing"

	// DefaultPartitionName is the fallback partition used when no
	// keyword signal matches or a referenced partition is missing.
	DefaultPartitionName = "general"
)

// DefaultPricingKeywords are the pricing-intent keywords, including
// localized (Indonesian) equivalents. Order matters only for logging;
// any match short-circuits routing.
var DefaultPricingKeywords = []string{
	"price", "prices", "pricing", "cost", "costs", "how much", "fee", "fees",
	"harga", "biaya", "berapa",
}

// PartitionConfig describes a single domain knowledge partition.
//
// Partitions are static configuration: read-only at request time and
// reloaded only at process start or an explicit admin refresh. The order
// partitions are declared in is a deliberate priority ordering used to
// break keyword-match ties.
type PartitionConfig struct {
	// Name identifies the partition and the rows it owns in
	// partition_documents.
	Name string `mapstructure:"name" json:"name"`

	// AccessTier is the partition's own tier classification (0 = public).
	AccessTier int `mapstructure:"access_tier" json:"access_tier"`

	// PriorityBoost is an additive score adjustment applied to search
	// results from this partition. Final scores are capped at 1.0.
	PriorityBoost float64 `mapstructure:"priority_boost" json:"priority_boost"`

	// RoutingKeywords drive the keyword/intent classifier.
	RoutingKeywords []string `mapstructure:"routing_keywords" json:"routing_keywords"`

	// TierFiltered enables document-level access-tier filtering for this
	// partition. Only partitions holding sensitivity-tiered material set
	// this; all others are tier-agnostic.
	TierFiltered bool `mapstructure:"tier_filtered" json:"tier_filtered"`
}

// DefaultPartitions returns the built-in partition layout for the visa
// services support domain. Declaration order is priority order.
func DefaultPartitions() []PartitionConfig {
	return []PartitionConfig{
		{
			Name:            "visas",
			AccessTier:      0,
			RoutingKeywords: []string{"visa", "kitas", "kitap", "permit", "immigration", "passport", "sponsor", "extension"},
		},
		{
			Name:            "company",
			AccessTier:      1,
			RoutingKeywords: []string{"company", "pt pma", "incorporation", "tax", "license", "legal", "shareholder"},
			TierFiltered:    true,
		},
		{
			Name:            PricingPartitionName,
			AccessTier:      0,
			PriorityBoost:   0.15,
			RoutingKeywords: []string{"price", "cost", "fee", "payment", "invoice"},
		},
		{
			Name:            DefaultPartitionName,
			AccessTier:      0,
			RoutingKeywords: []string{},
		},
	}
}
