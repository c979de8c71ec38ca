package router

// MaxUserTier is the highest user tier; tiers above it are clamped.
const MaxUserTier = 3

// AllowedTiers maps a user tier to the set of document access tiers the
// user may see. The mapping widens monotonically: tier 0 sees only
// public documents, tier 3 sees everything. Negative tiers clamp to 0.
func AllowedTiers(userTier int) []int {
	if userTier < 0 {
		userTier = 0
	}
	if userTier > MaxUserTier {
		userTier = MaxUserTier
	}
	tiers := make([]int, 0, userTier+1)
	for t := 0; t <= userTier; t++ {
		tiers = append(tiers, t)
	}
	return tiers
}
