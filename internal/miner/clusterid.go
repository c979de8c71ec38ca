package miner

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/askbase/askbase/internal/resolver"
)

// clusterIDBytes is the truncated hash length; 16 hex characters keep
// IDs readable in reports and logs while leaving collisions negligible
// at canonical-question scale.
const clusterIDBytes = 8

// ClusterID derives a stable cluster identifier from the canonical
// question content. Deterministic, so re-running the miner on unchanged
// input is idempotent.
func ClusterID(canonicalQuestion string) string {
	sum := sha256.Sum256([]byte(resolver.Normalize(canonicalQuestion)))
	return "c_" + hex.EncodeToString(sum[:clusterIDBytes])
}
