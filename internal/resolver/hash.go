package resolver

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Normalize canonicalizes a raw query for hashing: lower-cased and
// trimmed of surrounding whitespace.
func Normalize(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// HashQuery returns the content hash of the normalized query. Casing and
// surrounding whitespace never change the hash.
func HashQuery(query string) string {
	sum := sha256.Sum256([]byte(Normalize(query)))
	return hex.EncodeToString(sum[:])
}
