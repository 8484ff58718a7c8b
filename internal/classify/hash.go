package classify

import (
	"crypto/sha256"
	"encoding/hex"
)

// Hash computes the SHA-256 hex digest over raw bytes. Collision
// resistance only matters for avoiding accidental dedup collisions.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashContent computes the identity/dedup key of a classified payload.
// It is a pure function of kind plus canonical bytes, stable across runs.
func HashContent(c Content) string {
	return Hash(c.CanonicalBytes())
}
