package cache

import (
	"crypto/sha256"
	"encoding/hex"
)

// hashKey returns prefix:hash(part) with the hash shortened to 16 hex
// characters, which is plenty to tell tile sources apart.
func hashKey(prefix, part string) string {
	return prefix + ":" + Hash([]byte(part))[:16]
}

// Hash computes a SHA-256 hash of the input data.
// Returns the full 64-character hex string.
func Hash(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
