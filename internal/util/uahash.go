package util

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashUserAgent returns the hex SHA-256 fingerprint of a client User-Agent.
// The raw string is never persisted; storing only the hash keeps audit rows
// useful for correlation while minimizing retained client data. An empty
// input yields an empty fingerprint.
func HashUserAgent(ua string) string {
	if ua == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(ua))
	return hex.EncodeToString(sum[:])
}
