// Package sha256 computes content checksums for uploaded scrape objects.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Prefix marks a checksum's algorithm in upload notices.
const Prefix = "sha256:"

// Sum returns the prefixed hex digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return Prefix + hex.EncodeToString(sum[:])
}
