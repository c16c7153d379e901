// Package sha256 provides SHA-256 hashing helpers for content keys.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex digest of data.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SumString returns the hex digest of s truncated to n characters. It is used
// to derive short, collision-resistant file name suffixes from URLs.
func SumString(s string, n int) string {
	digest := Sum([]byte(s))
	if n > 0 && n < len(digest) {
		return digest[:n]
	}
	return digest
}
