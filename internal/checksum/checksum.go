// Package checksum computes content digests used for equality comparison.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/starford/cfgswap/internal/canonical"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Content returns the digest of the canonical form of data, so documents
// that differ only in key order or formatting hash identically.
func Content(data []byte) (string, error) {
	c, err := canonical.Canonicalize(data)
	if err != nil {
		return "", err
	}
	return Sum(c), nil
}

// ContentOrRaw hashes the canonical form when data parses and the raw bytes
// otherwise. The boolean reports whether the canonical form was used.
func ContentOrRaw(data []byte) (string, bool) {
	if h, err := Content(data); err == nil {
		return h, true
	}
	return Sum(data), false
}
