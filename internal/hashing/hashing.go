// Package hashing computes the canonical content hash used to compare a locally
// built program binary with the bytes stored on the ledger.
//
// Ledger accounts are allocated at a fixed size and zero-padded, so a deployed
// program and its freshly built counterpart differ only by trailing zero bytes.
// Normalize strips that trailing run before hashing. A binary that really ends
// in zero bytes is stripped too; callers accept that approximation.
package hashing

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// CanonicalHash is the hex-encoded SHA-256 digest of a normalized buffer.
type CanonicalHash string

// String returns the hex digest.
func (h CanonicalHash) String() string { return string(h) }

// Equal compares two hashes by value.
func (h CanonicalHash) Equal(other CanonicalHash) bool { return h == other }

// TrimTrailingZeros returns data without its trailing run of zero bytes.
// Leading and interior zeros are kept. The result aliases data.
func TrimTrailingZeros(data []byte) []byte {
	return bytes.TrimRight(data, "\x00")
}

// Normalize strips trailing zero padding and hashes what remains.
func Normalize(data []byte) CanonicalHash {
	sum := sha256.Sum256(TrimTrailingZeros(data))
	return CanonicalHash(hex.EncodeToString(sum[:]))
}

// HashFile reads the file at path and returns its canonical hash.
func HashFile(path string) (CanonicalHash, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading %s for hashing: %w", path, err)
	}
	return Normalize(data), nil
}
