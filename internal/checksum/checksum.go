// Package checksum provides content hashing for files and vector keys.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// VectorKey derives the stable key for one embedded chunk. Re-ingesting
// identical content for the same source produces the same key, which is what
// makes upserts into the vector index idempotent.
func VectorKey(source string, chunkIndex int, chunkText string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%s|%d|%s", source, chunkIndex, chunkText))
	return hex.EncodeToString(h[:])
}
