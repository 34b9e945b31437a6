// utils/hash.go
package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashPayload returns the sha256 hex digest of a raw snapshot payload. The
// digest is what binds a settlement record to the exact bytes it was
// computed from.
func HashPayload(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
