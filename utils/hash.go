package utils

import (
	"crypto/sha256"
	"encoding/hex"
)

// ContentFingerprint hashes raw PDF bytes. Matching fingerprints mean the
// upstream document has not changed and re-ingestion can be skipped.
func ContentFingerprint(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
