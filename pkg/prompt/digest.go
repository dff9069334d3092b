package prompt

import (
	"crypto/sha256"
	"encoding/hex"
)

func computeDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Digest returns the hex SHA-256 of an already-rendered prompt, for callers
// that build prompts in code rather than from a template file.
func Digest(rendered string) string {
	return computeDigest([]byte(rendered))
}
