package privacy

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashText returns a stable hex digest of the given text. It is used both as
// a content fingerprint for embeddings (skip re-embedding unchanged text) and
// as an identifier-safe stand-in wherever raw message content must not be
// written to logs or metadata.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
