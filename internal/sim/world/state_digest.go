package world

import (
	"crypto/sha256"
	"encoding/hex"

	"meshwalk.io/internal/protocol"
)

// stateDigest hashes the canonical (join-ordered) state encoding, so two
// runs that agree on every entity produce the same digest.
func stateDigest(st protocol.State) string {
	b, err := protocol.AppendState(nil, st, -1)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
