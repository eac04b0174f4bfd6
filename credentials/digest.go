package credentials

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the bearer digest for a credential: the lowercase hex
// SHA-256 of "user:token". Clients present this value instead of the token.
func Digest(user, token string) string {
	h := sha256.New()
	h.Write([]byte(user))
	h.Write([]byte{':'})
	h.Write([]byte(token))
	return hex.EncodeToString(h.Sum(nil))
}
