package token

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/iliyamo/tenant-auth/internal/utils"
)

// RefreshToken represents a long-lived opaque token used to obtain new
// access tokens. Raw holds the value returned to the client; in the
// database only a SHA-256 hash of it is stored, so a leaked table cannot
// be used to refresh sessions. Exp records when it expires.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

// NewRefreshToken returns a cryptographically secure random token and
// its expiration time. Unlike access tokens this is not a signed
// structured token; validity is established only by exact hash match
// against the stored session row.
func NewRefreshToken(ttl time.Duration) (RefreshToken, error) {
	raw, err := utils.RandomHex(64) // 64 bytes -> 128 hex chars
	if err != nil {
		return RefreshToken{}, err
	}
	return RefreshToken{
		Raw: raw,
		Exp: time.Now().UTC().Add(ttl),
	}, nil
}

// HashRaw returns the SHA-256 hash of a raw secret (refresh token,
// password reset token or API key) as a hex string.
func HashRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
