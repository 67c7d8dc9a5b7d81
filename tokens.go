package accounts

import (
	"crypto/rand"
	"math/big"
)

// Opaque tokens are random alphanumeric strings used purely as lookup keys;
// they carry no decodable structure.
const tokenAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

const (
	// VerificationTokenLength is the width of email-verification and
	// password-reset tokens. Deliberately short and human-typeable, traded
	// off against brute force by the 15 minute TTL and edge rate limiting.
	VerificationTokenLength = 4
	// SessionTokenLength makes token collisions birthday-bound negligible
	// and enumeration infeasible.
	SessionTokenLength = 32
)

// GenerateToken returns a fresh random alphanumeric token of the given
// length, sourced from crypto/rand.
func GenerateToken(length int) string {
	if length <= 0 {
		return ""
	}

	max := big.NewInt(int64(len(tokenAlphabet)))
	out := make([]byte, length)
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the platform entropy source is
			// broken; nothing sensible to degrade to.
			panic("accounts: crypto/rand unavailable: " + err.Error())
		}
		out[i] = tokenAlphabet[n.Int64()]
	}

	return string(out)
}
