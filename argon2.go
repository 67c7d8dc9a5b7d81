package accounts

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"golang.org/x/crypto/argon2"
)

// Argon2id parameters, vendor-recommended defaults for interactive logins.
const (
	argonTime    uint32 = 1
	argonMemory  uint32 = 64 * 1024
	argonThreads uint8  = 4
	argonKeyLen  uint32 = 32
	argonSaltLen        = 16
)

// HashPassword will generate an Argon2id password hash in PHC string format.
// Any input is hashable, including the empty string; the per-call random
// salt means two calls with the same password never produce the same output.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate password salt")
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)

	return encoded, nil
}

// ComparePasswordAndHash will validate the given cleartext password against
// the stored hash. A malformed or foreign hash format is reported the same
// way as a wrong password so callers never leak which one it was.
func ComparePasswordAndHash(password, hash string) error {
	salt, key, time, memory, threads, err := decodeArgon2Hash(hash)
	if err != nil {
		return ErrMismatchedHashAndPassword
	}

	other := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(key)))
	if subtle.ConstantTimeCompare(key, other) != 1 {
		return ErrMismatchedHashAndPassword
	}

	return nil
}

// RandomPasswordHash is a throwaway hash for placeholder accounts.
func RandomPasswordHash() string {
	h, err := HashPassword(uuid.New().String())
	if err != nil {
		return RandomPasswordHash()
	}
	return h
}

func decodeArgon2Hash(hash string) (salt, key []byte, time, memory uint32, threads uint8, err error) {
	parts := strings.Split(hash, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported hash format")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, 0, 0, 0, err
	}
	if version != argon2.Version {
		return nil, nil, 0, 0, 0, fmt.Errorf("unsupported argon2 version %d", version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return nil, nil, 0, 0, 0, err
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, 0, 0, 0, err
	}

	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, 0, 0, 0, err
	}

	// argon2.IDKey panics on zero rounds/threads and a zero key length
	// crashes inside blake2b, so hostile parameter values are rejected here
	if len(key) == 0 || time == 0 || threads == 0 {
		return nil, nil, 0, 0, 0, fmt.Errorf("invalid hash parameters")
	}

	return salt, key, time, memory, threads, nil
}
