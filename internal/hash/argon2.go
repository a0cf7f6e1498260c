// Package hash provides the password hashing capability used by the bank:
// argon2id digests in the standard PHC string format. Callers never compare
// digests directly; they go through Verify.
package hash

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2 parameters. Memory is in KiB.
const (
	defaultTime    = 3
	defaultMemory  = 64 * 1024
	defaultThreads = 4
	saltLen        = 16
	keyLen         = 32
)

// Argon2 hashes and verifies passwords with argon2id.
// The zero value is not usable; call New.
type Argon2 struct {
	time    uint32
	memory  uint32
	threads uint8
}

// New returns an Argon2 hasher with the default parameters.
func New() *Argon2 {
	return &Argon2{time: defaultTime, memory: defaultMemory, threads: defaultThreads}
}

// Hash derives a digest for password and encodes it as a PHC string,
// e.g. $argon2id$v=19$m=65536,t=3,p=4$<salt>$<key>.
func (h *Argon2) Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.time, h.memory, h.threads, keyLen)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify reports whether password matches the PHC-encoded digest.
// Malformed digests verify as false rather than returning an error;
// a failed verification must never be treated as fatal by callers.
func (h *Argon2) Verify(digest, password string) bool {
	salt, key, time, memory, threads, ok := decode(digest)
	if !ok {
		return false
	}

	derived := argon2.IDKey([]byte(password), salt, time, memory, threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

func decode(digest string) (salt, key []byte, time, memory uint32, threads uint8, ok bool) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return nil, nil, 0, 0, 0, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, 0, 0, 0, false
	}

	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &p); err != nil {
		return nil, nil, 0, 0, 0, false
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return nil, nil, 0, 0, 0, false
	}
	key, err = b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, nil, 0, 0, 0, false
	}

	return salt, key, time, memory, p, true
}
