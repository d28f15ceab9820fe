// Package auth hashes and verifies user passwords with Argon2id.
package auth

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/requestmanager/internal/common"
	"golang.org/x/crypto/argon2"
)

// Params are the Argon2id cost parameters. Memory is in KiB.
type Params struct {
	Time    uint32
	Memory  uint32
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultParams match the hashes already stored by existing deployments.
var DefaultParams = Params{
	Time:    3,
	Memory:  102400,
	Threads: 4,
	KeyLen:  32,
	SaltLen: 16,
}

// Upper bounds accepted when decoding a stored hash. Verify allocates the
// memory named in the stored string, so one tampered row must not cost more
// than a few default logins.
const (
	maxMemory = 4 * 102400 // KiB, four times DefaultParams.Memory
	maxTime   = 64
	maxKeyLen = 1024
)

var errMalformedHash = errors.New("malformed argon2id hash")

// Hasher produces and checks Argon2id PHC strings.
type Hasher struct {
	params Params
}

// NewHasher returns a Hasher that hashes new passwords with p.
func NewHasher(p Params) *Hasher {
	return &Hasher{params: p}
}

// Hash returns plaintext hashed with a fresh random salt, in PHC form:
// $argon2id$v=19$m=102400,t=3,p=4$<salt>$<hash>
func (h *Hasher) Hash(plaintext string) (string, error) {
	salt, err := common.GenerateRandByteArray(int(h.params.SaltLen))
	if err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(plaintext), salt, h.params.Time, h.params.Memory, h.params.Threads, h.params.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Time, h.params.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plaintext matches encoded. Malformed or unsupported
// hashes never match. The cost parameters are taken from encoded, not from h.
func (h *Hasher) Verify(encoded, plaintext string) bool {
	salt, key, p, err := decodePHC(encoded)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(plaintext), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, candidate) == 1
}

func decodePHC(encoded string) (salt, key []byte, p Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, nil, p, errMalformedHash
	}
	if parts[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("unsupported algorithm %q", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, p, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("unsupported version %d", version)
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return nil, nil, p, fmt.Errorf("parsing parameters: %w", err)
	}
	if p.Time == 0 || p.Time > maxTime || p.Threads == 0 || p.Memory == 0 || p.Memory > maxMemory {
		return nil, nil, p, errMalformedHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, p, fmt.Errorf("decoding salt: %w", err)
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, nil, p, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 || len(key) > maxKeyLen {
		return nil, nil, p, errMalformedHash
	}
	return salt, key, p, nil
}
