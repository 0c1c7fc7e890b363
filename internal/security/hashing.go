package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id defaults (OWASP): 3 passes over 64 MiB, one lane.
const (
	DefaultArgonTime      = 3
	DefaultArgonMemoryKiB = 64 * 1024
	DefaultArgonThreads   = 1

	argonKeyLen  = 32
	argonSaltLen = 16
)

// ErrInvalidHashParams is returned by NewHasher for out-of-range argon2 parameters.
var ErrInvalidHashParams = errors.New("invalid argon2 parameters")

// Hasher hashes and verifies passwords with argon2id. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Time      uint32
	MemoryKiB uint32
	Threads   uint8

	// dummy is a well-formed hash used by VerifyDummy so that logins for unknown
	// accounts cost one full argon2 computation.
	dummy string
}

// NewHasher returns a Hasher with the given argon2id cost. Zero values select the defaults.
func NewHasher(time, memoryKiB uint32, threads uint8) (*Hasher, error) {
	if time == 0 {
		time = DefaultArgonTime
	}
	if memoryKiB == 0 {
		memoryKiB = DefaultArgonMemoryKiB
	}
	if threads == 0 {
		threads = DefaultArgonThreads
	}
	if memoryKiB < 8*uint32(threads) {
		return nil, ErrInvalidHashParams
	}
	h := &Hasher{Time: time, MemoryKiB: memoryKiB, Threads: threads}
	dummy, err := h.Hash("dummy-password-for-timing")
	if err != nil {
		return nil, err
	}
	h.dummy = dummy
	return h, nil
}

// Hash produces an argon2id hash of password in PHC string format:
// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>. Every call embeds a fresh salt,
// so equal inputs never produce equal outputs.
func (h *Hasher) Hash(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(password), salt, h.Time, h.MemoryKiB, h.Threads, argonKeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.MemoryKiB, h.Time, h.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encodedHash. The cost parameters are
// read from the hash, not from h, so hashes minted under older settings keep
// verifying. A malformed hash yields false.
func (h *Hasher) Verify(encodedHash, password string) bool {
	p, salt, key, err := decodePHC(encodedHash)
	if err != nil {
		return false
	}
	candidate := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(key))) //nolint:gosec // key length is bounded by decodePHC
	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// VerifyDummy performs one verification against a fixed hash and discards the
// result. Used when the account does not exist.
func (h *Hasher) VerifyDummy(password string) {
	_ = h.Verify(h.dummy, password)
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

func decodePHC(encoded string) (p argonParams, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return p, nil, nil, errors.New("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return p, nil, nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}
	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return p, nil, nil, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return p, nil, nil, fmt.Errorf("unsupported argon2 version %d", version)
	}
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return p, nil, nil, fmt.Errorf("parsing parameters: %w", err)
	}
	if p.time == 0 || p.threads == 0 || p.memory < 8*uint32(p.threads) {
		return p, nil, nil, ErrInvalidHashParams
	}
	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, nil, nil, fmt.Errorf("decoding salt: %w", err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return p, nil, nil, fmt.Errorf("decoding hash: %w", err)
	}
	if len(key) == 0 || len(key) > 1024 {
		return p, nil, nil, errors.New("invalid hash length")
	}
	return p, salt, key, nil
}
