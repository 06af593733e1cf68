package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// maxPasswordBytes caps accepted password length. Oversized input is
// rejected with ErrPasswordTooLong rather than truncated.
const maxPasswordBytes = 256

// Argon2idParams configures Argon2id key derivation for password hashing.
type Argon2idParams struct {
	Time        uint32
	MemoryKiB   uint32
	Parallelism uint8
	SaltLen     uint32
	KeyLen      uint32
}

// DefaultArgon2idParams returns the production hashing parameters.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		Time:        1,
		MemoryKiB:   64 * 1024,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// CredentialManager hashes and verifies account passwords using Argon2id
// with a per-credential random salt, encoded in PHC string format.
type CredentialManager struct {
	params Argon2idParams
}

// NewCredentialManager creates a credential manager. Zero-valued fields in
// params fall back to the defaults.
func NewCredentialManager(params Argon2idParams) *CredentialManager {
	def := DefaultArgon2idParams()
	if params.Time == 0 {
		params.Time = def.Time
	}
	if params.MemoryKiB == 0 {
		params.MemoryKiB = def.MemoryKiB
	}
	if params.Parallelism == 0 {
		params.Parallelism = def.Parallelism
	}
	if params.SaltLen == 0 {
		params.SaltLen = def.SaltLen
	}
	if params.KeyLen == 0 {
		params.KeyLen = def.KeyLen
	}
	return &CredentialManager{params: params}
}

// Hash derives a salted Argon2id hash of plain and returns it in PHC form:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<b64 salt>$<b64 key>
//
// Fails with ErrPasswordRequired for empty input and ErrPasswordTooLong for
// input over maxPasswordBytes.
func (m *CredentialManager) Hash(plain string) (string, error) {
	if plain == "" {
		return "", ErrPasswordRequired
	}
	if len(plain) > maxPasswordBytes {
		return "", ErrPasswordTooLong
	}
	salt := make([]byte, m.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	key := argon2.IDKey([]byte(plain), salt, m.params.Time, m.params.MemoryKiB, m.params.Parallelism, m.params.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		m.params.MemoryKiB, m.params.Time, m.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether plain matches the encoded credential. The key
// comparison is constant-time. Malformed credentials verify as false.
func (m *CredentialManager) Verify(plain, encoded string) bool {
	if plain == "" || len(plain) > maxPasswordBytes {
		return false
	}
	params, salt, key, err := decodeCredential(encoded)
	if err != nil {
		return false
	}
	derived := argon2.IDKey([]byte(plain), salt, params.Time, params.MemoryKiB, params.Parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(derived, key) == 1
}

// decodeCredential parses a PHC-format argon2id string. Parameter bounds are
// checked so a tampered credential cannot drive memory use arbitrarily high
// during verification.
func decodeCredential(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, fmt.Errorf("malformed credential")
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idParams{}, nil, nil, fmt.Errorf("unsupported argon2 version")
	}
	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Parallelism); err != nil {
		return Argon2idParams{}, nil, nil, fmt.Errorf("malformed parameters")
	}
	if p.Time == 0 || p.Parallelism == 0 || p.MemoryKiB < 8*1024 || p.MemoryKiB > 1024*1024 {
		return Argon2idParams{}, nil, nil, fmt.Errorf("parameters out of bounds")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < 8 {
		return Argon2idParams{}, nil, nil, fmt.Errorf("malformed salt")
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) < 16 {
		return Argon2idParams{}, nil, nil, fmt.Errorf("malformed key")
	}
	return p, salt, key, nil
}
