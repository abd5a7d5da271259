package account

import (
	"crypto/md5"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// PasswordEncryptor turns clear-text passwords into stored digests and
// checks passwords against them.
type PasswordEncryptor interface {
	// Encrypt returns the digest stored for password.
	Encrypt(password string) (string, error)

	// Matches reports whether password hashes to stored.
	Matches(password, stored string) bool
}

// NewPasswordEncryptor returns the encryptor registered under name
// ("md5" or "argon2id").
func NewPasswordEncryptor(name string) (PasswordEncryptor, error) {
	switch strings.ToLower(name) {
	case "md5":
		return MD5Encryptor{}, nil
	case "argon2id", "argon2":
		return NewArgon2Encryptor(DefaultArgon2Params()), nil
	default:
		return nil, fmt.Errorf("unknown password encryptor: %q", name)
	}
}

// ============================================================================
// MD5
// ============================================================================

// MD5Encryptor stores the hex MD5 digest of the password.
//
// It exists for compatibility with account files written by older
// deployments; prefer Argon2Encryptor for new ones.
type MD5Encryptor struct{}

func (MD5Encryptor) Encrypt(password string) (string, error) {
	sum := md5.Sum([]byte(password))
	return hex.EncodeToString(sum[:]), nil
}

func (e MD5Encryptor) Matches(password, stored string) bool {
	if stored == "" {
		return false
	}
	got, _ := e.Encrypt(password)
	return subtle.ConstantTimeCompare([]byte(got), []byte(strings.ToLower(stored))) == 1
}

// ============================================================================
// Argon2id
// ============================================================================

// Argon2Params tunes Argon2id hashing.
type Argon2Params struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLen     uint32 `mapstructure:"salt_len"`
	KeyLen      uint32 `mapstructure:"key_len"`
}

// DefaultArgon2Params returns 64 MiB, 3 passes, 4 lanes, 16-byte salt and
// 32-byte key.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
		SaltLen:     16,
		KeyLen:      32,
	}
}

// Argon2Encryptor stores PHC-style Argon2id strings:
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt_b64>$<hash_b64>
type Argon2Encryptor struct {
	params Argon2Params
}

// NewArgon2Encryptor creates an encryptor; zero parameters take the defaults.
func NewArgon2Encryptor(p Argon2Params) *Argon2Encryptor {
	d := DefaultArgon2Params()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	if p.SaltLen == 0 {
		p.SaltLen = d.SaltLen
	}
	if p.KeyLen == 0 {
		p.KeyLen = d.KeyLen
	}
	return &Argon2Encryptor{params: p}
}

func (e *Argon2Encryptor) Encrypt(password string) (string, error) {
	salt := make([]byte, e.params.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	h := argon2.IDKey([]byte(password), salt, e.params.Iterations, e.params.Memory, e.params.Parallelism, e.params.KeyLen)
	enc := base64.RawStdEncoding
	return fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		e.params.Memory,
		e.params.Iterations,
		e.params.Parallelism,
		enc.EncodeToString(salt),
		enc.EncodeToString(h),
	), nil
}

func (e *Argon2Encryptor) Matches(password, stored string) bool {
	p, salt, want, err := parsePHC(stored)
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, p.Iterations, p.Memory, p.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

func parsePHC(s string) (Argon2Params, []byte, []byte, error) {
	parts := strings.Split(strings.TrimPrefix(s, "$"), "$")
	if len(parts) != 5 {
		return Argon2Params{}, nil, nil, errors.New("invalid password hash format")
	}
	if parts[0] != "argon2id" {
		return Argon2Params{}, nil, nil, errors.New("unsupported password hash algorithm")
	}
	ver, err := strconv.Atoi(strings.TrimPrefix(parts[1], "v="))
	if err != nil || ver != argon2.Version {
		return Argon2Params{}, nil, nil, errors.New("unsupported argon2 version")
	}

	var p Argon2Params
	for _, kv := range strings.Split(parts[2], ",") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			return Argon2Params{}, nil, nil, errors.New("invalid argon2 parameters")
		}
		switch key {
		case "m":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Argon2Params{}, nil, nil, errors.New("invalid argon2 memory")
			}
			p.Memory = uint32(v)
		case "t":
			v, err := strconv.ParseUint(value, 10, 32)
			if err != nil {
				return Argon2Params{}, nil, nil, errors.New("invalid argon2 iterations")
			}
			p.Iterations = uint32(v)
		case "p":
			v, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return Argon2Params{}, nil, nil, errors.New("invalid argon2 parallelism")
			}
			p.Parallelism = uint8(v)
		default:
			return Argon2Params{}, nil, nil, errors.New("unknown argon2 parameter")
		}
	}

	enc := base64.RawStdEncoding
	salt, err := enc.DecodeString(parts[3])
	if err != nil {
		return Argon2Params{}, nil, nil, errors.New("invalid argon2 salt")
	}
	hash, err := enc.DecodeString(parts[4])
	if err != nil || len(hash) < 16 {
		return Argon2Params{}, nil, nil, errors.New("invalid argon2 hash")
	}
	return p, salt, hash, nil
}
