package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const (
	phcPrefix     = "$argon2id$v=" + phcVersion + "$"
	phcVersion    = "19"
	maxBcryptCost = 15
)

var b64 = base64.RawStdEncoding

// phc is a decoded $argon2id$v=19$m=..,t=..,p=..$salt$key string.
type phc struct {
	params Argon2idParams
	salt   []byte
	key    []byte
}

func (p phc) String() string {
	return fmt.Sprintf("%sm=%d,t=%d,p=%d$%s$%s",
		phcPrefix, p.params.MemoryKiB, p.params.Iterations, p.params.Parallelism,
		b64.EncodeToString(p.salt), b64.EncodeToString(p.key))
}

func parsePHC(s string) (phc, error) {
	rest, ok := strings.CutPrefix(s, phcPrefix)
	if !ok {
		return phc{}, ErrInvalidHash
	}
	fields := strings.Split(rest, "$")
	if len(fields) != 3 {
		return phc{}, ErrInvalidHash
	}

	var p phc
	for _, kv := range strings.Split(fields[0], ",") {
		k, v, _ := strings.Cut(kv, "=")
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || n == 0 {
			return phc{}, ErrInvalidHash
		}
		switch k {
		case "m":
			p.params.MemoryKiB = uint32(n)
		case "t":
			p.params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return phc{}, ErrInvalidHash
			}
			p.params.Parallelism = uint8(n)
		default:
			return phc{}, ErrInvalidHash
		}
	}
	if p.params.MemoryKiB == 0 || p.params.Iterations == 0 || p.params.Parallelism == 0 {
		return phc{}, ErrInvalidHash
	}

	var err error
	if p.salt, err = b64.DecodeString(fields[1]); err != nil {
		return phc{}, ErrInvalidHash
	}
	if p.key, err = b64.DecodeString(fields[2]); err != nil {
		return phc{}, ErrInvalidHash
	}
	p.params.SaltLength = uint32(len(p.salt)) // #nosec G115 -- checked by affordable.
	p.params.KeyLength = uint32(len(p.key))   // #nosec G115 -- checked by affordable.
	return p, nil
}

// affordable rejects hashes whose cost is far above the configured one.
// Cheaper legacy hashes still verify.
func (p phc) affordable(limit Argon2idParams) bool {
	return p.params.MemoryKiB <= limit.MemoryKiB*2 &&
		p.params.Iterations <= limit.Iterations*2 &&
		p.params.Parallelism <= limit.Parallelism*2 &&
		len(p.salt) >= 8 && len(p.salt) <= 64 &&
		len(p.key) >= 16 && len(p.key) <= 128
}

func (p phc) derive(password string) []byte {
	return argon2.IDKey([]byte(password), p.salt,
		p.params.Iterations, p.params.MemoryKiB, p.params.Parallelism,
		uint32(len(p.key))) // #nosec G115 -- bounded by affordable.
}

// Hash checks password against the policy and returns its Argon2id encoding.
func (c Config) Hash(password string) (string, error) {
	if err := c.Validate(password); err != nil {
		return "", err
	}
	return c.hash(password)
}

// DummyHash hashes a random secret with the live parameters. Verifying against
// it costs what verifying a real account does.
func (c Config) DummyHash() (string, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return "", fmt.Errorf("dummy secret: %w", err)
	}
	return c.hash(b64.EncodeToString(secret))
}

func (c Config) hash(password string) (string, error) {
	p := phc{params: c.Params, salt: make([]byte, c.Params.SaltLength), key: make([]byte, c.Params.KeyLength)}
	if _, err := rand.Read(p.salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}
	p.key = p.derive(password)
	return p.String(), nil
}

// Verify reports whether password matches encoded. Malformed or unsupported
// encodings return ErrInvalidHash. Legacy bcrypt hashes are accepted.
func (c Config) Verify(encoded, password string) (bool, error) {
	if isBcrypt(encoded) {
		return verifyBcrypt(encoded, password)
	}

	p, err := parsePHC(encoded)
	if err != nil {
		return false, err
	}
	if !p.affordable(c.Params) {
		return false, ErrInvalidHash
	}
	return subtle.ConstantTimeCompare(p.derive(password), p.key) == 1, nil
}

// NeedsRehash reports whether encoded predates the current algorithm or parameters.
func (c Config) NeedsRehash(encoded string) bool {
	if isBcrypt(encoded) {
		return true
	}
	p, err := parsePHC(encoded)
	if err != nil {
		return true
	}
	return p.params.MemoryKiB < c.Params.MemoryKiB ||
		p.params.Iterations < c.Params.Iterations ||
		p.params.KeyLength < c.Params.KeyLength
}

func isBcrypt(encoded string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(encoded, prefix) {
			return true
		}
	}
	return false
}

func verifyBcrypt(encoded, password string) (bool, error) {
	if cost, err := bcrypt.Cost([]byte(encoded)); err != nil || cost > maxBcryptCost {
		return false, ErrInvalidHash
	}
	err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, ErrInvalidHash
	}
	return true, nil
}
