// Package ids mints account, session and connection identifiers.
package ids

import (
	"crypto/rand"
	"encoding/base64"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultOpaqueBytes is used when NewOpaque is given a non-positive size.
const DefaultOpaqueBytes = 32

var (
	entropyMu sync.Mutex
	entropy   io.Reader = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a 26-char ULID stamped with now. Ids minted within the same
// millisecond still sort in creation order.
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now()
	}

	entropyMu.Lock()
	id, err := ulid.New(ulid.Timestamp(now.UTC()), entropy)
	entropyMu.Unlock()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// IsULID reports whether s parses as a ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}

// NewOpaque returns n random bytes as unpadded base64url.
func NewOpaque(n int) (string, error) {
	if n <= 0 {
		n = DefaultOpaqueBytes
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
