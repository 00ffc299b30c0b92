package tokens

import "time"

// Type distinguishes access tokens from renewal tokens.
type Type string

const (
	TypeAccess  Type = "access"
	TypeRenewal Type = "renewal"
)

// Claims is the verified content of a token.
type Claims struct {
	AccountID string
	Role      string // empty on renewal tokens
	SessionID string
	Type      Type
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Codec signs and verifies one kind of token with one key.
type Codec interface {
	Encode(c Claims) (string, error)
	// Decode verifies the token at now. It returns ErrExpired or ErrInvalid.
	Decode(token string, now time.Time) (Claims, error)
}
