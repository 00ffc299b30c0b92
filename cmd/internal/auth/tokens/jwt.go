package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type jwtClaims struct {
	Role string `json:"role,omitempty"`
	SID  string `json:"sid"`
	Typ  Type   `json:"typ"`
	jwt.RegisteredClaims
}

type jwtCodec struct {
	issuer string
	skew   time.Duration
	secret []byte
}

// NewJWTCodec returns an HS256 codec.
func NewJWTCodec(issuer string, secret []byte, skew time.Duration) Codec {
	return &jwtCodec{issuer: issuer, skew: skew, secret: secret}
}

func (c *jwtCodec) Encode(cl Claims) (string, error) {
	claims := jwtClaims{
		Role: cl.Role,
		SID:  cl.SessionID,
		Typ:  cl.Type,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   cl.AccountID,
			IssuedAt:  jwt.NewNumericDate(cl.IssuedAt),
			NotBefore: jwt.NewNumericDate(cl.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(cl.ExpiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *jwtCodec) Decode(token string, now time.Time) (Claims, error) {
	var claims jwtClaims
	_, err := jwt.ParseWithClaims(token, &claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.skew),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpired
		}
		return Claims{}, ErrInvalid
	}
	if claims.Subject == "" || claims.SID == "" {
		return Claims{}, ErrInvalid
	}

	out := Claims{
		AccountID: claims.Subject,
		Role:      claims.Role,
		SessionID: claims.SID,
		Type:      claims.Typ,
		Issuer:    claims.Issuer,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}
