package tokens

import (
	"fmt"
	"strings"
	"time"
)

// Issuer mints and verifies access and renewal tokens with separate keys.
type Issuer struct {
	cfg     Config
	access  Codec
	renewal Codec
}

// NewIssuer validates cfg and builds the codecs for cfg.Format.
func NewIssuer(cfg Config) (*Issuer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	i := &Issuer{cfg: cfg}
	switch cfg.Format {
	case FormatJWT:
		i.access = NewJWTCodec(cfg.Issuer, []byte(cfg.AccessSecret), cfg.ClockSkew)
		i.renewal = NewJWTCodec(cfg.Issuer, []byte(cfg.RenewalSecret), cfg.ClockSkew)
	case FormatPASETO:
		var err error
		if i.access, err = NewPasetoV4PublicCodec(cfg.Issuer, strings.TrimSpace(cfg.AccessKeyHex), cfg.ClockSkew); err != nil {
			return nil, fmt.Errorf("%w: access key", err)
		}
		if i.renewal, err = NewPasetoV4PublicCodec(cfg.Issuer, strings.TrimSpace(cfg.RenewalKeyHex), cfg.ClockSkew); err != nil {
			return nil, fmt.Errorf("%w: renewal key", err)
		}
	}
	return i, nil
}

// AccessTTL returns the configured access-token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.cfg.AccessTTL }

// RenewalTTL returns the configured renewal-token lifetime.
func (i *Issuer) RenewalTTL() time.Duration { return i.cfg.RenewalTTL }

// IssueAccessToken mints a short-lived bearer token for sessionID.
func (i *Issuer) IssueAccessToken(accountID, role, sessionID string, now time.Time) (string, time.Time, error) {
	return i.issue(i.access, Claims{
		AccountID: accountID,
		Role:      role,
		SessionID: sessionID,
		Type:      TypeAccess,
	}, now, i.cfg.AccessTTL)
}

// IssueRenewalToken mints a long-lived token used only to obtain new access tokens.
func (i *Issuer) IssueRenewalToken(accountID, sessionID string, now time.Time) (string, time.Time, error) {
	return i.issue(i.renewal, Claims{
		AccountID: accountID,
		SessionID: sessionID,
		Type:      TypeRenewal,
	}, now, i.cfg.RenewalTTL)
}

func (i *Issuer) issue(codec Codec, c Claims, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(c.SessionID) == "" {
		return "", time.Time{}, ErrMissingSession
	}
	if strings.TrimSpace(c.AccountID) == "" {
		return "", time.Time{}, fmt.Errorf("%w: missing account id", ErrInvalid)
	}

	// Second precision keeps both formats round-tripping the same instants.
	now = now.UTC().Truncate(time.Second)
	c.Issuer = i.cfg.Issuer
	c.IssuedAt = now
	c.ExpiresAt = now.Add(ttl)

	tok, err := codec.Encode(c)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokens: encode: %w", err)
	}
	return tok, c.ExpiresAt, nil
}

// Verify accepts either token kind.
func (i *Issuer) Verify(token string, now time.Time) (Claims, error) {
	c, err := i.VerifyAccess(token, now)
	if err == nil || err == ErrExpired {
		return c, err
	}
	return i.VerifyRenewal(token, now)
}

// VerifyAccess verifies a bearer token and requires typ=access.
func (i *Issuer) VerifyAccess(token string, now time.Time) (Claims, error) {
	return verifyTyped(i.access, token, now, TypeAccess)
}

// VerifyRenewal verifies a renewal token and requires typ=renewal.
func (i *Issuer) VerifyRenewal(token string, now time.Time) (Claims, error) {
	return verifyTyped(i.renewal, token, now, TypeRenewal)
}

func verifyTyped(codec Codec, token string, now time.Time, want Type) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrInvalid
	}
	c, err := codec.Decode(token, now)
	if err != nil {
		return Claims{}, err
	}
	if c.Type != want {
		return Claims{}, ErrInvalid
	}
	return c, nil
}
