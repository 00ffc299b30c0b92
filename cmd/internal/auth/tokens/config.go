package tokens

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// Format selects the token wire format.
type Format string

const (
	FormatJWT    Format = "jwt"
	FormatPASETO Format = "paseto"
)

// MinSecretBytes is the minimum HS256 secret length.
const MinSecretBytes = 32

// Config controls token lifetimes and keys.
type Config struct {
	Format Format `mapstructure:"format"`
	Issuer string `mapstructure:"issuer"`

	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RenewalTTL time.Duration `mapstructure:"renewal_ttl"`
	ClockSkew  time.Duration `mapstructure:"clock_skew"`

	// HS256 secrets (jwt format).
	AccessSecret  string `mapstructure:"access_secret"`
	RenewalSecret string `mapstructure:"renewal_secret"`

	// Hex-encoded Ed25519 secret keys (paseto format).
	AccessKeyHex  string `mapstructure:"access_key_hex"`
	RenewalKeyHex string `mapstructure:"renewal_key_hex"`
}

// DefaultConfig returns development defaults. Secrets are left empty.
func DefaultConfig() Config {
	return Config{
		Format:     FormatJWT,
		Issuer:     "sessiond",
		AccessTTL:  15 * time.Minute,
		RenewalTTL: 7 * 24 * time.Hour,
		ClockSkew:  30 * time.Second,
	}
}

// Validate checks lifetimes and the key material for the selected format.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Issuer) == "" {
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	}
	if c.AccessTTL <= 0 || c.RenewalTTL <= 0 {
		return fmt.Errorf("%w: ttls must be positive", ErrConfig)
	}
	if c.AccessTTL >= c.RenewalTTL {
		return fmt.Errorf("%w: access_ttl must be shorter than renewal_ttl", ErrConfig)
	}
	if c.ClockSkew < 0 || c.ClockSkew > 5*time.Minute {
		return fmt.Errorf("%w: clock_skew out of range [0..5m]", ErrConfig)
	}

	switch c.Format {
	case FormatJWT:
		if len(c.AccessSecret) < MinSecretBytes || len(c.RenewalSecret) < MinSecretBytes {
			return fmt.Errorf("%w: jwt secrets must be at least %d bytes", ErrConfig, MinSecretBytes)
		}
		if c.AccessSecret == c.RenewalSecret {
			return fmt.Errorf("%w: access and renewal secrets must differ", ErrConfig)
		}
	case FormatPASETO:
		for name, k := range map[string]string{"access_key_hex": c.AccessKeyHex, "renewal_key_hex": c.RenewalKeyHex} {
			b, err := hex.DecodeString(strings.TrimSpace(k))
			if err != nil || len(b) != 64 {
				return fmt.Errorf("%w: %s must be a hex Ed25519 secret key", ErrConfig, name)
			}
		}
		if strings.EqualFold(c.AccessKeyHex, c.RenewalKeyHex) {
			return fmt.Errorf("%w: access and renewal keys must differ", ErrConfig)
		}
	default:
		return fmt.Errorf("%w: unknown format %q", ErrConfig, c.Format)
	}
	return nil
}
