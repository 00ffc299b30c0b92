package app

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"aidanwoods.dev/go-paseto"

	"sessiond/cmd/internal/auth/tokens"
	"sessiond/cmd/security/token"
)

// weakSecrets are sample values from docs and compose files.
var weakSecrets = map[string]struct{}{
	"secret":                           {},
	"changeme":                         {},
	"change-me":                        {},
	"development":                      {},
	"sessiond":                         {},
	"please-change-me-in-production!!": {},
	"00000000000000000000000000000000": {},
}

// ValidateSecurityConfig enforces the production policy at startup. Outside
// production it accepts everything; missing secrets are generated there.
func ValidateSecurityConfig(cfg Config) error {
	if !cfg.Production() {
		return nil
	}

	var errs []error
	if strings.TrimSpace(cfg.Database.URL) == "" {
		errs = append(errs, errors.New("security policy: database.url is required in production"))
	}

	tk := cfg.Token
	if tk.Format == tokens.FormatJWT {
		for name, s := range map[string]string{"token.access_secret": tk.AccessSecret, "token.renewal_secret": tk.RenewalSecret} {
			if isWeakSecret(s) {
				errs = append(errs, fmt.Errorf("security policy: %s uses a known placeholder value", name))
			}
		}
	}
	if err := tk.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("security policy: %w", err))
	}

	if _, err := token.NewStrictHasher(cfg.Guard.HMACKey); err != nil {
		switch {
		case errors.Is(err, token.ErrHMACKeyMissing):
			errs = append(errs, errors.New("security policy: guard.hmac_key is required in production"))
		case errors.Is(err, token.ErrHMACKeyTooShort):
			errs = append(errs, fmt.Errorf("security policy: guard.hmac_key is too short (min %d bytes)", token.MinKeyBytes))
		default:
			errs = append(errs, err)
		}
	}

	if !cfg.API.Cookie.Secure {
		errs = append(errs, errors.New("security policy: api.cookie.secure must be true in production"))
	}
	for _, o := range cfg.Realtime.AllowedOrigins {
		if strings.TrimSpace(o) == "*" {
			errs = append(errs, errors.New("security policy: realtime.allowed_origins must not contain *"))
			break
		}
	}

	return errors.Join(errs...)
}

func isWeakSecret(s string) bool {
	_, ok := weakSecrets[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// withDevSecrets fills empty token keys with per-process random ones. Tokens
// signed with them stop verifying after a restart. generated is false when
// nothing was missing.
func withDevSecrets(cfg tokens.Config) (out tokens.Config, generated bool, err error) {
	switch cfg.Format {
	case tokens.FormatPASETO:
		if strings.TrimSpace(cfg.AccessKeyHex) == "" {
			cfg.AccessKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
			generated = true
		}
		if strings.TrimSpace(cfg.RenewalKeyHex) == "" {
			cfg.RenewalKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()
			generated = true
		}
	default:
		if cfg.AccessSecret == "" {
			if cfg.AccessSecret, err = randomSecret(); err != nil {
				return cfg, false, err
			}
			generated = true
		}
		if cfg.RenewalSecret == "" {
			if cfg.RenewalSecret, err = randomSecret(); err != nil {
				return cfg, false, err
			}
			generated = true
		}
	}
	return cfg, generated, nil
}

func randomSecret() (string, error) {
	b := make([]byte, tokens.MinSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
