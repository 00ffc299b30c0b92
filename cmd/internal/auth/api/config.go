package authapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrConfig is returned for invalid API configuration.
var ErrConfig = errors.New("invalid api config")

// CookieConfig controls the renewal cookie.
type CookieConfig struct {
	Name     string `mapstructure:"name"`
	Path     string `mapstructure:"path"`
	Domain   string `mapstructure:"domain"`
	Secure   bool   `mapstructure:"secure"`
	SameSite string `mapstructure:"same_site"`
}

// Config controls HTTP behavior of the auth endpoints.
type Config struct {
	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy   bool         `mapstructure:"trust_proxy"`
	MaxBodyBytes int64        `mapstructure:"max_body_bytes"`
	Cookie       CookieConfig `mapstructure:"cookie"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes: 1 << 20,
		Cookie: CookieConfig{
			Name:     "sessiond_renewal",
			Path:     "/refresh",
			Secure:   true,
			SameSite: "strict",
		},
	}
}

// Validate checks the cookie settings.
func (c Config) Validate() error {
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrConfig)
	}
	if strings.TrimSpace(c.Cookie.Name) == "" {
		return fmt.Errorf("%w: cookie.name is required", ErrConfig)
	}
	if _, ok := parseSameSite(c.Cookie.SameSite); !ok {
		return fmt.Errorf("%w: cookie.same_site must be strict, lax or none", ErrConfig)
	}
	if strings.EqualFold(c.Cookie.SameSite, "none") && !c.Cookie.Secure {
		return fmt.Errorf("%w: cookie.same_site=none requires a secure cookie", ErrConfig)
	}
	return nil
}

func parseSameSite(s string) (http.SameSite, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "strict":
		return http.SameSiteStrictMode, true
	case "lax":
		return http.SameSiteLaxMode, true
	case "none":
		return http.SameSiteNoneMode, true
	default:
		return http.SameSiteDefaultMode, false
	}
}
