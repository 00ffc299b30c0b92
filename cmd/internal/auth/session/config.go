package session

import (
	"fmt"
	"time"
)

// Config controls session limits and lifetimes.
type Config struct {
	// MaxPerAccount is the live-session cap; the oldest session is evicted beyond it.
	MaxPerAccount int `mapstructure:"max_per_account"`

	// InactivityTimeout expires a session whose last activity is older than this.
	InactivityTimeout time.Duration `mapstructure:"inactivity_timeout"`

	// TTL is the absolute lifetime from creation.
	TTL time.Duration `mapstructure:"ttl"`

	// SweepInterval bounds how long an expired, untouched row can linger.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	SweepTimeout  time.Duration `mapstructure:"sweep_timeout"`

	// IDBytes is the entropy of opaque session ids.
	IDBytes int `mapstructure:"id_bytes"`
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxPerAccount:     5,
		InactivityTimeout: 30 * time.Minute,
		TTL:               7 * 24 * time.Hour,
		SweepInterval:     time.Hour,
		SweepTimeout:      5 * time.Minute,
		IDBytes:           32,
	}
}

// Validate checks bounds.
func (c Config) Validate() error {
	switch {
	case c.MaxPerAccount < 1 || c.MaxPerAccount > 100:
		return fmt.Errorf("%w: max_per_account out of range [1..100]", ErrConfig)
	case c.InactivityTimeout <= 0:
		return fmt.Errorf("%w: inactivity_timeout must be positive", ErrConfig)
	case c.TTL < c.InactivityTimeout:
		return fmt.Errorf("%w: ttl must be at least inactivity_timeout", ErrConfig)
	case c.SweepInterval < time.Second:
		return fmt.Errorf("%w: sweep_interval must be at least 1s", ErrConfig)
	case c.SweepTimeout <= 0:
		return fmt.Errorf("%w: sweep_timeout must be positive", ErrConfig)
	case c.IDBytes < 16 || c.IDBytes > 64:
		return fmt.Errorf("%w: id_bytes out of range [16..64]", ErrConfig)
	}
	return nil
}
