package password

import (
	"fmt"
	"runtime"
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32 `mapstructure:"memory_kib"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// Policy controls password validation and anti-DoS boundaries.
type Policy struct {
	MinLength int `mapstructure:"min_length"`
	MaxLength int `mapstructure:"max_length"`

	RequireUpper  bool `mapstructure:"require_upper"`
	RequireLower  bool `mapstructure:"require_lower"`
	RequireDigit  bool `mapstructure:"require_digit"`
	RequireSymbol bool `mapstructure:"require_symbol"`

	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool `mapstructure:"reject_very_weak"`
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams `mapstructure:"argon2"`
	Policy Policy         `mapstructure:"policy"`
}

// DefaultConfig returns an interactive-login baseline.
func DefaultConfig() Config {
	// Clamp to [1..4] to keep resource usage predictable in containers.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      8,
			MaxLength:      128,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSymbol:  true,
			RejectVeryWeak: true,
		},
	}
}

// Check validates the configuration bounds.
func (c Config) Check() error {
	p := c.Params
	switch {
	case p.MemoryKiB < 8 || p.MemoryKiB > 1024*1024:
		return fmt.Errorf("%w: argon2 memory_kib out of range [8..1048576]", ErrInvalidConfig)
	case p.Iterations < 1 || p.Iterations > 20:
		return fmt.Errorf("%w: argon2 iterations out of range [1..20]", ErrInvalidConfig)
	case p.Parallelism < 1 || p.Parallelism > 64:
		return fmt.Errorf("%w: argon2 parallelism out of range [1..64]", ErrInvalidConfig)
	case p.SaltLength < 8 || p.SaltLength > 64:
		return fmt.Errorf("%w: argon2 salt_length out of range [8..64]", ErrInvalidConfig)
	case p.KeyLength < 16 || p.KeyLength > 64:
		return fmt.Errorf("%w: argon2 key_length out of range [16..64]", ErrInvalidConfig)
	}

	if c.Policy.MinLength < 1 || c.Policy.MaxLength > 4096 {
		return fmt.Errorf("%w: policy length bounds out of range", ErrInvalidConfig)
	}
	if c.Policy.MinLength > c.Policy.MaxLength {
		return fmt.Errorf(
			"%w: min_length(%d) > max_length(%d)",
			ErrInvalidConfig,
			c.Policy.MinLength,
			c.Policy.MaxLength,
		)
	}
	return nil
}
