package guard

import (
	"fmt"
	"sort"
	"time"
)

// Rule names used by the HTTP layer.
const (
	RuleLogin        = "login"
	RuleLoginEmail   = "login_email"
	RuleSignup       = "signup"
	RuleRefresh      = "refresh"
	RuleSessionRead  = "session_read"
	RuleSessionWrite = "session_write"
	RuleActivity     = "activity"
)

// Rule is a fixed-window budget.
type Rule struct {
	Limit  int           `mapstructure:"limit"`
	Window time.Duration `mapstructure:"window"`
}

// Config selects the rules and key namespace.
type Config struct {
	Enabled   bool            `mapstructure:"enabled"`
	KeyPrefix string          `mapstructure:"key_prefix"`
	Rules     map[string]Rule `mapstructure:"rules"`
}

// DefaultConfig returns the production budgets.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		KeyPrefix: "sessiond:guard",
		Rules: map[string]Rule{
			RuleLogin:        {Limit: 5, Window: 15 * time.Minute},
			RuleLoginEmail:   {Limit: 10, Window: 15 * time.Minute},
			RuleSignup:       {Limit: 5, Window: 15 * time.Minute},
			RuleRefresh:      {Limit: 30, Window: 15 * time.Minute},
			RuleSessionRead:  {Limit: 120, Window: time.Minute},
			RuleSessionWrite: {Limit: 30, Window: time.Minute},
			RuleActivity:     {Limit: 60, Window: time.Minute},
		},
	}
}

// Validate checks every rule.
func (c Config) Validate() error {
	if c.KeyPrefix == "" {
		return fmt.Errorf("%w: key_prefix is required", ErrConfig)
	}

	names := make([]string, 0, len(c.Rules))
	for name := range c.Rules {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		r := c.Rules[name]
		if r.Limit < 1 {
			return fmt.Errorf("%w: rule %q: limit must be positive", ErrConfig, name)
		}
		if r.Window < time.Second {
			return fmt.Errorf("%w: rule %q: window must be at least 1s", ErrConfig, name)
		}
	}
	return nil
}
