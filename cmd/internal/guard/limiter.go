package guard

import (
	"context"
	"fmt"
	"log/slog"

	"sessiond/cmd/security/token"
)

// Limiter applies the configured rules.
type Limiter struct {
	cfg     Config
	counter Counter
	keys    token.Hasher
	log     *slog.Logger

	onReject func(rule string)
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithRejectHook is called once per rejected call.
func WithRejectHook(fn func(rule string)) Option {
	return func(l *Limiter) { l.onReject = fn }
}

// NewLimiter validates cfg. keys hashes subjects before they become counter keys.
func NewLimiter(cfg Config, counter Counter, keys token.Hasher, log *slog.Logger, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if counter == nil {
		return nil, fmt.Errorf("%w: nil counter", ErrConfig)
	}
	if log == nil {
		log = slog.Default()
	}

	l := &Limiter{cfg: cfg, counter: counter, keys: keys, log: log}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l, nil
}

// Allow counts one call of subject against rule. It returns a *RateLimitError
// when the budget is spent. Unknown rules, empty subjects and a disabled
// limiter always pass.
func (l *Limiter) Allow(ctx context.Context, rule, subject string) error {
	if l == nil || !l.cfg.Enabled || subject == "" {
		return nil
	}
	r, ok := l.cfg.Rules[rule]
	if !ok {
		return nil
	}

	count, ttl, err := l.counter.Increment(ctx, l.key(rule, subject), r.Window)
	if err != nil {
		l.log.WarnContext(ctx, "guard.counter_failed", "rule", rule, "err", err)
		return nil
	}
	if count <= int64(r.Limit) {
		return nil
	}

	if ttl <= 0 {
		ttl = r.Window
	}
	if l.onReject != nil {
		l.onReject(rule)
	}
	l.log.InfoContext(ctx, "guard.rejected", "rule", rule, "count", count, "retry_after_ms", ttl.Milliseconds())
	return &RateLimitError{Rule: rule, RetryAfter: ttl}
}

func (l *Limiter) key(rule, subject string) string {
	return l.cfg.KeyPrefix + ":" + rule + ":" + l.keys.Hex(subject)
}
