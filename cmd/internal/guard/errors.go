package guard

import (
	"errors"
	"fmt"
	"time"
)

// ErrRateLimited is matched by every *RateLimitError.
var ErrRateLimited = errors.New("rate limited")

// ErrConfig is returned for invalid rule configuration.
var ErrConfig = errors.New("invalid guard config")

// RateLimitError reports a rejected call and when the window resets.
type RateLimitError struct {
	Rule       string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited by %s, retry after %s", e.Rule, e.RetryAfter)
}

func (e *RateLimitError) Unwrap() error { return ErrRateLimited }

// RetryAfterSeconds rounds RetryAfter up to whole seconds, minimum 1.
func (e *RateLimitError) RetryAfterSeconds() int64 {
	d := e.RetryAfter
	if d <= 0 {
		return 1
	}
	sec := int64(d / time.Second)
	if d%time.Second != 0 {
		sec++
	}
	return sec
}
