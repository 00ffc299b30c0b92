// Package guard throttles abusive request patterns with fixed-window counters.
//
// A Limiter holds a set of named Rules. Each call to Allow increments the
// counter for (rule, subject) and rejects the call with a *RateLimitError once
// the window's budget is spent. Subjects (IPs, emails, account ids) are keyed
// through an HMAC so raw identifiers never reach the counter backend.
//
// Counters live in process memory (MemoryCounter) or Redis (RedisCounter).
// Backend failures fail open.
package guard
