package realtime

import (
	"time"
)

// RateLimiter caps inbound frames per connection: at most limit frames in any
// window. It keeps the last limit accepted timestamps in a ring, so a frame is
// allowed when the oldest of them has left the window.
//
// It is owned by the connection's read loop and is not safe for concurrent use.
type RateLimiter struct {
	ring   []time.Time
	next   int
	filled bool
	window time.Duration
}

// NewRateLimiter falls back to the package defaults for non-positive inputs.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = rateLimitEvents
	}
	if window <= 0 {
		window = rateLimitWindow
	}
	return &RateLimiter{ring: make([]time.Time, limit), window: window}
}

// Allow records a frame at now and reports whether it fits the window.
// Rejected frames are not recorded.
func (r *RateLimiter) Allow(now time.Time) bool {
	if r.filled && now.Sub(r.ring[r.next]) < r.window {
		return false
	}
	r.ring[r.next] = now
	r.next++
	if r.next == len(r.ring) {
		r.next = 0
		r.filled = true
	}
	return true
}
