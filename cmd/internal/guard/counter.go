package guard

import (
	"context"
	"sync"
	"time"
)

// Counter increments a fixed window and reports the count and time left in it.
type Counter interface {
	Increment(ctx context.Context, key string, window time.Duration) (count int64, ttl time.Duration, err error)
}

// MemoryCounter is a process-local Counter. Expired windows are pruned lazily.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memWindow
	now     func() time.Time
	calls   int
}

type memWindow struct {
	count   int64
	resetAt time.Time
}

const pruneEvery = 1024

// NewMemoryCounter returns an empty MemoryCounter. A nil clock uses time.Now.
func NewMemoryCounter(now func() time.Time) *MemoryCounter {
	if now == nil {
		now = time.Now
	}
	return &MemoryCounter{windows: make(map[string]memWindow), now: now}
}

func (m *MemoryCounter) Increment(_ context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.calls++
	if m.calls%pruneEvery == 0 {
		for k, w := range m.windows {
			if !now.Before(w.resetAt) {
				delete(m.windows, k)
			}
		}
	}

	w, ok := m.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = memWindow{resetAt: now.Add(window)}
	}
	w.count++
	m.windows[key] = w

	return w.count, w.resetAt.Sub(now), nil
}
