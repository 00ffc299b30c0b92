package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Sweeper periodically deletes rows past absolute expiry.
// At most one sweep runs at a time; a tick that finds one in progress is skipped.
type Sweeper struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	log      *slog.Logger
	now      func() time.Time

	running  atomic.Bool
	inflight sync.WaitGroup
	onSweep  func(deleted int64, err error)
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepHook is called after every completed sweep.
func WithSweepHook(fn func(deleted int64, err error)) SweeperOption {
	return func(s *Sweeper) { s.onSweep = fn }
}

// WithSweepClock overrides the time source.
func WithSweepClock(now func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSweeper uses cfg.SweepInterval and cfg.SweepTimeout.
func NewSweeper(store Store, cfg Config, log *slog.Logger, opts ...SweeperOption) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	s := &Sweeper{
		store:    store,
		interval: cfg.SweepInterval,
		timeout:  cfg.SweepTimeout,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// RunOnce performs a single sweep. ran is false when another sweep was already in progress.
func (s *Sweeper) RunOnce(ctx context.Context) (deleted int64, ran bool, err error) {
	if !s.running.CompareAndSwap(false, true) {
		s.log.WarnContext(ctx, "session.sweep.skipped", "reason", "in_progress")
		return 0, false, nil
	}
	defer s.running.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	deleted, err = s.store.DeleteExpired(ctx, s.now())
	if err != nil {
		s.log.ErrorContext(ctx, "session.sweep.failed", "err", err)
	} else {
		s.log.InfoContext(ctx, "session.sweep.done",
			"deleted", deleted,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
	if s.onSweep != nil {
		s.onSweep(deleted, err)
	}
	return deleted, true, err
}

// Run sweeps on every tick until ctx is done. Each tick runs in its own
// goroutine so a slow sweep never delays the schedule. Run returns only after
// the sweep in flight, if any, has finished with the store.
func (s *Sweeper) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	defer s.inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.inflight.Add(1)
			go func() {
				defer s.inflight.Done()
				_, _, _ = s.RunOnce(ctx)
			}()
		}
	}
}
