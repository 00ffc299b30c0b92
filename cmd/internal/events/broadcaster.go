package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
)

// Config controls queueing and retry.
type Config struct {
	ChannelPrefix  string        `mapstructure:"channel_prefix"`
	Attempts       int           `mapstructure:"attempts"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout"`
	QueueSize      int           `mapstructure:"queue_size"`
	Workers        int           `mapstructure:"workers"`
}

// DefaultConfig returns 3 attempts with exponential backoff from 100ms.
func DefaultConfig() Config {
	return Config{
		ChannelPrefix:  "sessiond",
		Attempts:       3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		AttemptTimeout: 5 * time.Second,
		QueueSize:      1024,
		Workers:        2,
	}
}

// ErrConfig is returned for invalid configuration.
var ErrConfig = errors.New("invalid events config")

// Validate checks bounds.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.ChannelPrefix) == "":
		return fmt.Errorf("%w: channel_prefix is required", ErrConfig)
	case c.Attempts < 1 || c.Attempts > 10:
		return fmt.Errorf("%w: attempts out of range [1..10]", ErrConfig)
	case c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff:
		return fmt.Errorf("%w: backoff bounds invalid", ErrConfig)
	case c.AttemptTimeout <= 0:
		return fmt.Errorf("%w: attempt_timeout must be positive", ErrConfig)
	case c.QueueSize < 1 || c.Workers < 1:
		return fmt.Errorf("%w: queue_size and workers must be positive", ErrConfig)
	}
	return nil
}

// Stats are cumulative delivery counters.
type Stats struct {
	Delivered uint64
	Failed    uint64
	Dropped   uint64
}

// Broadcaster is the process-wide Publisher. It fans events out to local
// subscribers synchronously and to the Bus asynchronously.
type Broadcaster struct {
	cfg Config
	bus Bus
	log *slog.Logger

	queue chan Event
	stop  chan struct{}
	wg    sync.WaitGroup

	// closeMu orders enqueues against closing stop: once Close holds it,
	// nothing more reaches the queue.
	closeMu sync.RWMutex

	startOnce sync.Once
	stopOnce  sync.Once

	subMu sync.RWMutex
	subs  []func(Event)

	delivered atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64

	onDelivery func(kind Kind, ok bool)
	now        func() time.Time
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithDeliveryHook is called once per event after its final delivery attempt.
func WithDeliveryHook(fn func(kind Kind, ok bool)) Option {
	return func(b *Broadcaster) { b.onDelivery = fn }
}

// WithClock overrides the OccurredAt source.
func WithClock(now func() time.Time) Option {
	return func(b *Broadcaster) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBroadcaster returns a stopped Broadcaster; call Start to run workers.
func NewBroadcaster(bus Bus, cfg Config, log *slog.Logger, opts ...Option) (*Broadcaster, error) {
	if bus == nil {
		return nil, fmt.Errorf("%w: nil bus", ErrConfig)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	b := &Broadcaster{
		cfg:   cfg,
		bus:   bus,
		log:   log,
		queue: make(chan Event, cfg.QueueSize),
		stop:  make(chan struct{}),
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Subscribe registers fn to see every accepted event in-process.
// fn runs on the publishing goroutine and must not block.
func (b *Broadcaster) Subscribe(fn func(Event)) {
	if fn == nil {
		return
	}
	b.subMu.Lock()
	b.subs = append(b.subs, fn)
	b.subMu.Unlock()
}

// Start launches the delivery workers. It is idempotent.
func (b *Broadcaster) Start() {
	b.startOnce.Do(func() {
		for i := 0; i < b.cfg.Workers; i++ {
			b.wg.Add(1)
			go b.worker()
		}
	})
}

// Publish enqueues ev. It never blocks: a full queue drops the event.
func (b *Broadcaster) Publish(ctx context.Context, ev Event) {
	if !ev.Kind.Valid() {
		b.log.ErrorContext(ctx, "events.publish.unknown_kind", "kind", ev.Kind)
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = b.now()
	}

	b.subMu.RLock()
	subs := b.subs
	b.subMu.RUnlock()
	for _, fn := range subs {
		fn(ev)
	}

	b.closeMu.RLock()
	defer b.closeMu.RUnlock()

	select {
	case <-b.stop:
		b.drop(ctx, ev, "closed")
		return
	default:
	}

	select {
	case b.queue <- ev:
	default:
		b.drop(ctx, ev, "queue_full")
	}
}

func (b *Broadcaster) drop(ctx context.Context, ev Event, reason string) {
	b.dropped.Add(1)
	b.log.WarnContext(ctx, "events.publish.drop", "kind", ev.Kind, "event_id", ev.ID, "reason", reason)
	if b.onDelivery != nil {
		b.onDelivery(ev.Kind, false)
	}
}

// Close stops accepting events and drains the queue until ctx is done.
func (b *Broadcaster) Close(ctx context.Context) error {
	b.stopOnce.Do(func() {
		b.closeMu.Lock()
		close(b.stop)
		b.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		b.dropQueued(ctx)
		return b.bus.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dropQueued accounts for events left behind when no worker ever ran.
func (b *Broadcaster) dropQueued(ctx context.Context) {
	for {
		select {
		case ev := <-b.queue:
			b.drop(ctx, ev, "closed")
		default:
			return
		}
	}
}

// Stats returns cumulative counters.
func (b *Broadcaster) Stats() Stats {
	return Stats{
		Delivered: b.delivered.Load(),
		Failed:    b.failed.Load(),
		Dropped:   b.dropped.Load(),
	}
}

func (b *Broadcaster) worker() {
	defer b.wg.Done()

	for {
		select {
		case ev := <-b.queue:
			b.deliver(ev)
		case <-b.stop:
			for {
				select {
				case ev := <-b.queue:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Channel returns the bus channel for kind.
func (b *Broadcaster) Channel(kind Kind) string {
	return b.cfg.ChannelPrefix + "." + string(kind)
}

func (b *Broadcaster) deliver(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		b.failed.Add(1)
		b.log.Error("events.publish.marshal", "kind", ev.Kind, "err", err)
		return
	}
	channel := b.Channel(ev.Kind)

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = b.cfg.InitialBackoff
	eb.MaxInterval = b.cfg.MaxBackoff

	attempt := 0
	_, err = backoff.Retry(context.Background(), func() (struct{}, error) {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), b.cfg.AttemptTimeout)
		defer cancel()
		return struct{}{}, b.bus.Publish(ctx, channel, payload)
	},
		backoff.WithBackOff(eb),
		backoff.WithMaxTries(uint(b.cfg.Attempts)), // #nosec G115 -- bounded by Validate.
		backoff.WithNotify(func(err error, next time.Duration) {
			b.log.Debug("events.publish.retry", "kind", ev.Kind, "event_id", ev.ID, "attempt", attempt, "next", next, "err", err)
		}),
	)

	ok := err == nil
	if ok {
		b.delivered.Add(1)
	} else {
		b.failed.Add(1)
		b.log.Error("events.publish.fail",
			"kind", ev.Kind,
			"event_id", ev.ID,
			"channel", channel,
			"attempts", attempt,
			"err", err,
		)
	}
	if b.onDelivery != nil {
		b.onDelivery(ev.Kind, ok)
	}
}
