package events

import (
	"context"
	"log/slog"
)

// Bus is the pub/sub collaborator. Publish needs no acknowledgment beyond the
// transport accepting the message.
type Bus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Close() error
}

// LogBus writes events to the logger instead of a broker.
type LogBus struct {
	log *slog.Logger
}

// NewLogBus returns a LogBus.
func NewLogBus(log *slog.Logger) *LogBus {
	if log == nil {
		log = slog.Default()
	}
	return &LogBus{log: log}
}

func (b *LogBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.log.DebugContext(ctx, "events.bus.log", "channel", channel, "payload", string(payload))
	return nil
}

func (b *LogBus) Close() error { return nil }
