package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaConfig configures KafkaBus.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// KafkaBus writes every event to one topic. Messages are keyed by account so
// one account's events stay ordered within a partition; the logical channel
// travels in a header.
type KafkaBus struct {
	w *kafka.Writer
}

// NewKafkaBus returns a KafkaBus. The writer connects lazily.
func NewKafkaBus(cfg KafkaConfig) *KafkaBus {
	batch := cfg.BatchTimeout
	if batch <= 0 {
		batch = 10 * time.Millisecond
	}
	return &KafkaBus{w: &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           batch,
		RequiredAcks:           kafka.RequireOne,
		AllowAutoTopicCreation: false,
	}}
}

func (b *KafkaBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.w.WriteMessages(ctx, kafkaMessage(channel, payload))
}

func (b *KafkaBus) Close() error { return b.w.Close() }

func kafkaMessage(channel string, payload []byte) kafka.Message {
	var head struct {
		AccountID string `json:"account_id"`
	}
	_ = json.Unmarshal(payload, &head)

	return kafka.Message{
		Key:   []byte(head.AccountID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "channel", Value: []byte(channel)},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}
}
