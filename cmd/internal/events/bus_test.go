package events

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestRedisBus_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	sub := rdb.Subscribe(ctx, "sessiond.login")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	bus := NewRedisBus(rdb)
	if err := bus.Publish(ctx, "sessiond.login", []byte(`{"kind":"login"}`)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Channel != "sessiond.login" || msg.Payload != `{"kind":"login"}` {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestRedisBus_ErrorsWhenServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	mr.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := NewRedisBus(rdb).Publish(ctx, "c", []byte("x")); err == nil {
		t.Fatalf("expected error with server down")
	}
}

func TestKafkaMessage_KeyedByAccount(t *testing.T) {
	msg := kafkaMessage("sessiond.session_created", []byte(`{"account_id":"acct-9","kind":"session_created"}`))

	if string(msg.Key) != "acct-9" {
		t.Fatalf("key=%q", msg.Key)
	}
	var channel string
	for _, h := range msg.Headers {
		if h.Key == "channel" {
			channel = string(h.Value)
		}
	}
	if channel != "sessiond.session_created" {
		t.Fatalf("channel header=%q", channel)
	}
}

func TestLogBus(t *testing.T) {
	b := NewLogBus(quietLogger())
	if err := b.Publish(context.Background(), "c", []byte("{}")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}
