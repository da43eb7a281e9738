package redkit

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribeDeliversMessage(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	sub := client.Subscribe(ctx, "news")
	defer sub.Close()

	// Wait for the subscription to register before publishing, the same
	// way a real client has to since SUBSCRIBE's ack arrives first.
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Receive (subscribe ack): %v", err)
	}

	n, err := client.Publish(ctx, "news", "hello").Result()
	if err != nil {
		t.Fatalf("PUBLISH: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n)
	}

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Channel != "news" || msg.Payload != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestPSubscribeMatchesPattern(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	sub := client.PSubscribe(ctx, "chan.*")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Receive (psubscribe ack): %v", err)
	}

	if _, err := client.Publish(ctx, "chan.one", "payload").Result(); err != nil {
		t.Fatalf("PUBLISH: %v", err)
	}

	msgCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(msgCtx)
	if err != nil {
		t.Fatalf("ReceiveMessage: %v", err)
	}
	if msg.Channel != "chan.one" || msg.Payload != "payload" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	sub := client.Subscribe(ctx, "gossip")
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Receive (subscribe ack): %v", err)
	}
	if err := sub.Unsubscribe(ctx, "gossip"); err != nil {
		t.Fatalf("Unsubscribe: %v", err)
	}
	sub.Close()

	n, err := client.Publish(ctx, "gossip", "anyone?").Result()
	if err != nil {
		t.Fatalf("PUBLISH: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 subscribers after unsubscribe, got %d", n)
	}
}
