package redkit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func startFullServer(t *testing.T) (*Server, *redis.Client, func()) {
	port, err := getFreePort()
	if err != nil {
		t.Fatalf("getFreePort: %v", err)
	}
	server := NewServer(fmt.Sprintf("127.0.0.1:%d", port))

	go func() {
		if err := server.Serve(); err != nil {
			t.Logf("server error: %v", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("127.0.0.1:%d", port)})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("ping: %v", err)
	}

	cleanup := func() {
		client.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}
	return server, client, cleanup
}

func TestMultiExecCommitsQueuedWrites(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	pipe := client.TxPipeline()
	pipe.Set(ctx, "a", "1", 0)
	pipe.Set(ctx, "b", "2", 0)
	if _, err := pipe.Exec(ctx); err != nil {
		t.Fatalf("EXEC: %v", err)
	}

	if v, err := client.Get(ctx, "a").Result(); err != nil || v != "1" {
		t.Errorf("a: got (%q, %v)", v, err)
	}
	if v, err := client.Get(ctx, "b").Result(); err != nil || v != "2" {
		t.Errorf("b: got (%q, %v)", v, err)
	}
}

func TestDiscardAbandonsQueuedWrites(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	// MULTI's queueing state lives on the one connection that issued it,
	// so the rest of this sequence needs a single dedicated connection
	// rather than client.Do's pooled one (any call could land on a
	// different socket and miss the open transaction entirely).
	conn := client.Conn()
	defer conn.Close()

	if err := conn.Do(ctx, "MULTI").Err(); err != nil {
		t.Fatalf("MULTI: %v", err)
	}
	if err := conn.Do(ctx, "SET", "discarded", "x").Err(); err != nil {
		t.Fatalf("queue SET: %v", err)
	}
	if err := conn.Do(ctx, "DISCARD").Err(); err != nil {
		t.Fatalf("DISCARD: %v", err)
	}

	exists, err := client.Exists(ctx, "discarded").Result()
	if err != nil {
		t.Fatalf("EXISTS: %v", err)
	}
	if exists != 0 {
		t.Errorf("expected key to not exist after DISCARD, got exists=%d", exists)
	}
}

func TestWatchAbortsExecOnIntervening(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	if err := client.Set(ctx, "watched", "orig", 0).Err(); err != nil {
		t.Fatalf("SET: %v", err)
	}

	watcher := redis.NewClient(client.Options())
	defer watcher.Close()

	err := watcher.Watch(ctx, func(tx *redis.Tx) error {
		// A second, independent client writes the watched key before
		// this transaction's EXEC, which must then abort.
		if err := client.Set(ctx, "watched", "changed-by-other-client", 0).Err(); err != nil {
			return err
		}
		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, "watched", "from-tx", 0)
			return nil
		})
		return err
	}, "watched")

	if err != redis.TxFailedErr {
		t.Fatalf("expected redis.TxFailedErr, got %v", err)
	}

	v, err := client.Get(ctx, "watched").Result()
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	if v != "changed-by-other-client" {
		t.Errorf("expected the interleaved write to survive, got %q", v)
	}
}

func TestMultiQueuesUnknownCommandAsDirty(t *testing.T) {
	_, client, cleanup := startFullServer(t)
	defer cleanup()
	ctx := context.Background()

	conn := client.Conn()
	defer conn.Close()

	if err := conn.Do(ctx, "MULTI").Err(); err != nil {
		t.Fatalf("MULTI: %v", err)
	}
	if err := conn.Do(ctx, "NOTACOMMAND").Err(); err == nil {
		t.Fatal("expected an error queueing an unknown command")
	}
	if err := conn.Do(ctx, "SET", "x", "1").Err(); err != nil {
		t.Fatalf("queue SET: %v", err)
	}
	err := conn.Do(ctx, "EXEC").Err()
	if err == nil {
		t.Fatal("expected EXECABORT, got nil")
	}
}
