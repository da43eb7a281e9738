package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/redkit/redkit"
)

func main() {
	// Create a new redkit server. Real GET/SET/LPUSH/HSET/ZADD/... are
	// already registered against its Keyspace by NewServer; this example
	// only layers middleware and a couple of custom commands on top.
	server := redkit.NewServer(":6379")

	// Logging middleware - logs every command and its response type.
	server.UseFunc(func(conn *redkit.Connection, cmd *redkit.Command, next redkit.CommandHandler) redkit.RedisValue {
		log.Printf("[LOG] command=%s args=%v client=%s", cmd.Name, cmd.Args, conn.RemoteAddr())
		result := next.Handle(conn, cmd)
		log.Printf("[LOG] response_type=%v", result.Type)
		return result
	})

	// Timing middleware - flags slow commands.
	server.UseFunc(func(conn *redkit.Connection, cmd *redkit.Command, next redkit.CommandHandler) redkit.RedisValue {
		start := time.Now()
		result := next.Handle(conn, cmd)
		if d := time.Since(start); d > 10*time.Millisecond {
			log.Printf("[TIMING] command=%s took=%v (slow)", cmd.Name, d)
		}
		return result
	})

	// Rate limiting middleware - max 100 commands per connection.
	var commandCounts sync.Map // map[*redkit.Connection]int

	server.UseFunc(func(conn *redkit.Connection, cmd *redkit.Command, next redkit.CommandHandler) redkit.RedisValue {
		val, _ := commandCounts.LoadOrStore(conn, 0)
		count := val.(int)
		if count >= 100 {
			return redkit.RedisValue{Type: redkit.ErrorReply, Str: "ERR rate limit exceeded"}
		}
		commandCounts.Store(conn, count+1)
		return next.Handle(conn, cmd)
	})

	// A custom command outside the built-in registry.
	server.RegisterCommandFunc("HELLO", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		if len(cmd.Args) == 0 {
			return redkit.RedisValue{Type: redkit.SimpleString, Str: "Hello from redkit!"}
		}
		return redkit.RedisValue{Type: redkit.BulkString, Bulk: []byte(fmt.Sprintf("Hello, %s!", cmd.Args[0]))}
	})

	// Handle graceful shutdown.
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		fmt.Println("\nShutting down server...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			log.Printf("server shutdown error: %v", err)
		}
		fmt.Println("Server stopped")
		os.Exit(0)
	}()

	fmt.Println("Starting redkit server on :6379...")
	fmt.Println("Test it with redis-cli or any Redis client")
	fmt.Println("Try commands like: PING, HELLO, HELLO world, SET key value, GET key, LPUSH l a b c, HGETALL h")

	if err := server.Serve(); err != nil {
		log.Fatal(err)
	}
}
