/*
Package redkit implements a Redis-wire-compatible in-memory data store:
RESP2 connection handling, a keyspace of string/list/set/hash/sorted-set
values, transactions, pub/sub, append-only and snapshot persistence, and
primary/replica replication.

This file defines the fundamental data structures and interfaces used
throughout the implementation, including:

Core Types:
- ConnState: Client connection state management
- RedisValue: Redis protocol value representation
- RedisType: Redis protocol data type constants
- Command: Redis command structure with arguments
- CommandHandler: Interface for command processing
- Server: Main server configuration and state

Connection Management:
The ConnState type tracks client connection lifecycle from initial connection
through active usage to graceful shutdown.

Protocol Support:
RedisValue and RedisType provide complete RESP (Redis Serialization Protocol)
support for all standard Redis data types including strings, integers, arrays,
and error responses.

Command Processing:
The Command struct parses incoming Redis commands while CommandHandler interface
enables flexible command implementation and registration.

Server Architecture:
The Server struct encapsulates all configuration, connection management, and
command routing functionality alongside the keyspace, pub/sub bus, AOF
writer, and replication state that make this a working data store rather
than a bare protocol shell.
*/
package redkit

import (
	"context"
	"crypto/tls"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

/*
Connection State Management

ConnState tracks the lifecycle of client connections to enable proper
resource management and monitoring. State transitions follow this pattern:

StateNew -> StateActive -> StateIdle -> StateClosed
                     ↑         ↓
                     └─────────┘
                   (can cycle between Active/Idle)
*/

// ConnState represents the state of a client connection
type ConnState int

const (
	StateNew    ConnState = iota // Initial connection established
	StateActive                  // Connection actively processing commands
	StateIdle                    // Connection idle, waiting for commands
	StateClosed                  // Connection terminated and cleaned up
)

/*
Redis Protocol Value Representation

RedisValue encapsulates all possible Redis protocol data types in a single
struct. The Type field determines which field contains the actual value:

- SimpleString: Use Str field (e.g., "OK", "PONG")
- ErrorReply: Use Str field (e.g., "ERR invalid command")
- Integer: Use Int field (e.g., 42, -1)
- BulkString: Use Bulk field (e.g., []byte("hello")); Bulk == nil means $-1
- Array: Use Array field (e.g., []RedisValue{...})
- Null: A bare $-1 (nil bulk string)
- NullArray: A bare *-1 (nil array) — distinct from an empty array
*/

// RedisValue represents different types of Redis values
type RedisValue struct {
	Type  RedisType    // The Redis protocol type
	Str   string       // Used for SimpleString and ErrorReply
	Int   int64        // Used for Integer values
	Bulk  []byte       // Used for BulkString (binary-safe)
	Array []RedisValue // Used for Array of values
}

/*
Redis Protocol Data Types

RedisType constants correspond to RESP (Redis Serialization Protocol) data
types. NullArray was added beyond the original five frame kinds so EXEC's
WATCH-aborted reply and LPOP/RPOP with a count on a missing key don't have
to overload the bulk-string null.
*/

// RedisType represents Redis protocol data types
type RedisType int

const (
	SimpleString RedisType = iota // Status replies like "OK", "PONG"
	ErrorReply                    // Error messages like "ERR unknown command"
	Integer                       // 64-bit signed integers
	BulkString                    // Binary-safe strings with length prefix
	Array                         // Ordered collections of Redis values
	Null                          // Null bulk string ($-1)
	NullArray                     // Null array (*-1)
	NoReply                       // Sentinel: handler already wrote its own frame(s); write nothing more
)

/*
Redis Command Representation

Command encapsulates a parsed Redis command with its arguments.
Commands are typically parsed from client input following RESP format.
*/

// Command represents a Redis command with arguments
type Command struct {
	Name string       // Command name as sent (case preserved; dispatch matches it case-insensitively)
	Args []string     // Command arguments (excluding command name)
	Raw  []RedisValue // Original parsed values from protocol
}

/*
Command Handler Interface

CommandHandler defines the contract for processing Redis commands.
Handlers receive the client connection context and parsed command,
then return a RedisValue response to send back to the client.
*/

// CommandHandler defines the interface for handling Redis commands
type CommandHandler interface {
	// Handle processes a Redis command and returns the response
	Handle(conn *Connection, cmd *Command) RedisValue
}

// CommandHandlerFunc enables using functions as CommandHandler implementations
type CommandHandlerFunc func(conn *Connection, cmd *Command) RedisValue

// Handle implements CommandHandler interface for function types
func (f CommandHandlerFunc) Handle(conn *Connection, cmd *Command) RedisValue {
	return f(conn, cmd)
}

/*
Redis-Compatible Server Configuration and State

Server encapsulates all functionality needed to run a Redis-compatible
server: connection management, command routing, the keyspace, pub/sub
bus, AOF persistence, and replication role (primary or replica).
*/

// Server represents the Redis-compatible server
type Server struct {
	// Network Configuration
	Address   string      // Server bind address (e.g., ":6379", "127.0.0.1:6379")
	TLSConfig *tls.Config // Optional TLS configuration for secure connections

	// Timeout Configuration
	ReadTimeout  time.Duration // Maximum time to wait for client requests
	WriteTimeout time.Duration // Maximum time to wait for response writes
	IdleTimeout  time.Duration // Inactivity after which a connection is marked StateIdle (it is not closed)

	// Resource Limits
	MaxConnections int // Maximum number of concurrent client connections

	// Monitoring and Logging
	Logger        *zap.SugaredLogger        // Structured log sink
	ConnStateHook func(net.Conn, ConnState) // Connection state change callback

	// Data plane
	Keyspace *Keyspace // The single logical database
	PubSub   *PubSub   // Channel/pattern subscriber bus

	// Persistence and replication, wired in by cmd/redkit-server; both
	// are optional and nil-checked at every call site so the bare
	// Server type remains usable on its own (see example/main.go).
	AOF  aofAppender       // Append-only log sink, if enabled
	Repl replicationHooks  // Replication propagation/role hooks, if enabled

	// Command Processing
	handlers     map[string]*commandDescriptor // Registered command handlers
	middleware   *MiddlewareChain               // Chain wrapped around every dispatch
	nextConnID   atomic.Uint64                  // Monotonic per-connection id source

	// Server Runtime State (internal)
	listener    net.Listener             // Network listener
	activeConns map[*Connection]struct{} // Active connection tracking
	connCount   atomic.Int64             // Current connection count (atomic)
	inShutdown  atomic.Bool              // Shutdown flag (atomic)
	mu          sync.RWMutex             // Protects shared state
	onShutdown  []func()                 // Shutdown callback functions
	ctx         context.Context          // Server context for cancellation
	cancel      context.CancelFunc       // Context cancellation function
	wg          sync.WaitGroup           // Wait group for goroutine coordination
}

// aofAppender is the subset of internal/aof.Writer the dispatcher needs.
// Defined here (rather than importing internal/aof directly) to avoid a
// dependency cycle, since internal/aof imports this package for Command
// and EncodeRequest.
type aofAppender interface {
	Append(cmd *Command) error
}

// aofRewriter is the optional extra an aofAppender can implement to
// support BGREWRITEAOF compacting its file in place. *internal/aof.Writer
// implements it; AOF implementations that only log (or a nil AOF) don't
// need to.
type aofRewriter interface {
	Rewrite(cmds [][]string) error
}

// replicationHooks is the subset of internal/replication.Primary/Replica
// the dispatcher needs: propagate a write to connected replicas, and
// report whether this server is a read-only replica.
type replicationHooks interface {
	Propagate(cmd *Command)
	ReadOnly() bool
}
