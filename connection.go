/*
Package redkit implements client connection management for Redis-compatible servers.

This file provides the Connection type and associated methods for managing
individual client connections throughout their lifecycle.

Core Responsibilities:
- TCP/TLS connection wrapping and management
- Buffered I/O for optimal Redis protocol performance
- Thread-safe connection state tracking and transitions
- Context-based cancellation and resource cleanup
- Connection metadata and network address access

Connection Lifecycle:
1. Connection creation and initialization (StateNew)
2. Active command processing (StateActive)
3. Idle waiting between commands (StateIdle)
4. Graceful termination and cleanup (StateClosed)

Thread Safety:
The Connection type is designed for concurrent access with proper synchronization:
- Atomic operations for state management
- Mutex protection for shared fields (lastUsed)
- sync.Once for safe connection cleanup
- Context cancellation for coordinated shutdown

Performance Optimizations:
- Buffered readers and writers to minimize syscalls
- Atomic state tracking to avoid lock contention
- Efficient network address caching
- Minimal allocation overhead in hot paths

Integration:
Connection instances are typically created by the Server during client
connection acceptance and managed throughout the command processing
lifecycle. They provide the necessary context for command handlers
to access client-specific state and network information.

Usage Example:

	// Connection is typically created by the server
	conn := &Connection{
		conn:     netConn,
		reader:   bufio.NewReader(netConn),
		writer:   bufio.NewWriter(netConn),
		server:   server,
		ctx:      ctx,
		cancel:   cancelFunc,
		lastUsed: time.Now(),
	}

	// Command handlers can access connection context
	func myHandler(conn *Connection, cmd *Command) RedisValue {
		clientAddr := conn.RemoteAddr()
		state := conn.GetState()
		// Process command with connection context
	}
*/
package redkit

import (
	"bufio"
	"context"
	"net"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gobwas/glob"
)

/*
Client Connection Management

Connection wraps a network connection with Redis protocol-specific
functionality including buffered I/O, state tracking, and lifecycle management.

Fields Overview:
- conn: Underlying TCP/TLS network connection
- reader/writer: Buffered I/O for efficient Redis protocol handling
- server: Reference to parent server for configuration and hooks
- state: Atomic connection state (StateNew/Active/Idle/Closed)
- closeOnce: Ensures connection is closed exactly once (thread-safe)
- ctx/cancel: Context for coordinated cancellation and cleanup
- mu: Protects shared mutable fields like lastUsed
- lastUsed: Timestamp for idle timeout management

Thread Safety:
All public methods are thread-safe and can be called concurrently
from multiple goroutines. State transitions are atomic and properly
synchronized with connection hooks and cleanup operations.

Resource Management:
The Connection automatically manages its resources and integrates
with the server's connection tracking for proper cleanup during
shutdown scenarios.
*/

// Connection represents a client connection to the Redis server
type Connection struct {
	conn      net.Conn           // Underlying network connection
	reader    *bufio.Reader      // Buffered reader for efficient parsing
	writer    *bufio.Writer      // Buffered writer for response batching
	server    *Server            // Parent server reference
	state     atomic.Int32       // Current connection state (atomic)
	closeOnce sync.Once          // Ensures single cleanup execution
	ctx       context.Context    // Connection context for cancellation
	cancel    context.CancelFunc // Context cancellation function
	mu        sync.RWMutex       // Protects mutable fields
	lastUsed  time.Time          // Last activity timestamp for idle detection

	id        uint64 // Stable id for CLIENT LIST and pub/sub bus indexing
	name      string // CLIENT SETNAME value, empty until set
	createdAt time.Time

	// Pub/Sub subscription state (spec §4.E). Only ever touched by this
	// connection's own goroutine plus the PubSub bus under its own lock,
	// so no separate mutex is needed here.
	channels map[string]struct{}
	patterns map[string]glob.Glob

	// Transaction state (spec §3.4/§4.C). txQueue accumulates commands
	// between MULTI and EXEC/DISCARD; watch records the key version
	// WATCH observed so EXEC can detect intervening writes.
	txState TxState
	txQueue []*Command
	watch   map[string]uint64

	// Last-command bookkeeping for CLIENT LIST's age/idle/cmd fields
	// (spec §4.D). Set by dispatch on every command, read under mu by
	// clientList from another connection's goroutine.
	lastCommandAt   time.Time
	lastCommandName string

	// replica marks a connection that completed PSYNC and is now a
	// streaming replica target, for CLIENT LIST's flags field.
	replica bool
}

// TxState tracks a connection's transaction mode.
type TxState int

const (
	TxNone   TxState = iota // Not inside MULTI
	TxQueued                // Inside MULTI, queueing commands
	TxDirty                 // Inside MULTI, but a command failed to queue (bad arity/unknown)
)

// ID returns the connection's stable identifier.
func (c *Connection) ID() uint64 { return c.id }

// Name returns the CLIENT SETNAME value, or "" if unset.
func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

// SetName sets the CLIENT SETNAME value.
func (c *Connection) SetName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
}

/*
Connection State Management

These methods manage connection state transitions and provide
thread-safe access to connection status information.
*/

// setState updates the connection state
// Atomically updates the connection state and triggers the server's
// connection state hook if configured. This enables monitoring and
// metrics collection for connection lifecycle events.
//
// State transitions follow the pattern:
// StateNew -> StateActive -> StateIdle -> StateClosed
//
//	↑         ↓
//	└─────────┘ (can cycle)
//
// Parameters:
// - state: New connection state to set
func (c *Connection) setState(state ConnState) {
	c.state.Store(int32(state))
	if c.server.ConnStateHook != nil {
		c.server.ConnStateHook(c.conn, state)
	}
}

// Close closes the connection
// Performs thread-safe connection cleanup exactly once, regardless of
// how many times it's called. The cleanup process includes:
// 1. Setting connection state to StateClosed
// 2. Cancelling the connection context (stops background operations)
// 3. Closing the underlying network connection
//
// This method is safe to call multiple times and from multiple goroutines.
// Subsequent calls after the first will be no-ops.
//
// Returns:
// - error: Network connection close error, if any
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// GetState returns the current connection state
// Thread-safe method to query the current state without triggering
// any state transitions or side effects. Useful for monitoring,
// logging, and conditional logic based on connection status.
//
// Returns:
// - ConnState: Current connection state (StateNew/Active/Idle/Closed)
func (c *Connection) GetState() ConnState {
	return ConnState(c.state.Load())
}

/*
Network Address Access

These methods provide access to the connection's network endpoints
for logging, monitoring, and access control purposes.
*/

// RemoteAddr returns the remote network address
// Provides access to the client's network address for logging,
// access control, and monitoring purposes. The address format
// depends on the network type (TCP: "IP:port", Unix: socket path).
//
// Returns:
// - net.Addr: Client's network address
func (c *Connection) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// LocalAddr returns the local network address
// Provides access to the server's local address that accepted
// this connection. Useful for multi-interface servers and logging.
//
// Returns:
// - net.Addr: Server's local network address for this connection
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// recordCommand stamps the connection with the command dispatch just
// observed, so CLIENT LIST can report age/idle/cmd per spec §4.D.
func (c *Connection) recordCommand(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastCommandAt = time.Now()
	c.lastCommandName = name
}

// lastCommand returns the name of the most recently dispatched command
// on this connection and how long ago that was, for CLIENT LIST.
func (c *Connection) lastCommand() (name string, idle time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.lastCommandAt.IsZero() {
		return "", 0
	}
	return c.lastCommandName, time.Since(c.lastCommandAt)
}

// MarkReplica flags this connection as a streaming replica target after
// a successful PSYNC handshake, so CLIENT LIST reports flags=S for it.
// internal/replication.Primary calls this from HandlePSYNC.
func (c *Connection) MarkReplica() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replica = true
}

// isReplica reports whether MarkReplica has been called on this connection.
func (c *Connection) isReplica() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.replica
}

// fd best-effort extracts the connection's underlying OS file descriptor
// for CLIENT LIST, returning -1 when the transport doesn't expose one
// (e.g. the net.Pipe connections used in tests).
func (c *Connection) fd() int {
	sc, ok := c.conn.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return -1
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		return -1
	}
	fd := -1
	rawConn.Control(func(p uintptr) { fd = int(p) })
	return fd
}

// Server returns the parent server, so a command registered from outside
// this package (cmd/redkit-server's replication/persistence overrides)
// can reach its Keyspace, AOF and Repl hooks.
func (c *Connection) Server() *Server {
	return c.server
}

// WriteRaw writes b directly to the connection's writer and flushes,
// under the same per-connection lock Publish uses to fan messages into
// a connection from a goroutine other than the one reading its commands.
// internal/replication.Primary uses this to propagate writes into a
// replica's stream without racing that replica's own read loop.
func (c *Connection) WriteRaw(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.writer.Write(b); err != nil {
		return err
	}
	return c.writer.Flush()
}
