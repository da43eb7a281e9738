package redkit

import (
	"fmt"
	"strings"
)

/*
Command registry and dispatch

commandDescriptor replaces the teacher's bare map[string]CommandHandler
with enough metadata to implement the full dispatch algorithm: arity
validation, write-command propagation (AOF + replication), and
subscriber-mode gating (a connection in subscriber mode may only run
SUBSCRIBE/UNSUBSCRIBE/PSUBSCRIBE/PUNSUBSCRIBE/PING/QUIT/RESET). Registration
still goes through Server.RegisterCommand/RegisterCommandFunc, kept
arity-unchecked for compatibility with existing callers (arity -1 means
"no bound").
*/

type commandDescriptor struct {
	minArity           int // total args including command name; -1 = no minimum
	maxArity           int // -1 = unbounded
	isWrite            bool
	subscriberAllowed  bool
	handler            CommandHandler
}

// writeCommands lists command names that mutate the keyspace and so must
// be logged to AOF and propagated to replicas after a successful
// execution (spec §4.C step 6-7).
var writeCommands = map[string]bool{
	"SET": true, "DEL": true, "UNLINK": true, "EXPIRE": true, "PEXPIRE": true,
	"EXPIREAT": true, "PEXPIREAT": true, "PERSIST": true, "RENAME": true,
	"RENAMENX": true, "COPY": true, "FLUSHALL": true, "FLUSHDB": true,
	"SETNX": true, "SETEX": true, "PSETEX": true,
	"APPEND": true, "INCR": true, "DECR": true, "INCRBY": true,
	"DECRBY": true, "MSET": true, "MSETNX": true, "GETSET": true, "GETDEL": true,
	"LPUSH": true, "RPUSH": true, "LPOP": true, "RPOP": true,
	"SADD": true, "SREM": true, "SPOP": true,
	"HSET": true, "HDEL": true, "HINCRBY": true, "HSETNX": true,
	"ZADD": true, "ZREM": true, "ZINCRBY": true,
	"RESTORE": true,
}

// subscriberModeAllowed lists commands a connection may run while it has
// at least one active channel or pattern subscription (spec §4.C step
// 2), per real Redis's restriction against running arbitrary commands on
// a subscriber connection.
var subscriberModeAllowed = map[string]bool{
	"SUBSCRIBE": true, "UNSUBSCRIBE": true, "PSUBSCRIBE": true,
	"PUNSUBSCRIBE": true, "PING": true, "QUIT": true, "RESET": true,
}

// txExemptCommands lists commands that run immediately even inside
// MULTI, rather than being queued (spec §4.C step 1).
var txExemptCommands = map[string]bool{
	"MULTI": true, "EXEC": true, "DISCARD": true, "WATCH": true, "UNWATCH": true,
	"RESET": true,
}

// RegisterCommand registers a command handler with unrestricted arity.
// Kept for compatibility with direct CommandHandler implementations; use
// registerCommand (lowercase, internal) for built-ins that need arity
// checking and write propagation.
func (s *Server) RegisterCommand(name string, handler CommandHandler) error {
	if name == "" || handler == nil {
		return fmt.Errorf("empty command name")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[strings.ToUpper(name)] = &commandDescriptor{
		minArity: -1, maxArity: -1, handler: handler,
	}
	return nil
}

// RegisterCommandFunc is the function-literal convenience form of
// RegisterCommand.
func (s *Server) RegisterCommandFunc(name string, handler func(*Connection, *Command) RedisValue) error {
	if name == "" || handler == nil {
		return fmt.Errorf("empty command name")
	}
	return s.RegisterCommand(name, CommandHandlerFunc(handler))
}

// registerCommand is the internal registration path used by this
// module's own commands_*.go files: it fills in arity bounds so dispatch
// can reject malformed calls before the handler ever runs.
func (s *Server) registerCommand(name string, minArity, maxArity int, handler CommandHandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.ToUpper(name)
	s.handlers[name] = &commandDescriptor{
		minArity:          minArity,
		maxArity:          maxArity,
		isWrite:           writeCommands[name],
		subscriberAllowed: subscriberModeAllowed[name],
		handler:           handler,
	}
}

// handleCommand implements the full dispatch algorithm from spec §4.C:
//  1. Transaction queueing: inside MULTI, most commands are queued, not run.
//  2. Subscriber-mode gating: a subscribed connection may only run a
//     small allow-list of commands.
//  3. Arity validation against the command's descriptor.
//  4. READONLY rejection of writes arriving on a read-only replica.
//  5. Middleware-wrapped execution of the real handler.
//  6. AOF logging and replica propagation of successful write commands.
func (s *Server) handleCommand(conn *Connection, cmd *Command) RedisValue {
	defer func() {
		if r := recover(); r != nil {
			if s.Logger != nil {
				s.Logger.Errorw("panic in command handler", "command", cmd.Name, "panic", r)
			}
		}
	}()

	if cmd == nil || cmd.Name == "" {
		return RedisValue{Type: ErrorReply, Str: "ERR empty command"}
	}

	name := strings.ToUpper(cmd.Name)
	conn.recordCommand(strings.ToLower(name))

	if conn.InMulti() && !txExemptCommands[name] {
		s.mu.RLock()
		desc, exists := s.handlers[name]
		s.mu.RUnlock()
		if !exists {
			conn.MarkDirty()
			return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR unknown command '%s'", cmd.Name)}
		}
		if !arityOK(desc, len(cmd.Raw)) {
			conn.MarkDirty()
			return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd.Name))}
		}
		conn.QueueCommand(cmd)
		return RedisValue{Type: SimpleString, Str: "QUEUED"}
	}

	if len(conn.channels) > 0 || len(conn.patterns) > 0 {
		if !subscriberModeAllowed[name] {
			return RedisValue{Type: ErrorReply, Str: fmt.Sprintf(
				"ERR Can't execute '%s': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context",
				strings.ToLower(cmd.Name))}
		}
	}

	s.mu.RLock()
	desc, exists := s.handlers[name]
	s.mu.RUnlock()

	if !exists {
		return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR unknown command '%s'", cmd.Name)}
	}

	if !arityOK(desc, len(cmd.Raw)) {
		return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(cmd.Name))}
	}

	if desc.isWrite && s.Repl != nil && s.Repl.ReadOnly() {
		return RedisValue{Type: ErrorReply, Str: "READONLY You can't write against a read only replica."}
	}

	var result RedisValue
	if s.middleware != nil {
		result = s.middleware.Execute(conn, cmd, desc.handler)
	} else {
		result = desc.handler.Handle(conn, cmd)
	}

	if desc.isWrite && result.Type != ErrorReply {
		if s.AOF != nil {
			if err := s.AOF.Append(cmd); err != nil && s.Logger != nil {
				s.Logger.Errorw("AOF append failed", "command", cmd.Name, "error", err)
			}
		}
		if s.Repl != nil {
			s.Repl.Propagate(cmd)
		}
	}

	return result
}

// ApplyCommand runs a command directly against this server's handlers,
// bypassing transaction queueing, subscriber gating, AOF logging, and
// replication propagation entirely. It exists for the two callers that
// need to replay or apply writes that already happened somewhere else:
// internal/aof's boot-time replay, and internal/replication.Replica's
// apply loop (spec §4.F/§4.H — neither path may re-log or re-propagate).
func (s *Server) ApplyCommand(name string, args []string) RedisValue {
	name = strings.ToUpper(name)
	raw := make([]RedisValue, 1+len(args))
	raw[0] = RedisValue{Type: BulkString, Bulk: []byte(name)}
	for i, a := range args {
		raw[i+1] = RedisValue{Type: BulkString, Bulk: []byte(a)}
	}
	cmd := &Command{Name: name, Args: args, Raw: raw}

	s.mu.RLock()
	desc, exists := s.handlers[name]
	s.mu.RUnlock()
	if !exists {
		return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR unknown command '%s'", name)}
	}
	if !arityOK(desc, len(cmd.Raw)) {
		return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))}
	}
	return desc.handler.Handle(&Connection{server: s}, cmd)
}

func arityOK(desc *commandDescriptor, total int) bool {
	if desc.minArity >= 0 && total < desc.minArity {
		return false
	}
	if desc.maxArity >= 0 && total > desc.maxArity {
		return false
	}
	return true
}

// execTransaction runs every queued command in order, after confirming
// the connection's watched keys are all unchanged. Command results are
// collected into a single Array reply; a dirty transaction (queueing-time
// error, or a watched key that changed) returns an error/NullArray
// instead of running anything queued.
func (s *Server) execTransaction(conn *Connection) RedisValue {
	if conn.IsDirty() {
		conn.DrainMulti()
		return RedisValue{Type: ErrorReply, Str: "EXECABORT Transaction discarded because of previous errors."}
	}
	if !conn.WatchValid(s.Keyspace) {
		conn.DrainMulti()
		return RedisValue{Type: NullArray}
	}
	queue := conn.DrainMulti()
	results := make([]RedisValue, len(queue))
	for i, queued := range queue {
		results[i] = s.handleCommand(conn, queued)
	}
	return RedisValue{Type: Array, Array: results}
}
