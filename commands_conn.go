package redkit

import (
	"fmt"
	"strings"
)

/*
Connection-scoped commands: PING/ECHO/QUIT/HELP/CLIENT/RESET.

registerDefaultHandlers replaces the teacher's four-command version
(which only ever wired PING/ECHO/HELP/QUIT) with the full built-in
registry, grouped the same way the teacher's commands.go comments
grouped its category sections.
*/

func (s *Server) registerDefaultHandlers() {
	s.registerCommand(string(PING), 1, 2, cmdPing)
	s.registerCommand(string(ECHO), 2, 2, cmdEcho)
	s.registerCommand(string(QUIT), 1, 1, cmdQuit)
	s.registerCommand(string(HELP), 1, 1, cmdHelp)
	s.registerCommand(string(CLIENT), 2, -1, cmdClient)
	s.registerCommand(string(RESET), 1, 1, cmdReset)

	registerStringCommands(s)
	registerListCommands(s)
	registerHashCommands(s)
	registerSetCommands(s)
	registerZSetCommands(s)
	registerGenericCommands(s)
	registerTxCommands(s)
	registerPubSubCommands(s)
	registerServerCommands(s)
}

func cmdPing(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) == 0 {
		return RedisValue{Type: SimpleString, Str: "PONG"}
	}
	return RedisValue{Type: BulkString, Bulk: []byte(cmd.Args[0])}
}

func cmdEcho(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: BulkString, Bulk: []byte(cmd.Args[0])}
}

func cmdQuit(conn *Connection, cmd *Command) RedisValue {
	defer conn.Close()
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdHelp(conn *Connection, cmd *Command) RedisValue {
	helpText := "redkit - supported commands:\n" +
		"PING [message], ECHO message, QUIT, HELP\n" +
		"GET/SET/SETNX/SETEX/GETSET/GETDEL/APPEND/STRLEN/INCR/DECR/MGET/MSET\n" +
		"LPUSH/RPUSH/LPOP/RPOP/LRANGE/LLEN\n" +
		"HSET/HGET/HDEL/HGETALL/HKEYS/HVALS/HEXISTS/HLEN\n" +
		"SADD/SREM/SISMEMBER/SMEMBERS/SCARD\n" +
		"ZADD/ZREM/ZRANGE/ZRANGEBYSCORE/ZSCORE/ZCARD\n" +
		"DEL/EXISTS/TYPE/KEYS/EXPIRE/TTL/PERSIST/RENAME/COPY\n" +
		"MULTI/EXEC/DISCARD/WATCH/UNWATCH\n" +
		"SUBSCRIBE/UNSUBSCRIBE/PSUBSCRIBE/PUNSUBSCRIBE/PUBLISH/PUBSUB\n" +
		"INFO/CONFIG/DBSIZE/FLUSHALL/FLUSHDB/SAVE/BGREWRITEAOF/TIME/ROLE"
	return RedisValue{Type: BulkString, Bulk: []byte(helpText)}
}

func cmdClient(conn *Connection, cmd *Command) RedisValue {
	sub := strings.ToUpper(cmd.Args[0])
	switch sub {
	case "ID":
		return RedisValue{Type: Integer, Int: int64(conn.ID())}
	case "GETNAME":
		return RedisValue{Type: BulkString, Bulk: []byte(conn.Name())}
	case "SETNAME":
		if len(cmd.Args) != 2 {
			return arityErr(cmd.Name)
		}
		if strings.ContainsAny(cmd.Args[1], " \n") {
			return RedisValue{Type: ErrorReply, Str: "ERR Client names cannot contain spaces, newlines or special characters."}
		}
		conn.SetName(cmd.Args[1])
		return RedisValue{Type: SimpleString, Str: "OK"}
	case "LIST":
		return RedisValue{Type: BulkString, Bulk: []byte(conn.server.clientList())}
	default:
		return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR unknown CLIENT subcommand '%s'", cmd.Args[0])}
	}
}

func cmdReset(conn *Connection, cmd *Command) RedisValue {
	conn.DrainMulti()
	conn.Unwatch()
	conn.server.PubSub.UnsubscribeAll(conn)
	return RedisValue{Type: SimpleString, Str: "RESET"}
}

// clientList renders one line per active connection, in the format
// CLIENT LIST uses: space-separated key=value fields (spec §4.D): id,
// addr, fd, name, age, idle, flags, cmd.
func (s *Server) clientList() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var b strings.Builder
	for c := range s.activeConns {
		cmdName, idle := c.lastCommand()
		if cmdName == "" {
			cmdName = "NULL"
		}
		fmt.Fprintf(&b, "id=%d addr=%s fd=%d name=%s age=%d idle=%d flags=%s cmd=%s\n",
			c.ID(), c.RemoteAddr(), c.fd(), c.Name(),
			int64(nowMs()-c.createdAt.UnixMilli())/1000,
			int64(idle.Seconds()), c.flags(), cmdName)
	}
	return b.String()
}

// flags reports CLIENT LIST's single-letter connection class: N normal,
// P subscriber, S a replica streaming target of this server.
func (c *Connection) flags() string {
	switch {
	case c.isReplica():
		return "S"
	case len(c.channels) > 0 || len(c.patterns) > 0:
		return "P"
	default:
		return "N"
	}
}
