package redkit

import (
	"strconv"
	"strings"
)

// Generic key commands: existence, deletion, renaming, expiration,
// introspection. Backed directly by Keyspace's generic/expiration
// operation set.

func registerGenericCommands(s *Server) {
	s.registerCommand(string(DEL), 2, -1, cmdDel)
	s.registerCommand(string(UNLINK), 2, -1, cmdDel)
	s.registerCommand(string(EXISTS), 2, -1, cmdExists)
	s.registerCommand(string(TYPE), 2, 2, cmdType)
	s.registerCommand(string(KEYS), 2, 2, cmdKeys)
	s.registerCommand(string(RANDOMKEY), 1, 1, cmdRandomKey)
	s.registerCommand(string(RENAME), 3, 3, cmdRename)
	s.registerCommand(string(RENAMENX), 3, 3, cmdRenameNX)
	s.registerCommand(string(COPY), 3, -1, cmdCopy)
	s.registerCommand(string(EXPIRE), 3, -1, cmdExpire)
	s.registerCommand(string(PEXPIRE), 3, -1, cmdPExpire)
	s.registerCommand(string(EXPIREAT), 3, -1, cmdExpireAt)
	s.registerCommand(string(PEXPIREAT), 3, -1, cmdPExpireAt)
	s.registerCommand(string(TTL), 2, 2, cmdTTL)
	s.registerCommand(string(PTTL), 2, 2, cmdPTTL)
	s.registerCommand(string(EXPIRETIME), 2, 2, cmdExpireTime)
	s.registerCommand(string(PEXPIRETIME), 2, 2, cmdPExpireTime)
	s.registerCommand(string(PERSIST), 2, 2, cmdPersist)
}

func cmdDel(conn *Connection, cmd *Command) RedisValue {
	n := conn.server.Keyspace.Del(cmd.Args...)
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdExists(conn *Connection, cmd *Command) RedisValue {
	n := conn.server.Keyspace.Exists(cmd.Args...)
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdType(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: SimpleString, Str: conn.server.Keyspace.Type(cmd.Args[0])}
}

func cmdKeys(conn *Connection, cmd *Command) RedisValue {
	keys, err := conn.server.Keyspace.Keys(cmd.Args[0])
	if err != nil {
		return RedisValue{Type: ErrorReply, Str: "ERR invalid pattern: " + err.Error()}
	}
	out := make([]RedisValue, len(keys))
	for i, k := range keys {
		out[i] = RedisValue{Type: BulkString, Bulk: []byte(k)}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdRandomKey(conn *Connection, cmd *Command) RedisValue {
	key := conn.server.Keyspace.RandomKey()
	if key == "" {
		return RedisValue{Type: Null}
	}
	return RedisValue{Type: BulkString, Bulk: []byte(key)}
}

func cmdRename(conn *Connection, cmd *Command) RedisValue {
	if err := conn.server.Keyspace.Rename(cmd.Args[0], cmd.Args[1]); err != nil {
		return errReply(err)
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdRenameNX(conn *Connection, cmd *Command) RedisValue {
	ok, err := conn.server.Keyspace.RenameNX(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdCopy(conn *Connection, cmd *Command) RedisValue {
	replace := false
	for _, a := range cmd.Args[2:] {
		if strings.EqualFold(a, "REPLACE") {
			replace = true
		}
	}
	ok, err := conn.server.Keyspace.Copy(cmd.Args[0], cmd.Args[1], replace)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func parseExpireCondition(args []string) (ExpireCondition, RedisValue) {
	if len(args) == 0 {
		return ExpireAlways, RedisValue{}
	}
	switch strings.ToUpper(args[0]) {
	case "NX":
		return ExpireNX, RedisValue{}
	case "XX":
		return ExpireXX, RedisValue{}
	case "GT":
		return ExpireGT, RedisValue{}
	case "LT":
		return ExpireLT, RedisValue{}
	default:
		return ExpireAlways, syntaxErr()
	}
}

func cmdExpire(conn *Connection, cmd *Command) RedisValue {
	secs, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return notIntErr()
	}
	cond, errVal := parseExpireCondition(cmd.Args[2:])
	if errVal.Type == ErrorReply {
		return errVal
	}
	ok, serr := conn.server.Keyspace.Expire(cmd.Args[0], secs, cond)
	if serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdPExpire(conn *Connection, cmd *Command) RedisValue {
	ms, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return notIntErr()
	}
	cond, errVal := parseExpireCondition(cmd.Args[2:])
	if errVal.Type == ErrorReply {
		return errVal
	}
	ok, serr := conn.server.Keyspace.PExpire(cmd.Args[0], ms, cond)
	if serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdExpireAt(conn *Connection, cmd *Command) RedisValue {
	when, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return notIntErr()
	}
	cond, errVal := parseExpireCondition(cmd.Args[2:])
	if errVal.Type == ErrorReply {
		return errVal
	}
	ok, serr := conn.server.Keyspace.ExpireAt(cmd.Args[0], when, cond)
	if serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdPExpireAt(conn *Connection, cmd *Command) RedisValue {
	when, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return notIntErr()
	}
	cond, errVal := parseExpireCondition(cmd.Args[2:])
	if errVal.Type == ErrorReply {
		return errVal
	}
	ok, serr := conn.server.Keyspace.PExpireAt(cmd.Args[0], when, cond)
	if serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdTTL(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: Integer, Int: conn.server.Keyspace.TTL(cmd.Args[0])}
}

func cmdPTTL(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: Integer, Int: conn.server.Keyspace.PTTL(cmd.Args[0])}
}

func cmdExpireTime(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: Integer, Int: conn.server.Keyspace.ExpireTime(cmd.Args[0])}
}

func cmdPExpireTime(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: Integer, Int: conn.server.Keyspace.PExpireTime(cmd.Args[0])}
}

func cmdPersist(conn *Connection, cmd *Command) RedisValue {
	return RedisValue{Type: Integer, Int: boolToInt(conn.server.Keyspace.Persist(cmd.Args[0]))}
}
