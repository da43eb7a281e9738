package redkit

import (
	"strconv"
	"strings"
)

/*
String commands

Grounded on the teacher's register*Handler stubs for these same command
names (commands.go previously only forwarded to whatever the embedder
supplied); the bodies here are new, backed by Keyspace's string methods
instead of the teacher's nonexistent default storage.
*/

func registerStringCommands(s *Server) {
	s.registerCommand(string(GET), 2, 2, cmdGet)
	s.registerCommand(string(SET), 3, -1, cmdSet)
	s.registerCommand(string(SETNX), 3, 3, cmdSetNX)
	s.registerCommand(string(SETEX), 4, 4, cmdSetEX)
	s.registerCommand(string(PSETEX), 4, 4, cmdPSetEX)
	s.registerCommand(string(GETSET), 3, 3, cmdGetSet)
	s.registerCommand(string(GETDEL), 2, 2, cmdGetDel)
	s.registerCommand(string(APPEND), 3, 3, cmdAppend)
	s.registerCommand(string(STRLEN), 2, 2, cmdStrlen)
	s.registerCommand(string(INCR), 2, 2, cmdIncr)
	s.registerCommand(string(DECR), 2, 2, cmdDecr)
	s.registerCommand(string(INCRBY), 3, 3, cmdIncrBy)
	s.registerCommand(string(DECRBY), 3, 3, cmdDecrBy)
	s.registerCommand(string(MGET), 2, -1, cmdMGet)
	s.registerCommand(string(MSET), 3, -1, cmdMSet)
	s.registerCommand(string(MSETNX), 3, -1, cmdMSetNX)
}

func cmdGet(conn *Connection, cmd *Command) RedisValue {
	val, ok, err := conn.server.Keyspace.GetString(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return RedisValue{Type: Null}
	}
	return RedisValue{Type: BulkString, Bulk: val}
}

func cmdSet(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args) < 2 {
		return arityErr(cmd.Name)
	}
	key, val := cmd.Args[0], []byte(cmd.Args[1])
	exp := Expiry{Policy: ExpiryKeep}
	presence := PresenceAny
	presenceSet := false
	keepTTL := false

	for i := 2; i < len(cmd.Args); i++ {
		switch strings.ToUpper(cmd.Args[i]) {
		case "NX":
			if presenceSet {
				return syntaxErr()
			}
			presence = PresenceOnlyIfAbsent
			presenceSet = true
		case "XX":
			if presenceSet {
				return syntaxErr()
			}
			presence = PresenceOnlyIfPresent
			presenceSet = true
		case "KEEPTTL":
			keepTTL = true
		case "EX":
			i++
			if i >= len(cmd.Args) {
				return syntaxErr()
			}
			secs, err := strconv.ParseInt(cmd.Args[i], 10, 64)
			if err != nil {
				return notIntErr()
			}
			if secs <= 0 {
				return invalidExpireErr()
			}
			exp = Expiry{Policy: ExpiryRelativeMs, Ms: secs * 1000}
		case "PX":
			i++
			if i >= len(cmd.Args) {
				return syntaxErr()
			}
			ms, err := strconv.ParseInt(cmd.Args[i], 10, 64)
			if err != nil {
				return notIntErr()
			}
			if ms <= 0 {
				return invalidExpireErr()
			}
			exp = Expiry{Policy: ExpiryRelativeMs, Ms: ms}
		default:
			return syntaxErr()
		}
	}
	if !keepTTL && exp.Policy == ExpiryKeep {
		exp = Expiry{Policy: ExpiryClear}
	}

	ok, err := conn.server.Keyspace.SetString(key, val, exp, presence)
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return RedisValue{Type: Null}
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdSetNX(conn *Connection, cmd *Command) RedisValue {
	ok, err := conn.server.Keyspace.SetString(cmd.Args[0], []byte(cmd.Args[1]), Expiry{Policy: ExpiryClear}, PresenceOnlyIfAbsent)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdSetEX(conn *Connection, cmd *Command) RedisValue {
	secs, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil || secs <= 0 {
		return invalidExpireErr()
	}
	_, serr := conn.server.Keyspace.SetString(cmd.Args[0], []byte(cmd.Args[2]), Expiry{Policy: ExpiryRelativeMs, Ms: secs * 1000}, PresenceAny)
	if serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdPSetEX(conn *Connection, cmd *Command) RedisValue {
	ms, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil || ms <= 0 {
		return invalidExpireErr()
	}
	_, serr := conn.server.Keyspace.SetString(cmd.Args[0], []byte(cmd.Args[2]), Expiry{Policy: ExpiryRelativeMs, Ms: ms}, PresenceAny)
	if serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdGetSet(conn *Connection, cmd *Command) RedisValue {
	ks := conn.server.Keyspace
	old, ok, err := ks.GetString(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	if _, serr := ks.SetString(cmd.Args[0], []byte(cmd.Args[1]), Expiry{Policy: ExpiryClear}, PresenceAny); serr != nil {
		return errReply(serr)
	}
	if !ok {
		return RedisValue{Type: Null}
	}
	return RedisValue{Type: BulkString, Bulk: old}
}

func cmdGetDel(conn *Connection, cmd *Command) RedisValue {
	ks := conn.server.Keyspace
	val, ok, err := ks.GetString(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return RedisValue{Type: Null}
	}
	ks.Del(cmd.Args[0])
	return RedisValue{Type: BulkString, Bulk: val}
}

func cmdAppend(conn *Connection, cmd *Command) RedisValue {
	ks := conn.server.Keyspace
	old, ok, err := ks.GetString(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	combined := append(append([]byte(nil), old...), cmd.Args[1]...)
	if _, serr := ks.SetString(cmd.Args[0], combined, Expiry{Policy: ExpiryKeep}, PresenceAny); serr != nil {
		return errReply(serr)
	}
	_ = ok
	return RedisValue{Type: Integer, Int: int64(len(combined))}
}

func cmdStrlen(conn *Connection, cmd *Command) RedisValue {
	val, ok, err := conn.server.Keyspace.GetString(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return RedisValue{Type: Integer, Int: 0}
	}
	return RedisValue{Type: Integer, Int: int64(len(val))}
}

func incrByHelper(conn *Connection, key string, delta int64) RedisValue {
	ks := conn.server.Keyspace
	val, ok, err := ks.GetString(key)
	if err != nil {
		return errReply(err)
	}
	var cur int64
	if ok {
		parsed, perr := strconv.ParseInt(string(val), 10, 64)
		if perr != nil {
			return notIntErr()
		}
		cur = parsed
	}
	next := cur + delta
	if _, serr := ks.SetString(key, []byte(strconv.FormatInt(next, 10)), Expiry{Policy: ExpiryKeep}, PresenceAny); serr != nil {
		return errReply(serr)
	}
	return RedisValue{Type: Integer, Int: next}
}

func cmdIncr(conn *Connection, cmd *Command) RedisValue {
	return incrByHelper(conn, cmd.Args[0], 1)
}

func cmdDecr(conn *Connection, cmd *Command) RedisValue {
	return incrByHelper(conn, cmd.Args[0], -1)
}

func cmdIncrBy(conn *Connection, cmd *Command) RedisValue {
	delta, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return notIntErr()
	}
	return incrByHelper(conn, cmd.Args[0], delta)
}

func cmdDecrBy(conn *Connection, cmd *Command) RedisValue {
	delta, err := strconv.ParseInt(cmd.Args[1], 10, 64)
	if err != nil {
		return notIntErr()
	}
	return incrByHelper(conn, cmd.Args[0], -delta)
}

func cmdMGet(conn *Connection, cmd *Command) RedisValue {
	ks := conn.server.Keyspace
	out := make([]RedisValue, len(cmd.Args))
	for i, key := range cmd.Args {
		val, ok, err := ks.GetString(key)
		if err != nil || !ok {
			out[i] = RedisValue{Type: Null}
			continue
		}
		out[i] = RedisValue{Type: BulkString, Bulk: val}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdMSet(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args)%2 != 0 {
		return arityErr(cmd.Name)
	}
	ks := conn.server.Keyspace
	for i := 0; i < len(cmd.Args); i += 2 {
		if _, err := ks.SetString(cmd.Args[i], []byte(cmd.Args[i+1]), Expiry{Policy: ExpiryClear}, PresenceAny); err != nil {
			return errReply(err)
		}
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdMSetNX(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args)%2 != 0 {
		return arityErr(cmd.Name)
	}
	ks := conn.server.Keyspace
	for i := 0; i < len(cmd.Args); i += 2 {
		if n := ks.Exists(cmd.Args[i]); n > 0 {
			return RedisValue{Type: Integer, Int: 0}
		}
	}
	for i := 0; i < len(cmd.Args); i += 2 {
		if _, err := ks.SetString(cmd.Args[i], []byte(cmd.Args[i+1]), Expiry{Policy: ExpiryClear}, PresenceAny); err != nil {
			return errReply(err)
		}
	}
	return RedisValue{Type: Integer, Int: 1}
}
