package redkit

// Hash commands, backed by Keyspace's HSet/HGet/... family.

func registerHashCommands(s *Server) {
	s.registerCommand(string(HSET), 4, -1, cmdHSet)
	s.registerCommand(string(HSETNX), 4, 4, cmdHSetNX)
	s.registerCommand(string(HGET), 3, 3, cmdHGet)
	s.registerCommand(string(HDEL), 3, -1, cmdHDel)
	s.registerCommand(string(HGETALL), 2, 2, cmdHGetAll)
	s.registerCommand(string(HKEYS), 2, 2, cmdHKeys)
	s.registerCommand(string(HVALS), 2, 2, cmdHVals)
	s.registerCommand(string(HEXISTS), 3, 3, cmdHExists)
	s.registerCommand(string(HLEN), 2, 2, cmdHLen)
}

func cmdHSet(conn *Connection, cmd *Command) RedisValue {
	if len(cmd.Args[1:])%2 != 0 {
		return arityErr(cmd.Name)
	}
	pairs := make(map[string][]byte, (len(cmd.Args)-1)/2)
	for i := 1; i < len(cmd.Args); i += 2 {
		pairs[cmd.Args[i]] = []byte(cmd.Args[i+1])
	}
	n, err := conn.server.Keyspace.HSet(cmd.Args[0], pairs)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdHSetNX(conn *Connection, cmd *Command) RedisValue {
	ks := conn.server.Keyspace
	_, exists, err := ks.HGet(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return errReply(err)
	}
	if exists {
		return RedisValue{Type: Integer, Int: 0}
	}
	if _, err := ks.HSet(cmd.Args[0], map[string][]byte{cmd.Args[1]: []byte(cmd.Args[2])}); err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: 1}
}

func cmdHGet(conn *Connection, cmd *Command) RedisValue {
	val, ok, err := conn.server.Keyspace.HGet(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return RedisValue{Type: Null}
	}
	return RedisValue{Type: BulkString, Bulk: val}
}

func cmdHDel(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.HDel(cmd.Args[0], cmd.Args[1:]...)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdHGetAll(conn *Connection, cmd *Command) RedisValue {
	m, err := conn.server.Keyspace.HGetAll(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	out := make([]RedisValue, 0, len(m)*2)
	for field, val := range m {
		out = append(out, RedisValue{Type: BulkString, Bulk: []byte(field)}, RedisValue{Type: BulkString, Bulk: val})
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdHKeys(conn *Connection, cmd *Command) RedisValue {
	keys, err := conn.server.Keyspace.HKeys(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	out := make([]RedisValue, len(keys))
	for i, k := range keys {
		out[i] = RedisValue{Type: BulkString, Bulk: []byte(k)}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdHVals(conn *Connection, cmd *Command) RedisValue {
	vals, err := conn.server.Keyspace.HVals(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	out := make([]RedisValue, len(vals))
	for i, v := range vals {
		out[i] = RedisValue{Type: BulkString, Bulk: v}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdHExists(conn *Connection, cmd *Command) RedisValue {
	ok, err := conn.server.Keyspace.HExists(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdHLen(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.HLen(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}
