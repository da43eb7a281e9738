package redkit

import "strconv"

// List commands, backed by Keyspace's LPush/RPush/popList family.

func registerListCommands(s *Server) {
	s.registerCommand(string(LPUSH), 3, -1, cmdLPush)
	s.registerCommand(string(RPUSH), 3, -1, cmdRPush)
	s.registerCommand(string(LPOP), 2, 3, cmdLPop)
	s.registerCommand(string(RPOP), 2, 3, cmdRPop)
	s.registerCommand(string(LRANGE), 4, 4, cmdLRange)
	s.registerCommand(string(LLEN), 2, 2, cmdLLen)
}

func cmdLPush(conn *Connection, cmd *Command) RedisValue {
	vals := make([][]byte, len(cmd.Args)-1)
	for i, a := range cmd.Args[1:] {
		vals[i] = []byte(a)
	}
	n, err := conn.server.Keyspace.LPush(cmd.Args[0], vals...)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdRPush(conn *Connection, cmd *Command) RedisValue {
	vals := make([][]byte, len(cmd.Args)-1)
	for i, a := range cmd.Args[1:] {
		vals[i] = []byte(a)
	}
	n, err := conn.server.Keyspace.RPush(cmd.Args[0], vals...)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func popCount(cmd *Command) (int, bool, RedisValue) {
	if len(cmd.Args) == 1 {
		return 1, false, RedisValue{}
	}
	n, err := strconv.Atoi(cmd.Args[1])
	if err != nil || n < 0 {
		return 0, false, RedisValue{Type: ErrorReply, Str: "ERR value is out of range, must be positive"}
	}
	return n, true, RedisValue{}
}

func cmdLPop(conn *Connection, cmd *Command) RedisValue {
	n, withCount, errVal := popCount(cmd)
	if errVal.Type == ErrorReply {
		return errVal
	}
	popped, err := conn.server.Keyspace.LPop(cmd.Args[0], n)
	if err != nil {
		return errReply(err)
	}
	return popReply(popped, withCount)
}

func cmdRPop(conn *Connection, cmd *Command) RedisValue {
	n, withCount, errVal := popCount(cmd)
	if errVal.Type == ErrorReply {
		return errVal
	}
	popped, err := conn.server.Keyspace.RPop(cmd.Args[0], n)
	if err != nil {
		return errReply(err)
	}
	return popReply(popped, withCount)
}

func popReply(popped [][]byte, withCount bool) RedisValue {
	if len(popped) == 0 {
		if withCount {
			return RedisValue{Type: NullArray}
		}
		return RedisValue{Type: Null}
	}
	if !withCount {
		return RedisValue{Type: BulkString, Bulk: popped[0]}
	}
	out := make([]RedisValue, len(popped))
	for i, v := range popped {
		out[i] = RedisValue{Type: BulkString, Bulk: v}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdLRange(conn *Connection, cmd *Command) RedisValue {
	start, err1 := strconv.Atoi(cmd.Args[1])
	stop, err2 := strconv.Atoi(cmd.Args[2])
	if err1 != nil || err2 != nil {
		return notIntErr()
	}
	items, err := conn.server.Keyspace.LRange(cmd.Args[0], start, stop)
	if err != nil {
		return errReply(err)
	}
	out := make([]RedisValue, len(items))
	for i, v := range items {
		out[i] = RedisValue{Type: BulkString, Bulk: v}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdLLen(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.LLen(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}
