package redkit

// Set commands, backed by Keyspace's SAdd/SRem/... family.

func registerSetCommands(s *Server) {
	s.registerCommand(string(SADD), 3, -1, cmdSAdd)
	s.registerCommand(string(SREM), 3, -1, cmdSRem)
	s.registerCommand(string(SISMEMBER), 3, 3, cmdSIsMember)
	s.registerCommand(string(SMEMBERS), 2, 2, cmdSMembers)
	s.registerCommand(string(SCARD), 2, 2, cmdSCard)
}

func cmdSAdd(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.SAdd(cmd.Args[0], cmd.Args[1:]...)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdSRem(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.SRem(cmd.Args[0], cmd.Args[1:]...)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdSIsMember(conn *Connection, cmd *Command) RedisValue {
	ok, err := conn.server.Keyspace.SIsMember(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: boolToInt(ok)}
}

func cmdSMembers(conn *Connection, cmd *Command) RedisValue {
	members, err := conn.server.Keyspace.SMembers(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	out := make([]RedisValue, len(members))
	for i, m := range members {
		out[i] = RedisValue{Type: BulkString, Bulk: []byte(m)}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdSCard(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.SCard(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}
