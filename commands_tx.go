package redkit

// MULTI/EXEC/DISCARD/WATCH/UNWATCH. The queueing/dirty-tracking logic
// itself lives on *Connection (transaction.go); these handlers are thin
// wrappers that run outside the normal queue path (dispatch.go exempts
// them via txExemptCommands).

func registerTxCommands(s *Server) {
	s.registerCommand(string(MULTI), 1, 1, cmdMulti)
	s.registerCommand(string(EXEC), 1, 1, cmdExec)
	s.registerCommand(string(DISCARD), 1, 1, cmdDiscard)
	s.registerCommand(string(WATCH), 2, -1, cmdWatch)
	s.registerCommand(string(UNWATCH), 1, 1, cmdUnwatch)
}

func cmdMulti(conn *Connection, cmd *Command) RedisValue {
	if !conn.BeginMulti() {
		return RedisValue{Type: ErrorReply, Str: "ERR MULTI calls can not be nested"}
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdExec(conn *Connection, cmd *Command) RedisValue {
	if !conn.InMulti() {
		return RedisValue{Type: ErrorReply, Str: "ERR EXEC without MULTI"}
	}
	return conn.server.execTransaction(conn)
}

func cmdDiscard(conn *Connection, cmd *Command) RedisValue {
	if !conn.InMulti() {
		return RedisValue{Type: ErrorReply, Str: "ERR DISCARD without MULTI"}
	}
	conn.DrainMulti()
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdWatch(conn *Connection, cmd *Command) RedisValue {
	if conn.InMulti() {
		return RedisValue{Type: ErrorReply, Str: "ERR WATCH inside MULTI is not allowed"}
	}
	for _, key := range cmd.Args {
		conn.Watch(conn.server.Keyspace, key)
	}
	return RedisValue{Type: SimpleString, Str: "OK"}
}

func cmdUnwatch(conn *Connection, cmd *Command) RedisValue {
	conn.Unwatch()
	return RedisValue{Type: SimpleString, Str: "OK"}
}
