package redkit

import "strings"

// PUBLISH/(P)SUBSCRIBE/(P)UNSUBSCRIBE/PUBSUB, backed by the PubSub bus.
// SUBSCRIBE and friends reply with one push frame per channel/pattern,
// matching real Redis's multi-reply behavior for a single SUBSCRIBE call
// naming several channels; dispatch.go's subscriberModeAllowed gate is
// what restricts a subscribed connection to this command set afterward.

func registerPubSubCommands(s *Server) {
	s.registerCommand(string(PUBLISH), 3, 3, cmdPublish)
	s.registerCommand(string(SUBSCRIBE), 2, -1, cmdSubscribe)
	s.registerCommand(string(UNSUBSCRIBE), 1, -1, cmdUnsubscribe)
	s.registerCommand(string(PSUBSCRIBE), 2, -1, cmdPSubscribe)
	s.registerCommand(string(PUNSUBSCRIBE), 1, -1, cmdPUnsubscribe)
	s.registerCommand(string(PUBSUB), 2, -1, cmdPubSub)
}

func cmdPublish(conn *Connection, cmd *Command) RedisValue {
	n := conn.server.PubSub.Publish(cmd.Args[0], []byte(cmd.Args[1]))
	return RedisValue{Type: Integer, Int: int64(n)}
}

func subReply(kind, name string, count int) RedisValue {
	return RedisValue{Type: Array, Array: []RedisValue{
		{Type: BulkString, Bulk: []byte(kind)},
		{Type: BulkString, Bulk: []byte(name)},
		{Type: Integer, Int: int64(count)},
	}}
}

func cmdSubscribe(conn *Connection, cmd *Command) RedisValue {
	var last RedisValue
	for _, ch := range cmd.Args {
		n := conn.server.PubSub.Subscribe(conn, ch)
		last = subReply("subscribe", ch, n)
		conn.mu.Lock()
		_ = conn.writeValue(last)
		_ = conn.writer.Flush()
		conn.mu.Unlock()
	}
	return RedisValue{Type: NoReply}
}

func cmdUnsubscribe(conn *Connection, cmd *Command) RedisValue {
	channels := cmd.Args
	if len(channels) == 0 {
		for ch := range conn.channels {
			channels = append(channels, ch)
		}
	}
	if len(channels) == 0 {
		return RedisValue{Type: Array, Array: []RedisValue{
			{Type: BulkString, Bulk: []byte("unsubscribe")}, {Type: Null}, {Type: Integer, Int: 0},
		}}
	}
	var last RedisValue
	for _, ch := range channels {
		n := conn.server.PubSub.Unsubscribe(conn, ch)
		last = subReply("unsubscribe", ch, n)
		conn.mu.Lock()
		_ = conn.writeValue(last)
		_ = conn.writer.Flush()
		conn.mu.Unlock()
	}
	return RedisValue{Type: NoReply}
}

func cmdPSubscribe(conn *Connection, cmd *Command) RedisValue {
	for _, pat := range cmd.Args {
		n, err := conn.server.PubSub.PSubscribe(conn, pat)
		if err != nil {
			return RedisValue{Type: ErrorReply, Str: "ERR invalid pattern: " + err.Error()}
		}
		reply := subReply("psubscribe", pat, n)
		conn.mu.Lock()
		_ = conn.writeValue(reply)
		_ = conn.writer.Flush()
		conn.mu.Unlock()
	}
	return RedisValue{Type: NoReply}
}

func cmdPUnsubscribe(conn *Connection, cmd *Command) RedisValue {
	patterns := cmd.Args
	if len(patterns) == 0 {
		for p := range conn.patterns {
			patterns = append(patterns, p)
		}
	}
	if len(patterns) == 0 {
		return RedisValue{Type: Array, Array: []RedisValue{
			{Type: BulkString, Bulk: []byte("punsubscribe")}, {Type: Null}, {Type: Integer, Int: 0},
		}}
	}
	var last RedisValue
	for _, pat := range patterns {
		n := conn.server.PubSub.PUnsubscribe(conn, pat)
		last = subReply("punsubscribe", pat, n)
		conn.mu.Lock()
		_ = conn.writeValue(last)
		_ = conn.writer.Flush()
		conn.mu.Unlock()
	}
	return RedisValue{Type: NoReply}
}

func cmdPubSub(conn *Connection, cmd *Command) RedisValue {
	sub := strings.ToUpper(cmd.Args[0])
	switch sub {
	case "CHANNELS":
		pattern := ""
		if len(cmd.Args) > 1 {
			pattern = cmd.Args[1]
		}
		channels, err := conn.server.PubSub.Channels(pattern)
		if err != nil {
			return RedisValue{Type: ErrorReply, Str: "ERR invalid pattern: " + err.Error()}
		}
		out := make([]RedisValue, len(channels))
		for i, ch := range channels {
			out[i] = RedisValue{Type: BulkString, Bulk: []byte(ch)}
		}
		return RedisValue{Type: Array, Array: out}
	case "NUMSUB":
		counts := conn.server.PubSub.NumSub(cmd.Args[1:])
		out := make([]RedisValue, 0, len(cmd.Args[1:])*2)
		for _, ch := range cmd.Args[1:] {
			out = append(out, RedisValue{Type: BulkString, Bulk: []byte(ch)}, RedisValue{Type: Integer, Int: int64(counts[ch])})
		}
		return RedisValue{Type: Array, Array: out}
	default:
		return RedisValue{Type: ErrorReply, Str: "ERR unknown PUBSUB subcommand '" + cmd.Args[0] + "'"}
	}
}
