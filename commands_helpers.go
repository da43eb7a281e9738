package redkit

import (
	"fmt"
	"strings"
)

// errReply turns a Go error from a Keyspace method into a RESP error
// reply, passing ErrWrongType's message through unchanged since it is
// already formatted as a Redis error string.
func errReply(err error) RedisValue {
	return RedisValue{Type: ErrorReply, Str: err.Error()}
}

func arityErr(name string) RedisValue {
	return RedisValue{Type: ErrorReply, Str: fmt.Sprintf("ERR wrong number of arguments for '%s' command", strings.ToLower(name))}
}

func syntaxErr() RedisValue {
	return RedisValue{Type: ErrorReply, Str: "ERR syntax error"}
}

func notIntErr() RedisValue {
	return RedisValue{Type: ErrorReply, Str: "ERR value is not an integer or out of range"}
}

func notFloatErr() RedisValue {
	return RedisValue{Type: ErrorReply, Str: "ERR value is not a valid float"}
}

func invalidExpireErr() RedisValue {
	return RedisValue{Type: ErrorReply, Str: "ERR invalid expire time"}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
