package redkit

import (
	"math"
	"strconv"
	"strings"
)

var (
	negInf = math.Inf(-1)
	posInf = math.Inf(1)
)

// Sorted set commands, backed by Keyspace's ZAdd/ZRem/... family.

func registerZSetCommands(s *Server) {
	s.registerCommand(string(ZADD), 4, -1, cmdZAdd)
	s.registerCommand(string(ZREM), 3, -1, cmdZRem)
	s.registerCommand(string(ZRANGE), 4, 4, cmdZRange)
	s.registerCommand(string(ZRANGEBYSCORE), 4, 4, cmdZRangeByScore)
	s.registerCommand(string(ZSCORE), 3, 3, cmdZScore)
	s.registerCommand(string(ZCARD), 2, 2, cmdZCard)
}

func cmdZAdd(conn *Connection, cmd *Command) RedisValue {
	args := cmd.Args[1:]
	var flags ZAddFlags
	i := 0
	for i < len(args) {
		switch strings.ToUpper(args[i]) {
		case "NX":
			flags.NX = true
		case "XX":
			flags.XX = true
		case "GT":
			flags.GT = true
		case "LT":
			flags.LT = true
		case "CH":
			flags.CH = true
		default:
			goto pairs
		}
		i++
	}
pairs:
	rest := args[i:]
	if len(rest) == 0 || len(rest)%2 != 0 {
		return syntaxErr()
	}
	pairs := make(map[string]float64, len(rest)/2)
	for j := 0; j < len(rest); j += 2 {
		score, err := strconv.ParseFloat(rest[j], 64)
		if err != nil || math.IsNaN(score) {
			return notFloatErr()
		}
		pairs[rest[j+1]] = score
	}
	n, err := conn.server.Keyspace.ZAdd(cmd.Args[0], flags, pairs)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func cmdZRem(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.ZRem(cmd.Args[0], cmd.Args[1:]...)
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}

func zmembersReply(members []zmember, withScores bool) RedisValue {
	out := make([]RedisValue, 0, len(members))
	for _, m := range members {
		out = append(out, RedisValue{Type: BulkString, Bulk: []byte(m.member)})
		if withScores {
			out = append(out, RedisValue{Type: BulkString, Bulk: []byte(formatScore(m.score))})
		}
	}
	return RedisValue{Type: Array, Array: out}
}

func cmdZRange(conn *Connection, cmd *Command) RedisValue {
	start, err1 := strconv.Atoi(cmd.Args[1])
	stop, err2 := strconv.Atoi(cmd.Args[2])
	if err1 != nil || err2 != nil {
		return notIntErr()
	}
	withScores := strings.EqualFold(cmd.Args[3], "WITHSCORES")
	members, err := conn.server.Keyspace.ZRange(cmd.Args[0], start, stop)
	if err != nil {
		return errReply(err)
	}
	return zmembersReply(members, withScores)
}

func parseScoreBound(s string) (ScoreBound, error) {
	if strings.HasPrefix(s, "(") {
		v, err := strconv.ParseFloat(s[1:], 64)
		return ScoreBound{Value: v, Exclusive: true}, err
	}
	switch s {
	case "-inf":
		return ScoreBound{Value: negInf}, nil
	case "+inf", "inf":
		return ScoreBound{Value: posInf}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	return ScoreBound{Value: v}, err
}

func cmdZRangeByScore(conn *Connection, cmd *Command) RedisValue {
	min, err1 := parseScoreBound(cmd.Args[1])
	max, err2 := parseScoreBound(cmd.Args[2])
	if err1 != nil || err2 != nil {
		return notFloatErr()
	}
	members, err := conn.server.Keyspace.ZRangeByScore(cmd.Args[0], min, max)
	if err != nil {
		return errReply(err)
	}
	withScores := len(cmd.Args) > 3 && strings.EqualFold(cmd.Args[3], "WITHSCORES")
	return zmembersReply(members, withScores)
}

func cmdZScore(conn *Connection, cmd *Command) RedisValue {
	score, ok, err := conn.server.Keyspace.ZScore(cmd.Args[0], cmd.Args[1])
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return RedisValue{Type: Null}
	}
	return RedisValue{Type: BulkString, Bulk: []byte(formatScore(score))}
}

func cmdZCard(conn *Connection, cmd *Command) RedisValue {
	n, err := conn.server.Keyspace.ZCard(cmd.Args[0])
	if err != nil {
		return errReply(err)
	}
	return RedisValue{Type: Integer, Int: int64(n)}
}
