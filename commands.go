/*
Package redkit provides a Redis-compatible server implementation.

This file defines the Redis command name constants this module actually
implements, organized into the same functional categories the teacher's
own catalogue used. Categories with no implementing component (streams,
bitmaps, HyperLogLog, geospatial, JSON, search, time series, vector
sets, scripting, clustering, multi-database SELECT/MOVE/SWAPDB) are
dropped rather than kept as dead constants — see DESIGN.md.

Real handlers live in commands_string.go, commands_list.go,
commands_hash.go, commands_set.go, commands_zset.go, commands_generic.go,
commands_tx.go, commands_pubsub.go, commands_conn.go and
commands_server.go; registerDefaultHandlers (in commands_conn.go) wires
them all through Server.registerCommand.
*/
package redkit

// CommandType represents a Redis command name as a typed string constant.
type CommandType string

const (
	// Connection commands
	PING   CommandType = "PING"
	ECHO   CommandType = "ECHO"
	QUIT   CommandType = "QUIT"
	HELP   CommandType = "HELP"
	CLIENT CommandType = "CLIENT"
	RESET  CommandType = "RESET"

	// String commands
	APPEND CommandType = "APPEND"
	DECR   CommandType = "DECR"
	DECRBY CommandType = "DECRBY"
	GET    CommandType = "GET"
	GETDEL CommandType = "GETDEL"
	GETSET CommandType = "GETSET"
	INCR   CommandType = "INCR"
	INCRBY CommandType = "INCRBY"
	MGET   CommandType = "MGET"
	MSET   CommandType = "MSET"
	MSETNX CommandType = "MSETNX"
	PSETEX CommandType = "PSETEX"
	SET    CommandType = "SET"
	SETEX  CommandType = "SETEX"
	SETNX  CommandType = "SETNX"
	STRLEN CommandType = "STRLEN"

	// Hash commands
	HDEL    CommandType = "HDEL"
	HEXISTS CommandType = "HEXISTS"
	HGET    CommandType = "HGET"
	HGETALL CommandType = "HGETALL"
	HKEYS   CommandType = "HKEYS"
	HLEN    CommandType = "HLEN"
	HSET    CommandType = "HSET"
	HSETNX  CommandType = "HSETNX"
	HVALS   CommandType = "HVALS"

	// List commands
	LINDEX CommandType = "LINDEX"
	LLEN   CommandType = "LLEN"
	LPOP   CommandType = "LPOP"
	LPUSH  CommandType = "LPUSH"
	LRANGE CommandType = "LRANGE"
	RPOP   CommandType = "RPOP"
	RPUSH  CommandType = "RPUSH"

	// Set commands
	SADD      CommandType = "SADD"
	SCARD     CommandType = "SCARD"
	SISMEMBER CommandType = "SISMEMBER"
	SMEMBERS  CommandType = "SMEMBERS"
	SREM      CommandType = "SREM"

	// Sorted set commands
	ZADD          CommandType = "ZADD"
	ZCARD         CommandType = "ZCARD"
	ZRANGE        CommandType = "ZRANGE"
	ZRANGEBYSCORE CommandType = "ZRANGEBYSCORE"
	ZREM          CommandType = "ZREM"
	ZSCORE        CommandType = "ZSCORE"

	// Pub/Sub commands
	PSUBSCRIBE   CommandType = "PSUBSCRIBE"
	PUBLISH      CommandType = "PUBLISH"
	PUBSUB       CommandType = "PUBSUB"
	PUNSUBSCRIBE CommandType = "PUNSUBSCRIBE"
	SUBSCRIBE    CommandType = "SUBSCRIBE"
	UNSUBSCRIBE  CommandType = "UNSUBSCRIBE"

	// Transaction commands
	DISCARD CommandType = "DISCARD"
	EXEC    CommandType = "EXEC"
	MULTI   CommandType = "MULTI"
	UNWATCH CommandType = "UNWATCH"
	WATCH   CommandType = "WATCH"

	// Server commands
	BGREWRITEAOF CommandType = "BGREWRITEAOF"
	CONFIG       CommandType = "CONFIG"
	DBSIZE       CommandType = "DBSIZE"
	FLUSHALL     CommandType = "FLUSHALL"
	FLUSHDB      CommandType = "FLUSHDB"
	INFO         CommandType = "INFO"
	PSYNC        CommandType = "PSYNC"
	REPLCONF     CommandType = "REPLCONF"
	REPLICAOF    CommandType = "REPLICAOF"
	ROLE         CommandType = "ROLE"
	SAVE         CommandType = "SAVE"
	TIME         CommandType = "TIME"

	// Generic key commands
	COPY        CommandType = "COPY"
	DEL         CommandType = "DEL"
	EXISTS      CommandType = "EXISTS"
	EXPIRE      CommandType = "EXPIRE"
	EXPIREAT    CommandType = "EXPIREAT"
	EXPIRETIME  CommandType = "EXPIRETIME"
	KEYS        CommandType = "KEYS"
	PERSIST     CommandType = "PERSIST"
	PEXPIRE     CommandType = "PEXPIRE"
	PEXPIREAT   CommandType = "PEXPIREAT"
	PEXPIRETIME CommandType = "PEXPIRETIME"
	PTTL        CommandType = "PTTL"
	RANDOMKEY   CommandType = "RANDOMKEY"
	RENAME      CommandType = "RENAME"
	RENAMENX    CommandType = "RENAMENX"
	TTL         CommandType = "TTL"
	TYPE        CommandType = "TYPE"
	UNLINK      CommandType = "UNLINK"
)
