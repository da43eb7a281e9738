package replication_test

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/redkit/redkit"
	"github.com/redkit/redkit/internal/replication"
)

// testLogger satisfies the unexported logger interface replication.NewPrimary
// and replication.NewReplica expect (Errorf/Infof), routed through t.Logf.
type testLogger struct{ t *testing.T }

func (l testLogger) Errorf(format string, args ...interface{}) { l.t.Logf("ERROR: "+format, args...) }
func (l testLogger) Infof(format string, args ...interface{})  { l.t.Logf("INFO: "+format, args...) }

func freePort(t *testing.T) int {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// wirePrimary is a trimmed-down cmd/redkit-server wirePrimaryCommands:
// PSYNC needs the concrete *replication.Primary, which the built-in stubs
// in commands_server.go can't see without an import cycle. Its REPLCONF
// replies OK to every subcommand, ACK included (ACK offsets are not
// recorded here).
func wirePrimary(server *redkit.Server, primary *replication.Primary) {
	server.RegisterCommandFunc("PSYNC", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		if err := primary.HandlePSYNC(conn); err != nil {
			return redkit.RedisValue{Type: redkit.ErrorReply, Str: "ERR " + err.Error()}
		}
		return redkit.RedisValue{Type: redkit.NoReply}
	})
	server.RegisterCommandFunc("REPLCONF", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		return redkit.RedisValue{Type: redkit.SimpleString, Str: "OK"}
	})
}

func TestReplicaConvergesWithPrimary(t *testing.T) {
	primaryPort := freePort(t)
	replicaPort := freePort(t)
	log := testLogger{t: t}

	primaryServer := redkit.NewServer(fmt.Sprintf("127.0.0.1:%d", primaryPort))
	primary := replication.NewPrimary(primaryServer.Keyspace, log)
	primaryServer.Repl = primary
	wirePrimary(primaryServer, primary)
	go primaryServer.Serve()
	defer primaryServer.Shutdown(context.Background())

	replicaServer := redkit.NewServer(fmt.Sprintf("127.0.0.1:%d", replicaPort))
	repl := replication.NewReplica("127.0.0.1", strconv.Itoa(primaryPort), strconv.Itoa(replicaPort), replicaServer.Keyspace,
		func(name string, args []string) { replicaServer.ApplyCommand(name, args) }, log)
	replicaServer.Repl = repl
	go replicaServer.Serve()
	defer replicaServer.Shutdown(context.Background())

	stop := make(chan struct{})
	defer close(stop)
	go repl.Run(stop)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	primaryClient := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("127.0.0.1:%d", primaryPort)})
	defer primaryClient.Close()
	require.Eventually(t, func() bool { return primaryClient.Ping(ctx).Err() == nil }, 2*time.Second, 20*time.Millisecond)

	require.NoError(t, primaryClient.Set(ctx, "greeting", "hello", 0).Err())
	require.NoError(t, primaryClient.RPush(ctx, "list", "a", "b").Err())

	replicaClient := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("127.0.0.1:%d", replicaPort)})
	defer replicaClient.Close()

	require.Eventually(t, func() bool {
		v, err := replicaClient.Get(ctx, "greeting").Result()
		return err == nil && v == "hello"
	}, 3*time.Second, 50*time.Millisecond, "replica never converged on 'greeting'")

	require.Eventually(t, func() bool {
		v, err := replicaClient.LRange(ctx, "list", 0, -1).Result()
		return err == nil && len(v) == 2 && v[0] == "a" && v[1] == "b"
	}, 3*time.Second, 50*time.Millisecond, "replica never converged on 'list'")
}

func TestReplicaRejectsClientWrites(t *testing.T) {
	port := freePort(t)
	log := testLogger{t: t}

	replicaServer := redkit.NewServer(fmt.Sprintf("127.0.0.1:%d", port))
	repl := replication.NewReplica("127.0.0.1", "1", "1", replicaServer.Keyspace, func(string, []string) {}, log)
	replicaServer.Repl = repl
	require.True(t, repl.ReadOnly())

	go replicaServer.Serve()
	defer replicaServer.Shutdown(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client := redis.NewClient(&redis.Options{Addr: fmt.Sprintf("127.0.0.1:%d", port)})
	defer client.Close()
	require.Eventually(t, func() bool { return client.Ping(ctx).Err() == nil }, 2*time.Second, 20*time.Millisecond)

	err := client.Set(ctx, "key", "value", 0).Err()
	require.Error(t, err)
	require.Contains(t, err.Error(), "READONLY")
}
