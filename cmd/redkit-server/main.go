// Command redkit-server runs a standalone redkit instance: RESP2 server,
// optional append-only file, snapshot persistence, and optional
// replica-of-primary streaming, wired together per flags.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/redkit/redkit"
	"github.com/redkit/redkit/internal/aof"
	"github.com/redkit/redkit/internal/rdb"
	"github.com/redkit/redkit/internal/replication"
	"github.com/redkit/redkit/internal/rlog"
)

var (
	host          string
	port          int
	dataDir       string
	appendOnly    bool
	appendFsync   string
	replicaOfArgs []string
)

var rootCmd = &cobra.Command{
	Use:   "redkit-server",
	Short: "A Redis-wire-compatible in-memory data store",
	Example: "  redkit-server --port 6380 --appendonly --appendfsync everysec\n" +
		"  redkit-server --replicaof 127.0.0.1 6379",
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&host, "host", "127.0.0.1", "bind address")
	rootCmd.Flags().IntVar(&port, "port", 6379, "bind port")
	rootCmd.Flags().StringVar(&dataDir, "dir", ".", "directory for appendonly.aof and dump.rdb")
	rootCmd.Flags().BoolVar(&appendOnly, "appendonly", false, "enable append-only file persistence")
	rootCmd.Flags().StringVar(&appendFsync, "appendfsync", "everysec", "always|everysec|no")
	rootCmd.Flags().StringSliceVar(&replicaOfArgs, "replicaof", nil, "HOST PORT of a primary to replicate from")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	log := rlog.New(rlog.Options{Level: "info"})
	defer log.Sync()

	// "--replicaof HOST PORT": the slice flag takes HOST, and PORT arrives
	// as the one positional argument.
	if len(replicaOfArgs) == 1 && len(args) == 1 {
		replicaOfArgs = append(replicaOfArgs, args[0])
	}

	server := redkit.NewServer(fmt.Sprintf("%s:%d", host, port))
	server.Logger = log
	ks := server.Keyspace

	isReplica := len(replicaOfArgs) == 2

	var aofWriter *aof.Writer
	aofPath := filepath.Join(dataDir, "appendonly.aof")
	rdbPath := filepath.Join(dataDir, "dump.rdb")

	if !isReplica {
		if err := rdb.Load(rdbPath, ks); err != nil {
			return fmt.Errorf("load rdb: %w", err)
		}
		if appendOnly {
			if err := aof.Replay(aofPath, func(name string, args []string) {
				if res := server.ApplyCommand(name, args); res.Type == redkit.ErrorReply {
					log.Errorw("aof replay error", "command", name, "error", res.Str)
				}
			}); err != nil {
				return fmt.Errorf("replay aof: %w", err)
			}
			w, err := aof.Open(aofPath, aof.ParsePolicy(appendFsync))
			if err != nil {
				return fmt.Errorf("open aof: %w", err)
			}
			aofWriter = w
			server.AOF = w
		}
	}

	var primary *replication.Primary
	var replica *replication.Replica
	stopReplica := make(chan struct{})

	if isReplica {
		replica = replication.NewReplica(replicaOfArgs[0], replicaOfArgs[1], strconv.Itoa(port), ks,
			func(name string, args []string) {
				if res := server.ApplyCommand(name, args); res.Type == redkit.ErrorReply {
					log.Errorw("replication apply error", "command", name, "error", res.Str)
				}
			}, log)
		server.Repl = replica
		go replica.Run(stopReplica)
	} else {
		primary = replication.NewPrimary(ks, log)
		server.Repl = primary
		wirePrimaryCommands(server, primary)
	}

	if aofWriter != nil {
		wireAOFCommands(server, aofWriter, aofPath, rdbPath)
	} else if !isReplica {
		wireSaveCommand(server, rdbPath)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signal.Ignore(syscall.SIGHUP)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		close(stopReplica)
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Errorf("shutdown error: %v", err)
		}
		if aofWriter != nil {
			aofWriter.Close()
		}
		if !isReplica {
			if err := rdb.Save(rdbPath, ks); err != nil {
				log.Errorf("final rdb save failed: %v", err)
			}
		}
		cancel()
	}()

	log.Infof("redkit-server listening on %s:%d (appendonly=%v replicaof=%v)", host, port, appendOnly, replicaOfArgs)
	if err := server.Serve(); err != nil {
		select {
		case <-ctx.Done():
			return nil
		default:
			return fmt.Errorf("serve: %w", err)
		}
	}
	return nil
}

// wirePrimaryCommands registers PSYNC/REPLCONF overrides that need the
// raw connection and the concrete *replication.Primary — neither of
// which the built-in stubs in commands_server.go have access to, since
// redkit itself can't import internal/replication without a cycle.
func wirePrimaryCommands(server *redkit.Server, primary *replication.Primary) {
	server.RegisterCommandFunc("PSYNC", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		if err := primary.HandlePSYNC(conn); err != nil {
			return redkit.RedisValue{Type: redkit.ErrorReply, Str: "ERR " + err.Error()}
		}
		return redkit.RedisValue{Type: redkit.NoReply}
	})

	server.RegisterCommandFunc("REPLCONF", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		if len(cmd.Args) >= 2 && strings.EqualFold(cmd.Args[0], "ack") {
			offset, err := strconv.ParseInt(cmd.Args[1], 10, 64)
			if err == nil {
				primary.Ack(conn.RemoteAddr().String(), offset)
			}
			return redkit.RedisValue{Type: redkit.NoReply}
		}
		return redkit.RedisValue{Type: redkit.SimpleString, Str: "OK"}
	})

	server.RegisterCommandFunc("ROLE", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		return redkit.RedisValue{Type: redkit.Array, Array: []redkit.RedisValue{
			{Type: redkit.BulkString, Bulk: []byte("master")},
			{Type: redkit.Integer, Int: primary.Offset()},
			{Type: redkit.Array, Array: nil},
		}}
	})
}

// wireAOFCommands wires SAVE to touch disk via rdbPath. BGREWRITEAOF needs
// no override here: server.AOF is already the *aof.Writer w, and its
// Rewrite method satisfies the aofRewriter interface the built-in
// BGREWRITEAOF handler looks for.
func wireAOFCommands(server *redkit.Server, w *aof.Writer, aofPath, rdbPath string) {
	wireSaveCommand(server, rdbPath)
}

func wireSaveCommand(server *redkit.Server, rdbPath string) {
	server.RegisterCommandFunc("SAVE", func(conn *redkit.Connection, cmd *redkit.Command) redkit.RedisValue {
		if err := rdb.Save(rdbPath, conn.Server().Keyspace); err != nil {
			return redkit.RedisValue{Type: redkit.ErrorReply, Str: "ERR " + err.Error()}
		}
		return redkit.RedisValue{Type: redkit.SimpleString, Str: "OK"}
	})
}
