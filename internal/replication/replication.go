// Package replication implements redkit's primary/replica streaming
// replication: a Primary tracks connected replicas and fans out every
// accepted write; a Replica performs the PSYNC handshake against a
// primary, loads its bootstrap snapshot, and applies the resulting
// command stream to a local keyspace.
package replication

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/redkit/redkit"
	"github.com/redkit/redkit/internal/rdb"
)

// logger is the subset of *zap.SugaredLogger this package calls; kept as
// a local interface so it doesn't need to import zap directly.
type logger interface {
	Errorf(string, ...interface{})
	Infof(string, ...interface{})
}

// replicaConn is one streaming replica's outbound connection state.
type replicaConn struct {
	id      string
	conn    *redkit.Connection
	lastAck int64
}

// Primary is the replication role a server takes when it has zero or
// more replicas attached. It satisfies redkit.replicationHooks
// (Propagate, ReadOnly) structurally.
type Primary struct {
	mu       sync.Mutex
	replID   string
	offset   int64
	replicas map[string]*replicaConn
	ks       *redkit.Keyspace
	logger   logger
}

// NewPrimary builds a Primary bound to ks, the keyspace PSYNC snapshots
// replicas from.
func NewPrimary(ks *redkit.Keyspace, log logger) *Primary {
	return &Primary{
		replID:   uuid.NewString(),
		replicas: make(map[string]*replicaConn),
		ks:       ks,
		logger:   log,
	}
}

// ReadOnly reports false for a Primary: ordinary clients may write here.
func (p *Primary) ReadOnly() bool { return false }

// ReplID returns the primary's stable replication identifier.
func (p *Primary) ReplID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.replID
}

// Offset returns the current replication offset.
func (p *Primary) Offset() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.offset
}

// HandlePSYNC implements spec §4.H's primary-side full resync: assign the
// connection to the replica set, reply FULLRESYNC, stream the keyspace as
// an RDB bulk payload, then transition to streaming. Called from
// cmd/redkit-server's PSYNC override with the requesting *redkit.Connection
// (PSYNC needs to bypass the normal single-reply dispatch, since it sends
// a status line plus a raw bulk payload rather than one RedisValue).
func (p *Primary) HandlePSYNC(conn *redkit.Connection) error {
	p.mu.Lock()
	replID := p.replID
	offset := p.offset
	p.mu.Unlock()

	if err := conn.WriteRaw([]byte(fmt.Sprintf("+FULLRESYNC %s %d\r\n", replID, offset))); err != nil {
		return errors.Wrap(err, "write FULLRESYNC")
	}

	snap, err := rdb.Encode(p.ks)
	if err != nil {
		return errors.Wrap(err, "encode bootstrap snapshot")
	}
	header := []byte(fmt.Sprintf("$%d\r\n", len(snap)))
	if err := conn.WriteRaw(append(header, snap...)); err != nil {
		return errors.Wrap(err, "write bootstrap snapshot")
	}

	id := conn.RemoteAddr().String()
	p.mu.Lock()
	p.replicas[id] = &replicaConn{id: id, conn: conn}
	p.mu.Unlock()
	conn.MarkReplica()

	if p.logger != nil {
		p.logger.Infof("replica %s caught up via full resync at offset %d", id, offset)
	}
	return nil
}

// Propagate forwards a successful write command, as its RESP2 request
// frame, to every streaming replica in the order it was accepted
// (spec §4.H step 4 / invariant "preserves the primary's execution
// order"). A replica whose write fails is dropped from the set; the
// next PSYNC from it starts a fresh full resync.
func (p *Primary) Propagate(cmd *redkit.Command) {
	frame := redkit.EncodeRequest(cmd.Name, cmd.Args...)

	p.mu.Lock()
	p.offset += int64(len(frame))
	var dead []string
	for id, r := range p.replicas {
		if err := r.conn.WriteRaw(frame); err != nil {
			dead = append(dead, id)
		}
	}
	for _, id := range dead {
		delete(p.replicas, id)
	}
	p.mu.Unlock()

	for _, id := range dead {
		if p.logger != nil {
			p.logger.Errorf("dropping replica %s: write failed", id)
		}
	}
}

// Ack records a replica's REPLCONF ACK <offset>.
func (p *Primary) Ack(remoteAddr string, offset int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.replicas[remoteAddr]; ok {
		r.lastAck = offset
	}
}

// ReplicaCount reports how many replicas are currently streaming. INFO
// and ROLE do not report it.
func (p *Primary) ReplicaCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.replicas)
}

// Replica is the role a server takes when started with --replicaof. It
// owns the connection to the primary and the apply loop that keeps the
// local keyspace converging with it.
type Replica struct {
	host, port string
	ks         *redkit.Keyspace
	dispatch   func(name string, args []string)
	logger     logger

	mu       sync.Mutex
	replID   string
	offset   int64
	conn     net.Conn
	selfPort string
}

// NewReplica builds a Replica that will connect to host:port, load its
// bootstrap snapshot into ks, and apply the subsequent command stream via
// dispatch (cmd/redkit-server passes a closure over
// *redkit.Server.ApplyCommand, which bypasses AOF logging and
// re-propagation per spec §4.H).
func NewReplica(host, port, selfPort string, ks *redkit.Keyspace, dispatch func(name string, args []string), log logger) *Replica {
	return &Replica{host: host, port: port, selfPort: selfPort, ks: ks, dispatch: dispatch, logger: log}
}

// ReadOnly reports true: a Replica's dispatcher must reject client writes.
func (r *Replica) ReadOnly() bool { return true }

// Propagate is a no-op on a Replica: replicas don't fan writes out
// further (single-level replication, per spec scope).
func (r *Replica) Propagate(cmd *redkit.Command) {}

// Run performs the handshake and then the apply loop, retrying with
// backoff on connection loss, until stop is closed. It blocks, so callers
// run it in its own goroutine; cmd/redkit-server closes stop on SIGINT or
// SIGTERM.
func (r *Replica) Run(stop <-chan struct{}) {
	backoff := time.Second
	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := r.handshakeAndApply(); err != nil && r.logger != nil {
			r.logger.Errorf("replication from %s:%s failed: %v", r.host, r.port, err)
		}

		select {
		case <-stop:
			return
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (r *Replica) handshakeAndApply() error {
	conn, err := net.Dial("tcp", net.JoinHostPort(r.host, r.port))
	if err != nil {
		return errors.Wrap(err, "dial primary")
	}
	defer conn.Close()

	br := bufio.NewReader(conn)
	bw := bufio.NewWriter(conn)

	if err := sendAndExpect(br, bw, "PONG", redkit.EncodeRequest("PING")); err != nil {
		return errors.Wrap(err, "handshake PING")
	}
	if err := sendAndExpect(br, bw, "OK", redkit.EncodeRequest("REPLCONF", "listening-port", r.selfPort)); err != nil {
		return errors.Wrap(err, "handshake REPLCONF listening-port")
	}
	if err := sendAndExpect(br, bw, "OK", redkit.EncodeRequest("REPLCONF", "capa", "eof")); err != nil {
		return errors.Wrap(err, "handshake REPLCONF capa")
	}

	if _, err := bw.Write(redkit.EncodeRequest("PSYNC", "?", "-1")); err != nil {
		return errors.Wrap(err, "send PSYNC")
	}
	if err := bw.Flush(); err != nil {
		return errors.Wrap(err, "flush PSYNC")
	}

	line, err := readLine(br)
	if err != nil {
		return errors.Wrap(err, "read FULLRESYNC reply")
	}
	replID, offset, err := parseFullResync(line)
	if err != nil {
		return err
	}

	snapLen, err := readBulkLength(br)
	if err != nil {
		return errors.Wrap(err, "read snapshot length")
	}
	snap := make([]byte, snapLen)
	if _, err := io.ReadFull(br, snap); err != nil {
		return errors.Wrap(err, "read snapshot body")
	}
	if err := rdb.Decode(snap, r.ks); err != nil {
		return errors.Wrap(err, "decode bootstrap snapshot")
	}

	r.mu.Lock()
	r.replID, r.offset, r.conn = replID, offset, conn
	r.mu.Unlock()

	if r.logger != nil {
		r.logger.Infof("replica bootstrapped from %s:%s at offset %d (replid %s)", r.host, r.port, offset, replID)
	}

	return r.applyLoop(br, bw)
}

func (r *Replica) applyLoop(br *bufio.Reader, bw *bufio.Writer) error {
	ackTicker := time.NewTicker(time.Second)
	defer ackTicker.Stop()

	frames := make(chan error, 1)
	go func() {
		for {
			n, name, args, err := readCommandFrame(br)
			if err != nil {
				frames <- err
				return
			}
			r.dispatch(name, args)
			r.mu.Lock()
			r.offset += int64(n)
			r.mu.Unlock()
		}
	}()

	for {
		select {
		case err := <-frames:
			return errors.Wrap(err, "apply loop")
		case <-ackTicker.C:
			r.mu.Lock()
			off := r.offset
			r.mu.Unlock()
			bw.Write(redkit.EncodeRequest("REPLCONF", "ACK", strconv.FormatInt(off, 10)))
			bw.Flush()
		}
	}
}

// sendAndExpect writes req and checks the reply is a +<want> simple
// string, the pattern every handshake step in spec §4.H follows.
func sendAndExpect(br *bufio.Reader, bw *bufio.Writer, want string, req []byte) error {
	if _, err := bw.Write(req); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	line, err := readLine(br)
	if err != nil {
		return err
	}
	if !strings.HasPrefix(line, "+"+want) {
		return errors.Errorf("expected +%s, got %q", want, line)
	}
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func parseFullResync(line string) (replID string, offset int64, err error) {
	fields := strings.Fields(strings.TrimPrefix(line, "+"))
	if len(fields) != 3 || fields[0] != "FULLRESYNC" {
		return "", 0, errors.Errorf("malformed FULLRESYNC reply: %q", line)
	}
	offset, err = strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return "", 0, errors.Wrap(err, "parse FULLRESYNC offset")
	}
	return fields[1], offset, nil
}

func readBulkLength(r *bufio.Reader) (int, error) {
	line, err := readLine(r)
	if err != nil {
		return 0, err
	}
	if len(line) == 0 || line[0] != '$' {
		return 0, errors.Errorf("expected bulk header, got %q", line)
	}
	return strconv.Atoi(line[1:])
}

// readCommandFrame parses one RESP array-of-bulk-strings frame from the
// primary's stream and returns its exact wire length alongside the
// decoded command, so the caller can advance its replication offset by
// the same byte count the primary used.
func readCommandFrame(r *bufio.Reader) (wireLen int, name string, args []string, err error) {
	var n int
	line, err := readLineCounted(r, &n)
	if err != nil {
		return 0, "", nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return 0, "", nil, errors.Errorf("expected array header, got %q", line)
	}
	count, err := strconv.Atoi(line[1:])
	if err != nil || count <= 0 {
		return 0, "", nil, errors.Errorf("bad array count in %q", line)
	}

	fields := make([]string, count)
	for i := 0; i < count; i++ {
		bline, err := readLineCounted(r, &n)
		if err != nil {
			return 0, "", nil, err
		}
		if len(bline) == 0 || bline[0] != '$' {
			return 0, "", nil, errors.Errorf("expected bulk header, got %q", bline)
		}
		size, err := strconv.Atoi(bline[1:])
		if err != nil {
			return 0, "", nil, errors.Wrap(err, "bad bulk length")
		}
		buf := make([]byte, size+2)
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, "", nil, err
		}
		n += len(buf)
		fields[i] = string(buf[:size])
	}

	return n, fields[0], fields[1:], nil
}

func readLineCounted(r *bufio.Reader, n *int) (string, error) {
	raw, err := r.ReadBytes('\n')
	if err != nil {
		return "", err
	}
	*n += len(raw)
	if len(raw) >= 2 && raw[len(raw)-2] == '\r' {
		return string(raw[:len(raw)-2]), nil
	}
	return string(raw[:len(raw)-1]), nil
}
