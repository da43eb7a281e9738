// Package aof implements append-only file persistence: every successful
// write command is logged as the exact RESP frame a client would have
// sent, and replayed in order against a fresh keyspace on restart.
package aof

import (
	"bufio"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/redkit/redkit"
)

// FlushPolicy controls how often buffered writes reach disk.
type FlushPolicy int

const (
	// FlushAlways fsyncs after every Append. Safest, slowest.
	FlushAlways FlushPolicy = iota
	// FlushEverySec fsyncs on a background one-second ticker.
	FlushEverySec
	// FlushNo leaves fsync timing to the OS.
	FlushNo
)

// ParsePolicy maps the CLI's --appendfsync values onto a FlushPolicy.
func ParsePolicy(s string) FlushPolicy {
	switch s {
	case "always":
		return FlushAlways
	case "no":
		return FlushNo
	default:
		return FlushEverySec
	}
}

// Writer appends RESP-encoded command frames to a file; the package-level
// Replay reads them back on boot. It satisfies the aofAppender interface redkit.Server expects
// (Append(cmd *redkit.Command) error).
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	policy FlushPolicy

	stopTicker chan struct{}
}

// Open opens (creating if necessary) the AOF file at path for appending
// and starts the background fsync ticker if policy is FlushEverySec.
func Open(path string, policy FlushPolicy) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "open aof file %s", path)
	}
	w := &Writer{file: f, path: path, policy: policy}
	if policy == FlushEverySec {
		w.stopTicker = make(chan struct{})
		go w.tickFsync()
	}
	return w, nil
}

func (w *Writer) tickFsync() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			w.mu.Lock()
			w.file.Sync()
			w.mu.Unlock()
		case <-w.stopTicker:
			return
		}
	}
}

// Append logs one successfully executed write command as the RESP array
// frame a client would have sent. Called by the dispatcher only after
// the command has already run (§4.C step 5), so a failed Append never
// desyncs state — it only risks losing durability of a command already
// applied in memory.
func (w *Writer) Append(cmd *redkit.Command) error {
	frame := redkit.EncodeRequest(cmd.Name, cmd.Args...)
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.file.Write(frame); err != nil {
		return errors.Wrapf(err, "append to aof file %s", w.path)
	}
	if w.policy == FlushAlways {
		return errors.Wrap(w.file.Sync(), "fsync aof file")
	}
	return nil
}

// Close stops the background ticker, if any, and closes the file.
func (w *Writer) Close() error {
	if w.stopTicker != nil {
		close(w.stopTicker)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}

// Rewrite replaces this writer's file with cmds via the package-level
// Rewrite, then reopens its file handle against the replaced path so
// subsequent Append calls keep writing to the right inode. Satisfies the
// redkit.aofRewriter interface BGREWRITEAOF uses.
func (w *Writer) Rewrite(cmds [][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.file.Close(); err != nil {
		return errors.Wrapf(err, "close aof file %s before rewrite", w.path)
	}
	if err := Rewrite(w.path, cmds); err != nil {
		return err
	}
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0644)
	if err != nil {
		return errors.Wrapf(err, "reopen aof file %s after rewrite", w.path)
	}
	w.file = f
	return nil
}

// Rewrite replaces the AOF file's contents with cmds, rendered as RESP
// frames, via a write-to-temp-then-rename so a crash mid-rewrite can
// never leave a half-written file in place. Used by BGREWRITEAOF.
func Rewrite(path string, cmds [][]string) error {
	tmp := path + ".rewrite"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "create aof rewrite temp file %s", tmp)
	}
	bw := bufio.NewWriter(f)
	for _, c := range cmds {
		if len(c) == 0 {
			continue
		}
		if _, err := bw.Write(redkit.EncodeRequest(c[0], c[1:]...)); err != nil {
			f.Close()
			return errors.Wrap(err, "write aof rewrite frame")
		}
	}
	if err := bw.Flush(); err != nil {
		f.Close()
		return errors.Wrap(err, "flush aof rewrite temp file")
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errors.Wrap(err, "fsync aof rewrite temp file")
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "close aof rewrite temp file")
	}
	return errors.Wrap(os.Rename(tmp, path), "rename aof rewrite temp file into place")
}

// Replay reads every RESP frame from path in order and invokes dispatch
// for each one, reconstructing keyspace state on boot. dispatch returns
// nothing, so reporting a command's own error is up to the caller's
// dispatch func. A malformed frame, or a bulk body cut short, stops the
// replay and Replay returns the error; frames after it are not read. A
// file that ends partway through a header line ends the replay without
// an error.
func Replay(path string, dispatch func(name string, args []string)) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "open aof file %s for replay", path)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	for {
		name, args, err := readFrame(r)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "read aof frame")
		}
		dispatch(name, args)
	}
}

// readFrame parses one RESP array-of-bulk-strings frame, the same shape
// Connection.readCommand accepts from a live client, without depending
// on redkit's unexported parser.
func readFrame(r *bufio.Reader) (string, []string, error) {
	line, err := readLine(r)
	if err != nil {
		return "", nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return "", nil, errors.Errorf("aof: expected array header, got %q", line)
	}
	count, err := parseInt(line[1:])
	if err != nil {
		return "", nil, errors.Wrap(err, "aof: bad array count")
	}
	if count <= 0 {
		return "", nil, errors.New("aof: empty command frame")
	}
	fields := make([]string, count)
	for i := 0; i < count; i++ {
		fields[i], err = readBulk(r)
		if err != nil {
			return "", nil, err
		}
	}
	return fields[0], fields[1:], nil
}

func readLine(r *bufio.Reader) ([]byte, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) >= 2 && line[len(line)-2] == '\r' {
		line = line[:len(line)-2]
	} else if len(line) >= 1 {
		line = line[:len(line)-1]
	}
	return line, nil
}

func readBulk(r *bufio.Reader) (string, error) {
	line, err := readLine(r)
	if err != nil {
		return "", err
	}
	if len(line) == 0 || line[0] != '$' {
		return "", errors.Errorf("aof: expected bulk header, got %q", line)
	}
	size, err := parseInt(line[1:])
	if err != nil {
		return "", errors.Wrap(err, "aof: bad bulk length")
	}
	buf := make([]byte, size+2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf[:size]), nil
}

func parseInt(b []byte) (int, error) {
	n := 0
	neg := false
	for i, c := range b {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0, errors.Errorf("not a digit: %q", b)
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		n = -n
	}
	return n, nil
}
