package redkit

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"
)

// newPipeConnection wires a Connection around one end of an in-memory
// net.Pipe, mirroring the fields handleConnectionInternal sets up for a
// real socket, so the RESP reader/writer can be exercised without a
// listening server.
func newPipeConnection(t *testing.T) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { client.Close(); server.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	conn := &Connection{
		conn:   server,
		reader: bufio.NewReader(server),
		writer: bufio.NewWriter(server),
		server: &Server{},
		ctx:    ctx,
		cancel: cancel,
	}
	return conn, client
}

func TestReadCommandParsesArrayOfBulkStrings(t *testing.T) {
	conn, client := newPipeConnection(t)

	go func() {
		client.Write(EncodeRequest("SET", "key", "value"))
	}()

	cmd, err := conn.readCommand()
	if err != nil {
		t.Fatalf("readCommand: %v", err)
	}
	if cmd.Name != "SET" {
		t.Errorf("expected name SET, got %q", cmd.Name)
	}
	if len(cmd.Args) != 2 || cmd.Args[0] != "key" || cmd.Args[1] != "value" {
		t.Errorf("unexpected args: %v", cmd.Args)
	}
}

func TestWriteValueRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		val  RedisValue
		want string
	}{
		{"simple string", RedisValue{Type: SimpleString, Str: "OK"}, "+OK\r\n"},
		{"error", RedisValue{Type: ErrorReply, Str: "ERR bad"}, "-ERR bad\r\n"},
		{"integer", RedisValue{Type: Integer, Int: 42}, ":42\r\n"},
		{"bulk string", RedisValue{Type: BulkString, Bulk: []byte("hi")}, "$2\r\nhi\r\n"},
		{"null", RedisValue{Type: Null}, "$-1\r\n"},
		{"null array", RedisValue{Type: NullArray}, "*-1\r\n"},
		{"array", RedisValue{Type: Array, Array: []RedisValue{
			{Type: Integer, Int: 1}, {Type: Integer, Int: 2},
		}}, "*2\r\n:1\r\n:2\r\n"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conn, client := newPipeConnection(t)
			done := make(chan []byte, 1)
			go func() {
				buf := make([]byte, len(tc.want))
				client.Read(buf)
				done <- buf
			}()

			if err := conn.writeValue(tc.val); err != nil {
				t.Fatalf("writeValue: %v", err)
			}
			if err := conn.writer.Flush(); err != nil {
				t.Fatalf("flush: %v", err)
			}

			got := <-done
			if string(got) != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestWriteValueNoReplyWritesNothing(t *testing.T) {
	conn, client := newPipeConnection(t)

	readErr := make(chan error, 1)
	go func() {
		buf := make([]byte, 1)
		client.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		_, err := client.Read(buf)
		readErr <- err
	}()

	if err := conn.writeValue(RedisValue{Type: NoReply}); err != nil {
		t.Fatalf("writeValue(NoReply): %v", err)
	}
	conn.writer.Flush()

	if err := <-readErr; err == nil {
		t.Error("expected a read timeout since NoReply must write nothing, got a byte instead")
	}
}

func TestEncodeRequestFraming(t *testing.T) {
	got := string(EncodeRequest("GET", "key"))
	want := "*2\r\n$3\r\nGET\r\n$3\r\nkey\r\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
