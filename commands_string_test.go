package redkit

import "testing"

func TestCmdSetRejectsConflictingPresenceFlags(t *testing.T) {
	server := NewServer(":0")
	conn := &Connection{server: server}

	result := cmdSet(conn, &Command{Args: []string{"k", "v", "NX", "XX"}})
	if result.Type != ErrorReply {
		t.Fatalf("expected SET with both NX and XX to error, got %v", result)
	}
	if n := server.Keyspace.Exists("k"); n != 0 {
		t.Errorf("a rejected SET must not create the key, got EXISTS %d", n)
	}
}

func TestCmdSetRejectsNonPositiveTTL(t *testing.T) {
	cases := []struct {
		name string
		args []string
	}{
		{"EX zero", []string{"k", "v", "EX", "0"}},
		{"EX negative", []string{"k", "v", "EX", "-1"}},
		{"PX zero", []string{"k", "v", "PX", "0"}},
		{"PX negative", []string{"k", "v", "PX", "-5"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			server := NewServer(":0")
			conn := &Connection{server: server}

			result := cmdSet(conn, &Command{Args: tc.args})
			if result.Type != ErrorReply {
				t.Fatalf("expected a non-positive TTL to be rejected, got %v", result)
			}
			if n := server.Keyspace.Exists("k"); n != 0 {
				t.Errorf("a rejected SET must not create the key, got EXISTS %d", n)
			}
		})
	}
}
