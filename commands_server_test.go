package redkit

import "testing"

// fakeAOF is a minimal aofAppender+aofRewriter double for exercising
// cmdBGRewriteAOF without touching disk.
type fakeAOF struct {
	rewritten  [][]string
	rewriteErr error
}

func (f *fakeAOF) Append(cmd *Command) error { return nil }

func (f *fakeAOF) Rewrite(cmds [][]string) error {
	if f.rewriteErr != nil {
		return f.rewriteErr
	}
	f.rewritten = cmds
	return nil
}

func TestCmdBGRewriteAOFRewritesWiredAOF(t *testing.T) {
	server := NewServer(":0")
	fake := &fakeAOF{}
	server.AOF = fake
	conn := &Connection{server: server}

	if res := cmdSet(conn, &Command{Args: []string{"k", "v"}}); res.Type == ErrorReply {
		t.Fatalf("SET: %v", res)
	}

	result := cmdBGRewriteAOF(conn, &Command{})
	if result.Type != SimpleString {
		t.Fatalf("expected BGREWRITEAOF to succeed, got %v", result)
	}
	if fake.rewritten == nil {
		t.Fatal("expected BGREWRITEAOF to call the wired AOF's Rewrite with the dumped keyspace")
	}
}

func TestCmdBGRewriteAOFWithoutAOFIsANoop(t *testing.T) {
	server := NewServer(":0")
	conn := &Connection{server: server}

	result := cmdBGRewriteAOF(conn, &Command{})
	if result.Type != SimpleString {
		t.Fatalf("expected BGREWRITEAOF with no AOF wired to still reply OK-ish, got %v", result)
	}
}
