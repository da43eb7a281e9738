package aof

import (
	"path/filepath"
	"testing"

	"github.com/redkit/redkit"
)

func TestAppendAndReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appendonly.aof")

	w, err := Open(path, FlushAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	writes := []*redkit.Command{
		{Name: "SET", Args: []string{"a", "1"}},
		{Name: "RPUSH", Args: []string{"list", "x", "y"}},
		{Name: "SADD", Args: []string{"s", "m"}},
	}
	for _, cmd := range writes {
		if err := w.Append(cmd); err != nil {
			t.Fatalf("Append(%s): %v", cmd.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var replayed [][]string
	if err := Replay(path, func(name string, args []string) {
		replayed = append(replayed, append([]string{name}, args...))
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}

	if len(replayed) != len(writes) {
		t.Fatalf("expected %d replayed frames, got %d", len(writes), len(replayed))
	}
	if replayed[0][0] != "SET" || replayed[0][1] != "a" || replayed[0][2] != "1" {
		t.Errorf("unexpected first frame: %v", replayed[0])
	}
	if replayed[1][0] != "RPUSH" || len(replayed[1]) != 4 {
		t.Errorf("unexpected second frame: %v", replayed[1])
	}
}

func TestReplayMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.aof")
	called := false
	if err := Replay(path, func(string, []string) { called = true }); err != nil {
		t.Fatalf("Replay on missing file should be nil, got %v", err)
	}
	if called {
		t.Fatal("dispatch should never be called for a missing file")
	}
}

func TestRewriteReplacesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "appendonly.aof")

	w, err := Open(path, FlushAlways)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := w.Append(&redkit.Command{Name: "SET", Args: []string{"stale", "value"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := Rewrite(path, [][]string{{"SET", "fresh", "value"}}); err != nil {
		t.Fatalf("Rewrite: %v", err)
	}

	var replayed [][]string
	if err := Replay(path, func(name string, args []string) {
		replayed = append(replayed, append([]string{name}, args...))
	}); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(replayed) != 1 {
		t.Fatalf("expected 1 frame after rewrite, got %d", len(replayed))
	}
	if replayed[0][1] != "fresh" {
		t.Errorf("expected rewritten key 'fresh', got %v", replayed[0])
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]FlushPolicy{
		"always":   FlushAlways,
		"no":       FlushNo,
		"everysec": FlushEverySec,
		"":         FlushEverySec,
		"garbage":  FlushEverySec,
	}
	for in, want := range cases {
		if got := ParsePolicy(in); got != want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", in, got, want)
		}
	}
}
