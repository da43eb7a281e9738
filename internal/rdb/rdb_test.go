package rdb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/redkit/redkit"
)

func buildKeyspace() *redkit.Keyspace {
	ks := redkit.NewKeyspace()
	ks.Restore([]redkit.KeyEntry{
		{Key: "greeting", Value: &redkit.Value{Kind: redkit.KindString, Str: []byte("hello")}},
		{Key: "nums", Value: &redkit.Value{Kind: redkit.KindList, List: [][]byte{[]byte("1"), []byte("2"), []byte("3")}}},
		{Key: "tags", Value: &redkit.Value{Kind: redkit.KindSet, Set: map[string]struct{}{"a": {}, "b": {}}}},
		{Key: "profile", Value: &redkit.Value{Kind: redkit.KindHash, Hash: map[string][]byte{"name": []byte("alice")}}},
		{Key: "ranks", Value: redkit.NewZSetValue([]redkit.ZMember{
			{Member: "low", Score: 1},
			{Member: "high", Score: 9.5},
		}), ExpiresAt: 4102444800000},
	})
	return ks
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	ks := buildKeyspace()
	data, err := Encode(ks)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	restored := redkit.NewKeyspace()
	if err := Decode(data, restored); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	got := restored.Snapshot()
	if len(got) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(got))
	}

	byKey := make(map[string]redkit.KeyEntry, len(got))
	for _, ke := range got {
		byKey[ke.Key] = ke
	}

	if string(byKey["greeting"].Value.Str) != "hello" {
		t.Errorf("greeting: got %q", byKey["greeting"].Value.Str)
	}
	if len(byKey["nums"].Value.List) != 3 {
		t.Errorf("nums: expected 3 elements, got %d", len(byKey["nums"].Value.List))
	}
	if _, ok := byKey["tags"].Value.Set["a"]; !ok {
		t.Errorf("tags: missing member a")
	}
	if string(byKey["profile"].Value.Hash["name"]) != "alice" {
		t.Errorf("profile: got %q", byKey["profile"].Value.Hash["name"])
	}
	members := byKey["ranks"].Value.ZSet.Members()
	if len(members) != 2 || members[0].Member != "low" || members[1].Member != "high" {
		t.Errorf("ranks: unexpected members %+v", members)
	}
	if byKey["ranks"].ExpiresAt != 4102444800000 {
		t.Errorf("ranks: expiry not preserved, got %d", byKey["ranks"].ExpiresAt)
	}
}

func TestDecodeRejectsCorruptedChecksum(t *testing.T) {
	ks := buildKeyspace()
	data, err := Encode(ks)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	data[0] ^= 0xFF

	if err := Decode(data, redkit.NewKeyspace()); err == nil {
		t.Fatal("expected checksum mismatch error, got nil")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ks := buildKeyspace()
	path := filepath.Join(t.TempDir(), "dump.rdb")

	if err := Save(path, ks); err != nil {
		t.Fatalf("Save: %v", err)
	}

	restored := redkit.NewKeyspace()
	if err := Load(path, restored); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(restored.Snapshot()) != 5 {
		t.Fatalf("expected 5 entries after load, got %d", len(restored.Snapshot()))
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "does-not-exist.rdb")
	if _, err := os.Stat(path); err == nil {
		t.Fatal("test setup: file unexpectedly exists")
	}
	if err := Load(path, redkit.NewKeyspace()); err != nil {
		t.Fatalf("Load on missing file should be nil, got %v", err)
	}
}
