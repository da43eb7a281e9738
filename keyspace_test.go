package redkit

import (
	"errors"
	"testing"
	"time"
)

func TestSetStringThenGetString(t *testing.T) {
	ks := NewKeyspace()
	if _, err := ks.SetString("k", []byte("v"), Expiry{Policy: ExpiryClear}, PresenceAny); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	v, ok, err := ks.GetString("k")
	if err != nil || !ok {
		t.Fatalf("GetString: (%s, %v, %v)", v, ok, err)
	}
	if string(v) != "v" {
		t.Errorf("got %q, want %q", v, "v")
	}
}

func TestSetStringPresenceGating(t *testing.T) {
	ks := NewKeyspace()

	ok, err := ks.SetString("k", []byte("first"), Expiry{Policy: ExpiryClear}, PresenceOnlyIfPresent)
	if err != nil {
		t.Fatalf("SetString XX on absent key: %v", err)
	}
	if ok {
		t.Error("SET XX on an absent key should not write")
	}

	ok, err = ks.SetString("k", []byte("first"), Expiry{Policy: ExpiryClear}, PresenceOnlyIfAbsent)
	if err != nil || !ok {
		t.Fatalf("SET NX on absent key should succeed: (%v, %v)", ok, err)
	}

	ok, err = ks.SetString("k", []byte("second"), Expiry{Policy: ExpiryClear}, PresenceOnlyIfAbsent)
	if err != nil {
		t.Fatalf("SetString: %v", err)
	}
	if ok {
		t.Error("SET NX on an existing key should not write")
	}
	v, _, _ := ks.GetString("k")
	if string(v) != "first" {
		t.Errorf("expected original value preserved, got %q", v)
	}
}

func TestExpiredKeyIsTreatedAsAbsent(t *testing.T) {
	ks := NewKeyspace()
	if _, err := ks.SetString("k", []byte("v"), Expiry{Policy: ExpiryRelativeMs, Ms: 1}, PresenceAny); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := ks.GetString("k"); ok {
		t.Error("expected expired key to read as absent")
	}
	if n := ks.Exists("k"); n != 0 {
		t.Errorf("expected EXISTS 0 for expired key, got %d", n)
	}
}

func TestWrongTypeError(t *testing.T) {
	ks := NewKeyspace()
	if _, err := ks.LPush("k", []byte("a")); err != nil {
		t.Fatalf("LPush: %v", err)
	}
	if _, _, err := ks.GetString("k"); !errors.Is(err, ErrWrongType) {
		t.Errorf("expected ErrWrongType, got %v", err)
	}
}

func TestDelRemovesKeys(t *testing.T) {
	ks := NewKeyspace()
	ks.SetString("a", []byte("1"), Expiry{Policy: ExpiryClear}, PresenceAny)
	ks.SetString("b", []byte("2"), Expiry{Policy: ExpiryClear}, PresenceAny)

	n := ks.Del("a", "b", "missing")
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}
	if ks.DBSize() != 0 {
		t.Errorf("expected empty keyspace after DEL, got size %d", ks.DBSize())
	}
}

func TestCmdZAddRejectsNaNScore(t *testing.T) {
	server := NewServer(":0")
	conn := &Connection{server: server}
	result := cmdZAdd(conn, &Command{Args: []string{"ranks", "nan", "a"}})
	if result.Type != ErrorReply {
		t.Fatalf("expected ZADD with a NaN score to be rejected, got %v", result)
	}
	if n := server.Keyspace.Exists("ranks"); n != 0 {
		t.Errorf("a rejected ZADD must not create the key, got EXISTS %d", n)
	}
}

func TestZAddAndZRangeOrdering(t *testing.T) {
	ks := NewKeyspace()
	if _, err := ks.ZAdd("ranks", ZAddFlags{}, map[string]float64{
		"c": 3, "a": 1, "b": 2,
	}); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}

	members, err := ks.ZRange("ranks", 0, -1)
	if err != nil {
		t.Fatalf("ZRange: %v", err)
	}
	want := []string{"a", "b", "c"}
	if len(members) != len(want) {
		t.Fatalf("expected %d members, got %d", len(want), len(members))
	}
	for i, m := range want {
		if members[i].member != m {
			t.Errorf("position %d: got %q, want %q", i, members[i].member, m)
		}
	}
}
