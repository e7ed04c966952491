package pebblestore

import "testing"

func TestCursorStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cs, err := OpenCursorStore(Options{DataDir: dir}, "default")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	seq, err := cs.Load()
	if err != nil || seq != 0 {
		t.Fatalf("fresh cursor: seq=%d err=%v", seq, err)
	}
	if err := cs.Store(17); err != nil {
		t.Fatalf("store: %v", err)
	}
	if err := cs.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	cs2, err := OpenCursorStore(Options{DataDir: dir}, "default")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer cs2.Close()
	seq, err = cs2.Load()
	if err != nil || seq != 17 {
		t.Fatalf("reloaded cursor: seq=%d err=%v", seq, err)
	}
}

func TestCursorStoresAreIndependent(t *testing.T) {
	db, _ := newTestDB(t)
	a := NewCursorStore(db, "a")
	b := NewCursorStore(db, "b")
	if err := a.Store(3); err != nil {
		t.Fatalf("store a: %v", err)
	}
	if err := b.Store(9); err != nil {
		t.Fatalf("store b: %v", err)
	}
	if v, _ := a.Load(); v != 3 {
		t.Fatalf("a=%d", v)
	}
	if v, _ := b.Load(); v != 9 {
		t.Fatalf("b=%d", v)
	}
	// Closing a shared store leaves the db usable.
	_ = a.Close()
	if _, err := db.Get(CursorKey("b")); err != nil {
		t.Fatalf("db closed by shared cursor store: %v", err)
	}
}

func TestCursorStoreRejectsMalformedValue(t *testing.T) {
	db, _ := newTestDB(t)
	if err := db.SetSync(CursorKey("bad"), []byte("xyz")); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, err := NewCursorStore(db, "bad").Load(); err == nil {
		t.Fatalf("expected error for malformed cursor value")
	}
}
