// Package pebblestore provides a thin wrapper around Pebble with fsync policy
// and minimal metrics hooks, plus a Pebble-backed cursor store for the
// backlog.
//
// Usage:
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: "./cursor.db",
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	// Cursor keys live under backlog/cursor/{name}
//	cs := pebblestore.NewCursorStore(db, "default")
//	_ = cs.Store(42)
//	seq, _ := cs.Load()
package pebblestore
