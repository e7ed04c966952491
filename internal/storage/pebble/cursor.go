package pebblestore

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const cursorKeyPrefix = "backlog/cursor/"

// CursorKey returns the key holding the named cursor.
func CursorKey(name string) []byte { return []byte(cursorKeyPrefix + name) }

// CursorStore keeps a backlog consumption cursor in Pebble. Every Store
// syncs the WAL. It satisfies backlog.CursorStore.
type CursorStore struct {
	db     *DB
	key    []byte
	ownsDB bool
}

// NewCursorStore stores the named cursor in db. Close leaves db open.
func NewCursorStore(db *DB, name string) *CursorStore {
	return &CursorStore{db: db, key: CursorKey(name)}
}

// OpenCursorStore opens a dedicated Pebble database for the named cursor.
func OpenCursorStore(opts Options, name string) (*CursorStore, error) {
	if opts.Fsync == FsyncModeUnspecified {
		opts.Fsync = FsyncModeAlways
	}
	db, err := Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cursor db: %w", err)
	}
	return &CursorStore{db: db, key: CursorKey(name), ownsDB: true}, nil
}

// Load returns the stored cursor, 0 if it was never stored.
func (c *CursorStore) Load() (uint64, error) {
	v, err := c.db.Get(c.key)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", c.key, err)
	}
	if len(v) != 8 {
		return 0, fmt.Errorf("cursor %s: invalid value length %d", c.key, len(v))
	}
	return binary.BigEndian.Uint64(v), nil
}

// Store durably records seq.
func (c *CursorStore) Store(seq uint64) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return c.db.SetSync(c.key, b[:])
}

func (c *CursorStore) Close() error {
	if c.ownsDB {
		return c.db.Close()
	}
	return nil
}
