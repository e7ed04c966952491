package backlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"sync"
)

// CursorStore persists the consumption cursor. Store must be durable when it
// returns. Implementations are called with the backlog's ack lock held.
type CursorStore interface {
	// Load returns the last stored sequence, or 0 if none was ever stored.
	Load() (uint64, error)
	Store(seq uint64) error
	Close() error
}

// Cursor slot layout (big-endian), two slots written alternately:
//
//	magic(1) | version(1) | reserved(2) | generation(4) | seq(8) | crc32c(4) | pad(4)
const (
	cursorSlotSize      = 24
	cursorMagic    byte = 0xC5
	cursorVersion  byte = 1
)

// FileCursorStore keeps the cursor in a small two-slot file so that a torn
// update falls back to the previous durable value.
type FileCursorStore struct {
	mu   sync.Mutex
	f    ReadWriteFile
	path string
	gen  uint32
	slot int // slot that holds the current value
}

// OpenFileCursorStore opens (or creates) the cursor file at path.
func OpenFileCursorStore(storage Storage, path string) (*FileCursorStore, error) {
	f, err := storage.OpenReadWrite(path)
	if err != nil {
		return nil, fmt.Errorf("open cursor %s: %w", path, err)
	}
	return &FileCursorStore{f: f, path: path, slot: 1}, nil
}

func encodeCursorSlot(gen uint32, seq uint64) []byte {
	b := make([]byte, cursorSlotSize)
	b[0] = cursorMagic
	b[1] = cursorVersion
	binary.BigEndian.PutUint32(b[4:8], gen)
	binary.BigEndian.PutUint64(b[8:16], seq)
	binary.BigEndian.PutUint32(b[16:20], crc32.Checksum(b[:16], castagnoli))
	return b
}

func decodeCursorSlot(b []byte) (gen uint32, seq uint64, ok bool) {
	if len(b) < cursorSlotSize || b[0] != cursorMagic || b[1] != cursorVersion {
		return 0, 0, false
	}
	if crc32.Checksum(b[:16], castagnoli) != binary.BigEndian.Uint32(b[16:20]) {
		return 0, 0, false
	}
	return binary.BigEndian.Uint32(b[4:8]), binary.BigEndian.Uint64(b[8:16]), true
}

// Load reads both slots and returns the newest valid one. An empty file, or
// one whose only content is a torn first store, yields 0. Any other file
// with no valid slot is an error.
func (c *FileCursorStore) Load() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buf := make([]byte, 2*cursorSlotSize)
	n, err := c.f.ReadAt(buf, 0)
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("read cursor %s: %w", c.path, err)
	}
	if n == 0 {
		c.gen, c.slot = 0, 1
		return 0, nil
	}

	found := false
	var seq uint64
	for i := 0; i < 2 && (i+1)*cursorSlotSize <= n; i++ {
		g, s, ok := decodeCursorSlot(buf[i*cursorSlotSize : (i+1)*cursorSlotSize])
		if !ok {
			continue
		}
		// Serial comparison tolerates generation wraparound.
		if !found || int32(g-c.gen) > 0 {
			found, c.gen, c.slot, seq = true, g, i, s
		}
	}
	if !found {
		// The first Store only ever writes slot 0. With nothing beyond it, that
		// store was torn and the previous durable value is the initial 0.
		if firstStoreTorn(buf[:n]) {
			c.gen, c.slot = 0, 1
			return 0, nil
		}
		return 0, fmt.Errorf("%w: cursor file %s has no valid slot", ErrOpenFailed, c.path)
	}
	return seq, nil
}

// firstStoreTorn reports whether b holds at most a slot-0 write: everything
// past the first slot is absent or zero.
func firstStoreTorn(b []byte) bool {
	if len(b) <= cursorSlotSize {
		return true
	}
	for _, c := range b[cursorSlotSize:] {
		if c != 0 {
			return false
		}
	}
	return true
}

// Store writes seq to the slot not holding the current value and syncs it.
func (c *FileCursorStore) Store(seq uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	gen := c.gen + 1
	slot := 1 - c.slot
	if _, err := c.f.WriteAt(encodeCursorSlot(gen, seq), int64(slot*cursorSlotSize)); err != nil {
		return fmt.Errorf("write cursor: %w", err)
	}
	if err := c.f.Sync(); err != nil {
		return fmt.Errorf("sync cursor: %w", err)
	}
	c.gen, c.slot = gen, slot
	return nil
}

func (c *FileCursorStore) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.f.Close()
}
