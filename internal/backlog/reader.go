package backlog

import (
	"errors"
	"fmt"
	"io/fs"
)

// segmentScanner reads frames of one segment file sequentially between the
// segment header and limit, validating each frame. After next returns false,
// err holds a *CorruptionBoundary or an I/O error; if err is nil the scan
// reached limit, or stopped at an incomplete tail of an unsealed segment,
// in which case off < limit.
type segmentScanner struct {
	f          ReadFile
	segID      uint64
	off        int64
	limit      int64
	sealed     bool
	expect     uint64
	maxPayload int

	hdr   [FrameHeaderSize]byte
	frame Frame
	err   error
}

func newSegmentScanner(f ReadFile, info SegmentInfo, limit int64, sealed bool, maxPayload int) *segmentScanner {
	return &segmentScanner{
		f:          f,
		segID:      info.ID,
		off:        SegmentHeaderSize,
		limit:      limit,
		sealed:     sealed,
		expect:     info.BaseSeq,
		maxPayload: maxPayload,
	}
}

func (s *segmentScanner) boundary(reason BoundaryReason, cause error) bool {
	s.err = &CorruptionBoundary{SegmentID: s.segID, Offset: s.off, Seq: s.expect, Reason: reason, Cause: cause}
	return false
}

// short handles fewer bytes than a full frame before limit.
func (s *segmentScanner) short() bool {
	if s.sealed {
		return s.boundary(ReasonTornTail, ErrShortFrame)
	}
	return false
}

func (s *segmentScanner) next() bool {
	if s.err != nil {
		return false
	}
	remaining := s.limit - s.off
	if remaining <= 0 {
		return false
	}
	if remaining < FrameHeaderSize {
		return s.short()
	}
	if err := readFull(s.f, s.hdr[:], s.off); err != nil {
		s.err = fmt.Errorf("read frame header in segment %d at %d: %w", s.segID, s.off, err)
		return false
	}
	fh, err := parseFrameHeader(s.hdr[:], s.maxPayload)
	if err != nil {
		return s.boundary(ReasonCorruption, err)
	}
	size := FrameSize(int(fh.payloadLen))
	if remaining < size {
		return s.short()
	}
	payload := make([]byte, fh.payloadLen)
	if err := readFull(s.f, payload, s.off+FrameHeaderSize); err != nil {
		s.err = fmt.Errorf("read frame payload in segment %d at %d: %w", s.segID, s.off, err)
		return false
	}
	if err := fh.verify(s.hdr[:], payload); err != nil {
		return s.boundary(ReasonCorruption, err)
	}
	if fh.seq != s.expect {
		return s.boundary(ReasonSequenceGap, fmt.Errorf("found seq %d", fh.seq))
	}
	s.frame = Frame{Seq: fh.seq, Payload: payload}
	s.off += size
	s.expect++
	return true
}

func (s *segmentScanner) close() error { return s.f.Close() }

// Iterator is a pull-based, restartable scan over durable frames in
// ascending sequence order. It holds no backlog lock between calls to Next;
// a consumer may stop pulling at any time and must call Close.
type Iterator struct {
	b    *Backlog
	next uint64

	scan  *segmentScanner
	frame Frame
	err   error
	done  bool
}

// Next advances to the next frame. It returns false when the iterator has
// caught up with the durable end of the log or failed; check Err.
func (it *Iterator) Next() bool {
	if it.done {
		return false
	}
	for {
		if it.scan == nil {
			ok, err := it.open()
			if err != nil {
				return it.fail(err)
			}
			if !ok {
				it.done = true
				return false
			}
		}
		if it.scan.next() {
			if it.scan.frame.Seq < it.next {
				continue
			}
			it.frame = it.scan.frame
			it.next = it.frame.Seq + 1
			return true
		}
		if err := it.scan.err; err != nil {
			return it.fail(err)
		}
		// End of the scanned range: the segment may have grown or been sealed.
		info, ok := it.b.set.lookup(it.scan.segID)
		switch {
		case !ok:
			it.closeScan()
		case info.Size > it.scan.limit:
			it.scan.limit = info.Size
			it.scan.sealed = info.Sealed
		case info.Sealed:
			if it.scan.off < info.Size {
				it.scan.sealed = true
				it.scan.short()
				return it.fail(it.scan.err)
			}
			it.closeScan()
		default:
			it.done = true
			return false
		}
	}
}

// open positions a scanner at the segment holding it.next.
func (it *Iterator) open() (bool, error) {
	for attempt := 0; attempt < 2; attempt++ {
		info, path, ok := it.b.set.locate(it.next)
		if !ok {
			return false, nil
		}
		if info.BaseSeq > it.next {
			// Frames before base were trimmed or evicted.
			it.next = info.BaseSeq
		}
		f, err := it.b.storage.OpenRead(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && attempt == 0 {
				continue
			}
			return false, fmt.Errorf("open segment %d: %w", info.ID, err)
		}
		it.scan = newSegmentScanner(f, info, info.Size, info.Sealed, it.b.opts.MaxPayloadBytes)
		return true, nil
	}
	return false, nil
}

func (it *Iterator) fail(err error) bool {
	it.done = true
	it.err = it.b.iterationFailed(err)
	it.closeScan()
	return false
}

func (it *Iterator) closeScan() {
	if it.scan != nil {
		_ = it.scan.close()
		it.scan = nil
	}
}

// Frame returns the current frame. The payload is owned by the caller.
func (it *Iterator) Frame() Frame { return it.frame }

// Err returns the error that stopped iteration, if any.
func (it *Iterator) Err() error { return it.err }

// Close releases the open segment handle.
func (it *Iterator) Close() error {
	it.done = true
	it.closeScan()
	return nil
}
