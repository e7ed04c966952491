package backlog

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	logpkg "github.com/rzbill/backlog/pkg/log"
)

// Loss describes bytes that recovery (or retention) discarded.
type Loss struct {
	SegmentID uint64
	// Start and End delimit the discarded byte range [Start, End) in the segment file.
	Start, End int64
	// FirstSeq is the first sequence number known or believed to be lost.
	FirstSeq uint64
	// Frames is an estimate of the number of frames lost.
	Frames int64
	Reason BoundaryReason
	// Deleted reports whether the whole segment file was removed.
	Deleted bool
}

// Bytes is the size of the discarded range.
func (l Loss) Bytes() int64 { return l.End - l.Start }

// LossReport lists every discarded region found when opening a backlog. An
// empty report means nothing previously written was dropped.
type LossReport struct {
	Losses []Loss
}

// Empty reports whether no data was discarded.
func (r LossReport) Empty() bool { return len(r.Losses) == 0 }

// Frames returns the estimated total number of lost frames.
func (r LossReport) Frames() int64 {
	var n int64
	for _, l := range r.Losses {
		n += l.Frames
	}
	return n
}

// Bytes returns the total number of discarded bytes.
func (r LossReport) Bytes() int64 {
	var n int64
	for _, l := range r.Losses {
		n += l.Bytes()
	}
	return n
}

// recoverer runs the startup scan over a backlog directory.
type recoverer struct {
	storage    Storage
	dir        string
	cursor     uint64
	maxPayload int
	logger     logpkg.Logger

	report  LossReport
	kept    []*segment
	dirty   bool
	prevEnd uint64 // last sequence of the previous kept segment
}

// recoverDir verifies every segment, truncates or deletes whatever cannot be
// verified and returns the surviving segments oldest first. The last
// returned segment is the active one. Any error is fatal for the open.
func recoverDir(storage Storage, dir string, cursor uint64, maxPayload int, logger logpkg.Logger) ([]*segment, LossReport, error) {
	r := &recoverer{storage: storage, dir: dir, cursor: cursor, maxPayload: maxPayload, logger: logger}
	segs, err := r.run()
	return segs, r.report, err
}

func (r *recoverer) run() ([]*segment, error) {
	names, err := r.storage.List(r.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.dir, err)
	}
	var ids []uint64
	for _, name := range names {
		if strings.HasSuffix(name, tmpExt) {
			if err := r.storage.Remove(filepath.Join(r.dir, name)); err != nil {
				return nil, fmt.Errorf("remove leftover %s: %w", name, err)
			}
			r.dirty = true
			continue
		}
		if id, ok := parseSegmentFileName(name); ok {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	cut := false
	for i, id := range ids {
		path := filepath.Join(r.dir, segmentFileName(id))
		if cut {
			if err := r.discard(id, path, 0, ReasonSequenceGap); err != nil {
				return nil, err
			}
			continue
		}
		if i > 0 && id != ids[i-1]+1 {
			r.logger.Warn("segment id gap", logpkg.Uint64("after", ids[i-1]), logpkg.Uint64("found", id))
			cut = true
			if base, ok := r.readBase(path); ok {
				r.gap(ids[i-1]+1, 0, base)
			}
			if err := r.discard(id, path, 0, ReasonSequenceGap); err != nil {
				return nil, err
			}
			continue
		}
		ok, err := r.recoverSegment(id, path, i == len(ids)-1)
		if err != nil {
			return nil, err
		}
		cut = !ok
	}

	if len(r.kept) == 0 {
		if err := r.ensureActive(ids); err != nil {
			return nil, err
		}
	}
	if r.dirty {
		if err := r.storage.SyncDir(r.dir); err != nil {
			return nil, fmt.Errorf("sync %s: %w", r.dir, err)
		}
	}
	return r.kept, nil
}

// recoverSegment verifies one segment. It returns false when a boundary was
// found, meaning every later segment must be discarded.
func (r *recoverer) recoverSegment(id uint64, path string, last bool) (bool, error) {
	size, err := r.storage.Size(path)
	if err != nil {
		return false, fmt.Errorf("stat segment %d: %w", id, err)
	}
	f, err := r.storage.OpenRead(path)
	if err != nil {
		return false, fmt.Errorf("open segment %d: %w", id, err)
	}
	defer f.Close()

	hdr := make([]byte, SegmentHeaderSize)
	var base uint64
	herr := readFull(f, hdr, 0)
	if herr == nil {
		base, herr = decodeSegmentHeader(hdr)
	}
	if herr != nil {
		r.logger.Warn("unreadable segment header", logpkg.Uint64("segment", id), logpkg.Err(herr))
		return false, r.discard(id, path, r.expected(), ReasonBadSegmentHeader)
	}
	if len(r.kept) > 0 && base != r.prevEnd+1 {
		// A forward jump is legitimate when it only skips acknowledged sequences.
		if base < r.prevEnd+1 || base-1 > r.cursor {
			r.logger.Warn("segment base sequence does not follow predecessor",
				logpkg.Uint64("segment", id),
				logpkg.Uint64("base_seq", base),
				logpkg.Uint64("expected", r.prevEnd+1))
			prev := r.kept[len(r.kept)-1]
			r.gap(prev.id, prev.size, base)
			return false, r.discard(id, path, 0, ReasonSequenceGap)
		}
	}

	info := SegmentInfo{ID: id, BaseSeq: base}
	sc := newSegmentScanner(f, info, size, !last, r.maxPayload)
	var frames int64
	for sc.next() {
		frames++
	}
	seg := newSegment(r.dir, id, base)
	seg.frames = frames
	seg.last = sc.expect - 1
	seg.size = sc.off

	var cb *CorruptionBoundary
	switch {
	case sc.err != nil && !errors.As(sc.err, &cb):
		return false, fmt.Errorf("scan segment %d: %w", id, sc.err)
	case cb != nil:
		reason := cb.Reason
		if last && reason == ReasonCorruption {
			zero, err := allZero(f, sc.off, size)
			if err != nil {
				return false, fmt.Errorf("scan segment %d tail: %w", id, err)
			}
			if zero {
				reason = ReasonTornTail
			}
		}
		if err := r.truncate(seg, f, size, reason, cb.Cause); err != nil {
			return false, err
		}
		r.keep(seg)
		return false, nil
	case sc.off < size:
		// Incomplete tail of the active segment: the last write was cut short.
		if err := r.truncate(seg, f, size, ReasonTornTail, ErrShortFrame); err != nil {
			return false, err
		}
	}
	r.keep(seg)
	return true, nil
}

func (r *recoverer) keep(seg *segment) {
	r.kept = append(r.kept, seg)
	r.prevEnd = seg.last
}

// truncate cuts seg back to its last verified frame and records the loss.
func (r *recoverer) truncate(seg *segment, f ReadFile, size int64, reason BoundaryReason, cause error) error {
	loss := Loss{
		SegmentID: seg.id,
		Start:     seg.size,
		End:       size,
		FirstSeq:  seg.last + 1,
		Frames:    estimateFrames(f, seg.size, size, r.maxPayload),
		Reason:    reason,
	}
	if err := r.storage.Truncate(seg.path, seg.size); err != nil {
		return fmt.Errorf("truncate segment %d to %d: %w", seg.id, seg.size, err)
	}
	r.dirty = true
	r.record(loss, cause)
	return nil
}

// discard deletes a whole segment file and records everything in it as lost.
func (r *recoverer) discard(id uint64, path string, firstSeq uint64, reason BoundaryReason) error {
	size, err := r.storage.Size(path)
	if err != nil {
		return fmt.Errorf("stat segment %d: %w", id, err)
	}
	loss := Loss{SegmentID: id, Start: 0, End: size, FirstSeq: firstSeq, Reason: reason, Deleted: true}
	if base, ok := r.readBase(path); ok && firstSeq == 0 {
		loss.FirstSeq = base
	}
	if f, err := r.storage.OpenRead(path); err == nil {
		loss.Frames = estimateFrames(f, SegmentHeaderSize, size, r.maxPayload)
		_ = f.Close()
	}
	if err := r.storage.Remove(path); err != nil {
		return fmt.Errorf("remove segment %d: %w", id, err)
	}
	r.dirty = true
	r.record(loss, nil)
	return nil
}

// gap records the sequences between the last kept frame and base, the first
// sequence of a segment that is about to be discarded. Those frames sat in a
// file (or the tail of one) that no longer exists, so the loss carries no
// bytes: Start and End both point at offset at of segment segID.
func (r *recoverer) gap(segID uint64, at int64, base uint64) {
	first := r.expected()
	if base <= first {
		return
	}
	r.record(Loss{
		SegmentID: segID,
		Start:     at,
		End:       at,
		FirstSeq:  first,
		Frames:    int64(base - first),
		Reason:    ReasonSequenceGap,
	}, nil)
}

// readBase returns the base sequence from the segment header at path.
func (r *recoverer) readBase(path string) (uint64, bool) {
	f, err := r.storage.OpenRead(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()
	hdr := make([]byte, SegmentHeaderSize)
	if readFull(f, hdr, 0) != nil {
		return 0, false
	}
	base, err := decodeSegmentHeader(hdr)
	return base, err == nil
}

func (r *recoverer) record(loss Loss, cause error) {
	r.report.Losses = append(r.report.Losses, loss)
	fields := []logpkg.Field{
		logpkg.Uint64("segment", loss.SegmentID),
		logpkg.Str("reason", loss.Reason.String()),
		logpkg.Int64("offset", loss.Start),
		logpkg.Str("discarded", humanize.IBytes(uint64(loss.Bytes()))),
		logpkg.Int64("frames", loss.Frames),
		logpkg.Uint64("first_seq", loss.FirstSeq),
		logpkg.Bool("deleted", loss.Deleted),
	}
	if cause != nil {
		fields = append(fields, logpkg.Err(cause))
	}
	r.logger.Warn("recovery discarded data", fields...)
}

// ensureActive creates a fresh active segment when nothing survived. When a
// boundary cut the tail off, the last kept segment simply becomes active.
func (r *recoverer) ensureActive(ids []uint64) error {
	if len(r.kept) > 0 {
		return nil
	}
	id := uint64(1)
	if len(ids) > 0 {
		id = ids[0]
	}
	seg, err := createSegment(r.storage, r.dir, id, r.cursor+1)
	if err != nil {
		return err
	}
	r.kept = append(r.kept, seg)
	return nil
}

// expected is the sequence number the next kept segment should start at.
func (r *recoverer) expected() uint64 {
	if len(r.kept) == 0 {
		return r.cursor + 1
	}
	return r.prevEnd + 1
}

// estimateFrames walks plausible frame headers in [off, end) to estimate how
// many frames a discarded region held. Any leftover bytes count as one frame.
func estimateFrames(f ReadFile, off, end int64, maxPayload int) int64 {
	var n int64
	var hdr [FrameHeaderSize]byte
	for off < end {
		if end-off < FrameHeaderSize || readFull(f, hdr[:], off) != nil {
			return n + 1
		}
		fh, err := parseFrameHeader(hdr[:], maxPayload)
		if err != nil {
			return n + 1
		}
		n++
		off += FrameSize(int(fh.payloadLen))
	}
	return n
}

// allZero reports whether every byte in [off, end) is zero.
func allZero(f ReadFile, off, end int64) (bool, error) {
	buf := make([]byte, 32<<10)
	for off < end {
		n := int64(len(buf))
		if end-off < n {
			n = end - off
		}
		if err := readFull(f, buf[:n], off); err != nil {
			return false, err
		}
		for _, c := range buf[:n] {
			if c != 0 {
				return false, nil
			}
		}
		off += n
	}
	return true, nil
}
