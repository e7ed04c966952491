package backlog

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	logpkg "github.com/rzbill/backlog/pkg/log"
)

// segmentWriter appends frames to the active segment. All methods must be
// called with Backlog.writeMu held.
type segmentWriter struct {
	storage Storage
	dir     string
	set     *segmentSet
	opts    Options
	logger  logpkg.Logger
	metrics MetricsHook

	seg  *segment
	file WriteFile

	// written counts bytes handed to the file, durable counts bytes covered
	// by the last successful sync.
	written       int64
	durable       int64
	durableFrames int64
	nextSeq       uint64
	pending       int
	pendingSince  time.Time

	// poisoned is set when a failed write could not be rolled back. The
	// on-disk tail is then unknown until recovery runs again.
	poisoned error
	buf      []byte
}

func openSegmentWriter(storage Storage, dir string, set *segmentSet, opts Options) (*segmentWriter, error) {
	seg := set.active()
	f, err := storage.OpenAppend(seg.path)
	if err != nil {
		return nil, fmt.Errorf("open active segment %d: %w", seg.id, err)
	}
	set.mu.RLock()
	w := &segmentWriter{
		storage:       storage,
		dir:           dir,
		set:           set,
		opts:          opts,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		seg:           seg,
		file:          f,
		written:       seg.size,
		durable:       seg.size,
		durableFrames: seg.frames,
		nextSeq:       seg.last + 1,
	}
	set.mu.RUnlock()
	return w, nil
}

// append writes payloads as consecutive frames and applies the flush policy.
// It returns the sequence number assigned to the first payload.
func (w *segmentWriter) append(payloads [][]byte) (uint64, error) {
	if w.poisoned != nil {
		return 0, w.poisoned
	}
	for _, p := range payloads {
		if len(p) > w.opts.MaxPayloadBytes {
			return 0, fmt.Errorf("%w: %d bytes (limit %d)", ErrPayloadTooLarge, len(p), w.opts.MaxPayloadBytes)
		}
	}
	if w.written >= w.opts.MaxSegmentBytes && w.written > SegmentHeaderSize {
		if err := w.rotate(w.nextSeq); err != nil {
			return 0, err
		}
	}

	start := time.Now()
	first := w.nextSeq
	w.buf = w.buf[:0]
	for i, p := range payloads {
		w.buf = AppendFrame(w.buf, first+uint64(i), p)
	}
	if _, err := w.file.Write(w.buf); err != nil {
		return 0, w.rollback(err)
	}
	if w.pending == 0 {
		w.pendingSince = start
	}
	w.written += int64(len(w.buf))
	w.nextSeq += uint64(len(payloads))
	w.pending += len(payloads)

	switch w.opts.Flush {
	case FlushPerAppend:
		if err := w.sync(); err != nil {
			return 0, err
		}
	case FlushBatched:
		if w.pending >= w.opts.FlushBatchSize {
			if err := w.sync(); err != nil {
				return 0, err
			}
		}
	}
	w.metrics.ObserveAppend(time.Since(start), len(payloads), len(w.buf))
	return first, nil
}

// sync is the durability barrier. On success every written frame becomes
// visible to readers; on failure the unsynced frames are rolled back.
func (w *segmentWriter) sync() error {
	if w.poisoned != nil {
		return w.poisoned
	}
	if w.pending == 0 {
		return nil
	}
	start := time.Now()
	err := w.file.Sync()
	w.metrics.ObserveSync(time.Since(start), err)
	if err != nil {
		return w.rollback(err)
	}
	w.durable = w.written
	w.durableFrames += int64(w.pending)
	w.pending = 0
	w.set.publish(w.seg, w.durable, w.nextSeq-1, w.durableFrames)
	return nil
}

// syncIfStale syncs when pending frames are older than the flush interval.
func (w *segmentWriter) syncIfStale(now time.Time) error {
	if w.pending == 0 || now.Sub(w.pendingSince) < w.opts.FlushInterval {
		return nil
	}
	return w.sync()
}

// rollback truncates the active segment to the durable watermark and
// rewinds the sequence counter. If that fails the writer is poisoned.
func (w *segmentWriter) rollback(cause error) error {
	lost := w.pending
	w.pending = 0
	w.written = w.durable
	w.nextSeq = w.seg.base + uint64(w.durableFrames)

	if err := w.storage.Truncate(w.seg.path, w.durable); err != nil {
		w.poisoned = fmt.Errorf("%w: segment %d needs recovery after failed rollback: %v (original error: %v)", ErrWriteFailure, w.seg.id, err, cause)
		w.logger.Error("backlog writer poisoned",
			logpkg.Uint64("segment", w.seg.id),
			logpkg.Err(err),
			logpkg.Str("cause", cause.Error()))
		return w.poisoned
	}
	if lost > 0 {
		w.logger.Warn("discarded unsynced frames after write failure",
			logpkg.Uint64("segment", w.seg.id),
			logpkg.Int("frames", lost),
			logpkg.Uint64("next_seq", w.nextSeq),
			logpkg.Err(cause))
		return fmt.Errorf("%w: %v (%d unsynced frames discarded)", ErrWriteFailure, cause, lost)
	}
	return fmt.Errorf("%w: %v", ErrWriteFailure, cause)
}

// rotate seals the active segment and starts a new one whose first frame
// will carry base. The old segment is fully synced before the new file
// exists.
func (w *segmentWriter) rotate(base uint64) error {
	if err := w.sync(); err != nil {
		return err
	}
	seg, err := createSegment(w.storage, w.dir, w.seg.id+1, base)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrWriteFailure, err)
	}
	f, err := w.storage.OpenAppend(seg.path)
	if err != nil {
		return fmt.Errorf("%w: open segment %d: %v", ErrWriteFailure, seg.id, err)
	}
	old := w.seg
	_ = w.file.Close()

	w.set.add(seg)
	w.seg = seg
	w.file = f
	w.written = SegmentHeaderSize
	w.durable = SegmentHeaderSize
	w.durableFrames = 0
	w.nextSeq = base

	w.metrics.ObserveRotate(seg.id)
	w.logger.Debug("rotated segment",
		logpkg.Uint64("sealed", old.id),
		logpkg.Str("sealed_size", humanize.IBytes(uint64(old.size))),
		logpkg.Uint64("active", seg.id),
		logpkg.Uint64("base_seq", base))
	return nil
}

func (w *segmentWriter) close() error {
	err := w.sync()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// createSegment atomically creates a segment file holding only its header.
func createSegment(storage Storage, dir string, id, base uint64) (*segment, error) {
	seg := newSegment(dir, id, base)
	tmp := seg.path + tmpExt
	f, err := storage.Create(tmp)
	if err != nil {
		return nil, fmt.Errorf("create segment %d: %w", id, err)
	}
	if _, err := f.Write(encodeSegmentHeader(base)); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("write segment %d header: %w", id, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("sync segment %d: %w", id, err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close segment %d: %w", id, err)
	}
	if err := storage.Rename(tmp, seg.path); err != nil {
		return nil, fmt.Errorf("install segment %d: %w", id, err)
	}
	if err := storage.SyncDir(filepath.Dir(seg.path)); err != nil {
		return nil, fmt.Errorf("sync dir for segment %d: %w", id, err)
	}
	return seg, nil
}
