package backlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	logpkg "github.com/rzbill/backlog/pkg/log"
)

// Backlog is a durable append-only log stored in one directory. It is safe
// for one producer and any number of consumers to use concurrently.
//
// Lock order: writeMu before trimMu, ackMu before trimMu, and segmentSet.mu last.
type Backlog struct {
	dir     string
	opts    Options
	storage Storage
	logger  logpkg.Logger
	metrics MetricsHook
	lock    io.Closer
	set     *segmentSet
	cursors CursorStore

	writeMu sync.Mutex
	writer  *segmentWriter

	ackMu  sync.Mutex
	cursor atomic.Uint64

	trimMu sync.Mutex

	stateMu sync.RWMutex
	closed  bool
	failed  error

	stopFlush chan struct{}
	flushDone chan struct{}
}

// Open takes ownership of dir, runs recovery and returns a usable backlog
// together with a report of everything recovery discarded. Any error means
// nothing was opened.
func Open(dir string, opts Options) (*Backlog, LossReport, error) {
	opts = opts.withDefaults()
	storage := opts.Storage
	logger := opts.Logger.WithComponent("backlog")
	opts.Logger = logger

	closeCursors := func() {
		if opts.CursorStore != nil {
			_ = opts.CursorStore.Close()
		}
	}
	if err := storage.MkdirAll(dir); err != nil {
		closeCursors()
		return nil, LossReport{}, fmt.Errorf("%w: create %s: %w", ErrOpenFailed, dir, err)
	}
	lock, err := lockDir(dir)
	if err != nil {
		closeCursors()
		return nil, LossReport{}, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	b := &Backlog{
		dir:     dir,
		opts:    opts,
		storage: storage,
		logger:  logger,
		metrics: opts.Metrics,
		lock:    lock,
		cursors: opts.CursorStore,
	}
	report, err := b.open()
	if err != nil {
		if b.cursors != nil {
			_ = b.cursors.Close()
		}
		_ = lock.Close()
		if errors.Is(err, ErrOpenFailed) {
			return nil, report, err
		}
		return nil, report, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	return b, report, nil
}

func (b *Backlog) open() (LossReport, error) {
	start := time.Now()
	if b.cursors == nil {
		cs, err := OpenFileCursorStore(b.storage, filepath.Join(b.dir, cursorFileName))
		if err != nil {
			return LossReport{}, err
		}
		b.cursors = cs
	}
	cursor, err := b.cursors.Load()
	if err != nil {
		return LossReport{}, fmt.Errorf("load cursor: %w", err)
	}
	b.cursor.Store(cursor)

	segs, report, err := recoverDir(b.storage, b.dir, cursor, b.opts.MaxPayloadBytes, b.logger)
	if err != nil {
		return report, err
	}
	b.set = newSegmentSet(segs)
	w, err := openSegmentWriter(b.storage, b.dir, b.set, b.opts)
	if err != nil {
		return report, err
	}
	b.writer = w

	// Acknowledged frames were lost: continue numbering after the cursor so
	// no sequence is handed out twice.
	if cursor >= w.nextSeq {
		b.logger.Warn("cursor is past the recovered log, starting a new segment",
			logpkg.Uint64("cursor", cursor),
			logpkg.Uint64("last_seq", w.nextSeq-1))
		if err := w.rotate(cursor + 1); err != nil {
			_ = w.close()
			return report, err
		}
	}

	for _, loss := range report.Losses {
		b.reportLoss(loss)
	}

	if b.opts.Trim == TrimOnAck || b.retentionExceeded() {
		b.trimMu.Lock()
		_, err := b.trimLocked(context.Background())
		b.trimMu.Unlock()
		if err != nil {
			_ = w.close()
			return report, fmt.Errorf("trim at open: %w", err)
		}
	}

	if b.opts.Flush == FlushBatched {
		b.stopFlush = make(chan struct{})
		b.flushDone = make(chan struct{})
		go b.flushLoop(b.opts.FlushInterval)
	}

	b.logger.Info("backlog opened",
		logpkg.Str("dir", b.dir),
		logpkg.Int("segments", len(b.set.snapshot())),
		logpkg.Str("size", humanize.IBytes(uint64(b.set.totalBytes()))),
		logpkg.Uint64("last_seq", b.set.lastSeq()),
		logpkg.Uint64("cursor", cursor),
		logpkg.Str("flush", b.opts.Flush.String()),
		logpkg.Int("losses", len(report.Losses)),
		logpkg.Duration("took", time.Since(start)))
	return report, nil
}

func (b *Backlog) reportLoss(loss Loss) {
	b.metrics.ObserveLoss(loss.Reason, loss.Frames, loss.Bytes())
	if loss.Reason == ReasonRetention {
		b.logger.Warn("retention evicted unacknowledged segment",
			logpkg.Uint64("segment", loss.SegmentID),
			logpkg.Uint64("first_seq", loss.FirstSeq),
			logpkg.Int64("frames", loss.Frames),
			logpkg.Str("size", humanize.IBytes(uint64(loss.Bytes()))))
	}
	if b.opts.OnLoss != nil {
		b.opts.OnLoss(loss)
	}
}

// usable returns the error every operation fails with once the backlog is
// closed or has hit a post-recovery inconsistency.
func (b *Backlog) usable() error {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	if b.closed {
		return ErrClosed
	}
	return b.failed
}

// iterationFailed turns a corruption boundary found after recovery into a
// fatal inconsistency for this instance. Other errors pass through.
func (b *Backlog) iterationFailed(err error) error {
	var cb *CorruptionBoundary
	if !errors.As(err, &cb) {
		return err
	}
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	if b.failed == nil {
		b.failed = fmt.Errorf("%w: %w", ErrInconsistent, cb)
		b.logger.Error("corruption found after recovery, backlog is unusable",
			logpkg.Uint64("segment", cb.SegmentID),
			logpkg.Int64("offset", cb.Offset),
			logpkg.Uint64("seq", cb.Seq),
			logpkg.Str("reason", cb.Reason.String()),
			logpkg.Err(cb.Cause))
	}
	return b.failed
}

// Append writes payload as one frame and returns its sequence number. With
// the per-append flush policy the frame is durable when Append returns.
func (b *Backlog) Append(ctx context.Context, payload []byte) (uint64, error) {
	seqs, err := b.AppendBatch(ctx, [][]byte{payload})
	if err != nil {
		return 0, err
	}
	return seqs[0], nil
}

// AppendBatch writes payloads as consecutive frames behind one durability
// barrier. On error none of them is committed.
func (b *Backlog) AppendBatch(ctx context.Context, payloads [][]byte) ([]uint64, error) {
	if len(payloads) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Close marks the backlog closed before taking writeMu, so checking under
	// the lock never lets an append reach a closed file.
	b.writeMu.Lock()
	if err := b.usable(); err != nil {
		b.writeMu.Unlock()
		return nil, err
	}
	first, err := b.writer.append(payloads)
	b.writeMu.Unlock()
	if err != nil {
		if errors.Is(err, ErrWriteFailure) {
			b.logger.Error("append failed", logpkg.Int("frames", len(payloads)), logpkg.Err(err))
		}
		return nil, err
	}

	if b.retentionExceeded() {
		b.trimMu.Lock()
		_, terr := b.trimLocked(ctx)
		b.trimMu.Unlock()
		if terr != nil {
			b.logger.Warn("retention pass failed", logpkg.Err(terr))
		}
	}

	seqs := make([]uint64, len(payloads))
	for i := range seqs {
		seqs[i] = first + uint64(i)
	}
	return seqs, nil
}

// Flush makes every appended frame durable and visible to iterators.
func (b *Backlog) Flush() error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.usable(); err != nil {
		return err
	}
	return b.writer.sync()
}

func (b *Backlog) flushLoop(interval time.Duration) {
	defer close(b.flushDone)
	tick := interval / 2
	if tick <= 0 {
		tick = interval
	}
	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-b.stopFlush:
			return
		case now := <-t.C:
			b.writeMu.Lock()
			err := b.writer.syncIfStale(now)
			b.writeMu.Unlock()
			if err != nil {
				b.logger.Error("background flush failed", logpkg.Err(err))
			}
		}
	}
}

// Iterate returns an iterator over durable frames with sequence >= from.
// Frames that were already trimmed are skipped.
func (b *Backlog) Iterate(from uint64) (*Iterator, error) {
	if err := b.usable(); err != nil {
		return nil, err
	}
	if from == 0 {
		from = 1
	}
	return &Iterator{b: b, next: from}, nil
}

// Acknowledge durably advances the cursor to seq. Acknowledging at or below
// the current cursor is a no-op. Under TrimOnAck fully acknowledged sealed
// segments are deleted once the cursor is durable.
func (b *Backlog) Acknowledge(seq uint64) error {
	b.ackMu.Lock()
	defer b.ackMu.Unlock()
	if err := b.usable(); err != nil {
		return err
	}

	if seq <= b.cursor.Load() {
		return nil
	}
	if last := b.set.lastSeq(); seq > last {
		return fmt.Errorf("%w: %d > %d", ErrAckOutOfRange, seq, last)
	}
	if err := b.cursors.Store(seq); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailure, err)
	}
	b.cursor.Store(seq)

	if b.opts.Trim != TrimOnAck {
		return nil
	}
	b.trimMu.Lock()
	defer b.trimMu.Unlock()
	if _, err := b.trimLocked(context.Background()); err != nil {
		return fmt.Errorf("trim after acknowledge: %w", err)
	}
	return nil
}

// Health returns nil while the backlog is open and consistent.
func (b *Backlog) Health() error { return b.usable() }

// Cursor returns the last acknowledged sequence, 0 if none.
func (b *Backlog) Cursor() uint64 { return b.cursor.Load() }

// LastSequence returns the last durable sequence, 0 if none.
func (b *Backlog) LastSequence() uint64 { return b.set.lastSeq() }

// Segments describes the live segments, oldest first.
func (b *Backlog) Segments() []SegmentInfo { return b.set.snapshot() }

// MaxPayloadBytes returns the payload size limit in effect.
func (b *Backlog) MaxPayloadBytes() int { return b.opts.MaxPayloadBytes }

// Dir returns the backlog directory.
func (b *Backlog) Dir() string { return b.dir }

// Close flushes pending frames and releases the directory. It is safe to
// call Close on a backlog that failed.
func (b *Backlog) Close() error {
	b.stateMu.Lock()
	if b.closed {
		b.stateMu.Unlock()
		return ErrClosed
	}
	b.closed = true
	b.stateMu.Unlock()

	if b.stopFlush != nil {
		close(b.stopFlush)
		<-b.flushDone
	}
	b.writeMu.Lock()
	err := b.writer.close()
	b.writeMu.Unlock()
	b.set.shutdown()
	b.ackMu.Lock()
	if cerr := b.cursors.Close(); err == nil {
		err = cerr
	}
	b.ackMu.Unlock()
	if lerr := b.lock.Close(); err == nil {
		err = lerr
	}
	b.logger.Info("backlog closed",
		logpkg.Str("dir", b.dir),
		logpkg.Uint64("last_seq", b.set.lastSeq()),
		logpkg.Uint64("cursor", b.cursor.Load()))
	return err
}
