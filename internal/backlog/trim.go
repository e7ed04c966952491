package backlog

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	logpkg "github.com/rzbill/backlog/pkg/log"
)

// TrimResult summarizes one trim pass.
type TrimResult struct {
	// Segments and Bytes count removed segment files, including retention evictions.
	Segments int
	Bytes    int64
	// UpToSeq is the last sequence held by the newest removed segment, 0 if none.
	UpToSeq uint64
}

// Trim deletes every sealed segment whose frames are all acknowledged, oldest
// first. Under RetainMaxBytes it then evicts the oldest sealed segments until
// the backlog fits the byte budget. The active segment is never removed.
func (b *Backlog) Trim(ctx context.Context) (TrimResult, error) {
	b.trimMu.Lock()
	defer b.trimMu.Unlock()
	if err := b.usable(); err != nil {
		return TrimResult{}, err
	}
	return b.trimLocked(ctx)
}

func (b *Backlog) trimLocked(ctx context.Context) (TrimResult, error) {
	start := time.Now()
	cursor := b.cursor.Load()

	var res TrimResult
	var evicted []Loss
	segs := b.set.snapshot()
	var total int64
	for _, info := range segs {
		total += info.Size
	}
	n := 0
	for _, info := range segs {
		if !info.Sealed {
			break
		}
		if info.LastSeq > cursor {
			if b.opts.Retention != RetainMaxBytes || total <= b.opts.RetentionMaxBytes {
				break
			}
			evicted = append(evicted, retentionLoss(info, cursor))
		}
		total -= info.Size
		res.Segments++
		res.Bytes += info.Size
		if !info.Empty() {
			res.UpToSeq = info.LastSeq
		}
		n++
	}
	if n == 0 {
		return res, nil
	}

	removed := b.set.removeFront(n)
	var firstErr error
	for _, seg := range removed {
		if err := ctx.Err(); err != nil && firstErr == nil {
			// The segments are already out of the set; finish deleting them.
			firstErr = err
		}
		if err := b.storage.Remove(seg.path); err != nil {
			b.logger.Error("remove trimmed segment", logpkg.Uint64("segment", seg.id), logpkg.Err(err))
			if firstErr == nil {
				firstErr = fmt.Errorf("remove segment %d: %w", seg.id, err)
			}
		}
	}
	if err := b.storage.SyncDir(b.dir); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("sync %s: %w", b.dir, err)
	}

	for _, loss := range evicted {
		b.reportLoss(loss)
	}
	b.metrics.ObserveTrim(res.Segments, res.Bytes)
	b.logger.Info("trimmed segments",
		logpkg.Int("segments", res.Segments),
		logpkg.Str("freed", humanize.IBytes(uint64(res.Bytes))),
		logpkg.Uint64("up_to_seq", res.UpToSeq),
		logpkg.Uint64("cursor", cursor),
		logpkg.Duration("took", time.Since(start)))
	return res, firstErr
}

// retentionLoss describes the unacknowledged part of an evicted segment.
func retentionLoss(info SegmentInfo, cursor uint64) Loss {
	first := info.BaseSeq
	if cursor >= first {
		first = cursor + 1
	}
	var frames int64
	if info.LastSeq >= first {
		frames = int64(info.LastSeq - first + 1)
	}
	return Loss{
		SegmentID: info.ID,
		Start:     0,
		End:       info.Size,
		FirstSeq:  first,
		Frames:    frames,
		Reason:    ReasonRetention,
		Deleted:   true,
	}
}

// retentionExceeded reports whether a retention pass could evict something.
func (b *Backlog) retentionExceeded() bool {
	return b.opts.Retention == RetainMaxBytes && b.set.totalBytes() > b.opts.RetentionMaxBytes
}
