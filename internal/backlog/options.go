package backlog

import (
	"time"

	logpkg "github.com/rzbill/backlog/pkg/log"
)

// FlushPolicy decides when appended frames are fsynced.
type FlushPolicy int

const (
	// FlushPerAppend syncs after every Append/AppendBatch call.
	FlushPerAppend FlushPolicy = iota
	// FlushBatched syncs once FlushBatchSize frames are pending or the oldest
	// pending frame is older than FlushInterval.
	FlushBatched
	// FlushManual syncs only on Flush, rotation and Close.
	FlushManual
)

func (p FlushPolicy) String() string {
	switch p {
	case FlushPerAppend:
		return "per-append"
	case FlushBatched:
		return "batched"
	case FlushManual:
		return "manual"
	default:
		return "unknown"
	}
}

// TrimMode decides when fully acknowledged segments are deleted.
type TrimMode int

const (
	// TrimOnAck trims after every acknowledge and once at open.
	TrimOnAck TrimMode = iota
	// TrimManual only trims on explicit Trim calls.
	TrimManual
)

// RetentionPolicy bounds how long unacknowledged data is kept.
type RetentionPolicy int

const (
	// RetainUntilAcknowledged never deletes unacknowledged frames.
	RetainUntilAcknowledged RetentionPolicy = iota
	// RetainMaxBytes evicts the oldest sealed segments once the backlog
	// exceeds RetentionMaxBytes, acknowledged or not. Evictions are reported
	// through OnLoss.
	RetainMaxBytes
)

const (
	DefaultMaxSegmentBytes int64 = 64 << 20
	DefaultFlushBatchSize        = 64
	DefaultFlushInterval         = 100 * time.Millisecond
)

// Options configures a Backlog. The zero value is usable.
type Options struct {
	// MaxSegmentBytes triggers rotation once the active segment reaches it.
	MaxSegmentBytes int64
	// MaxPayloadBytes caps a single payload and bounds frame decoding.
	MaxPayloadBytes int

	Flush          FlushPolicy
	FlushBatchSize int
	FlushInterval  time.Duration

	Trim              TrimMode
	Retention         RetentionPolicy
	RetentionMaxBytes int64

	// CursorStore persists the consumption cursor. Defaults to a
	// FileCursorStore in the backlog directory. The backlog closes it.
	CursorStore CursorStore
	// Storage defaults to OSStorage.
	Storage Storage
	// Logger defaults to a no-op logger.
	Logger logpkg.Logger
	// Metrics defaults to NoopMetrics.
	Metrics MetricsHook
	// OnLoss, if set, is called for every loss found by recovery and for
	// every retention eviction.
	OnLoss func(Loss)
}

func (o Options) withDefaults() Options {
	if o.MaxSegmentBytes <= 0 {
		o.MaxSegmentBytes = DefaultMaxSegmentBytes
	}
	if o.MaxPayloadBytes <= 0 {
		o.MaxPayloadBytes = DefaultMaxPayloadBytes
	}
	if o.FlushBatchSize <= 0 {
		o.FlushBatchSize = DefaultFlushBatchSize
	}
	if o.Flush == FlushBatched && o.FlushInterval <= 0 {
		o.FlushInterval = DefaultFlushInterval
	}
	if o.Storage == nil {
		o.Storage = OSStorage{}
	}
	if o.Logger == nil {
		o.Logger = logpkg.NewNopLogger()
	}
	if o.Metrics == nil {
		o.Metrics = NoopMetrics{}
	}
	return o
}
