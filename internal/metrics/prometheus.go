package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rzbill/backlog/internal/backlog"
	pebblestore "github.com/rzbill/backlog/internal/storage/pebble"
)

const namespace = "backlog"

var (
	_ backlog.MetricsHook     = (*Prometheus)(nil)
	_ pebblestore.MetricsHook = (*Prometheus)(nil)
)

// Prometheus records observations into client_golang collectors.
type Prometheus struct {
	appendFrames   prometheus.Counter
	appendBytes    prometheus.Counter
	appendDuration prometheus.Histogram

	syncDuration prometheus.Histogram
	syncErrors   prometheus.Counter

	rotations    prometheus.Counter
	activeSeg    prometheus.Gauge
	trimSegments prometheus.Counter
	trimBytes    prometheus.Counter

	lossFrames *prometheus.CounterVec
	lossBytes  *prometheus.CounterVec

	storeOps      *prometheus.CounterVec
	storeBytes    *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		appendFrames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_frames_total",
			Help:      "Frames appended.",
		}),
		appendBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_bytes_total",
			Help:      "Encoded frame bytes appended.",
		}),
		appendDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_duration_seconds",
			Help:      "Append call latency, including any sync.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Segment fsync latency.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 16),
		}),
		syncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_errors_total",
			Help:      "Failed segment fsyncs.",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segment_rotations_total",
			Help:      "Segments created by rotation.",
		}),
		activeSeg: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_segment_id",
			Help:      "Id of the segment receiving appends.",
		}),
		trimSegments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trimmed_segments_total",
			Help:      "Segments deleted by trim or retention.",
		}),
		trimBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trimmed_bytes_total",
			Help:      "Bytes deleted by trim or retention.",
		}),
		lossFrames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_frames_total",
			Help:      "Frames discarded by recovery or evicted by retention.",
		}, []string{"reason"}),
		lossBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_bytes_total",
			Help:      "Bytes discarded by recovery or evicted by retention.",
		}, []string{"reason"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cursor_store",
			Name:      "ops_total",
			Help:      "Cursor store operations.",
		}, []string{"op"}),
		storeBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cursor_store",
			Name:      "bytes_total",
			Help:      "Cursor store bytes read or written.",
		}, []string{"op"}),
		storeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cursor_store",
			Name:      "duration_seconds",
			Help:      "Cursor store operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(p.collectors()...)
	}
	return p
}

func (p *Prometheus) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		p.appendFrames, p.appendBytes, p.appendDuration,
		p.syncDuration, p.syncErrors,
		p.rotations, p.activeSeg, p.trimSegments, p.trimBytes,
		p.lossFrames, p.lossBytes,
		p.storeOps, p.storeBytes, p.storeDuration,
	}
}

func (p *Prometheus) ObserveAppend(elapsed time.Duration, frames int, bytes int) {
	p.appendFrames.Add(float64(frames))
	p.appendBytes.Add(float64(bytes))
	p.appendDuration.Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveSync(elapsed time.Duration, err error) {
	if err != nil {
		p.syncErrors.Inc()
		return
	}
	p.syncDuration.Observe(elapsed.Seconds())
}

func (p *Prometheus) ObserveRotate(segmentID uint64) {
	p.rotations.Inc()
	p.activeSeg.Set(float64(segmentID))
}

func (p *Prometheus) ObserveTrim(segments int, bytes int64) {
	p.trimSegments.Add(float64(segments))
	p.trimBytes.Add(float64(bytes))
}

func (p *Prometheus) ObserveLoss(reason backlog.BoundaryReason, frames int64, bytes int64) {
	r := reason.String()
	p.lossFrames.WithLabelValues(r).Add(float64(frames))
	p.lossBytes.WithLabelValues(r).Add(float64(bytes))
}

func (p *Prometheus) ObserveWrite(elapsed time.Duration, bytes int) {
	p.observeStore("write", elapsed, bytes)
}

func (p *Prometheus) ObserveRead(elapsed time.Duration, bytes int) {
	p.observeStore("read", elapsed, bytes)
}

// ObserveBatchCommit counts one commit regardless of how many keys it carried.
func (p *Prometheus) ObserveBatchCommit(elapsed time.Duration, _ int, bytes int) {
	p.observeStore("commit", elapsed, bytes)
}

func (p *Prometheus) observeStore(op string, elapsed time.Duration, bytes int) {
	p.storeOps.WithLabelValues(op).Inc()
	p.storeBytes.WithLabelValues(op).Add(float64(bytes))
	p.storeDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
