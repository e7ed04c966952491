package backlog

import "time"

// MetricsHook observes backlog activity. Implementations must be safe for
// concurrent use.
type MetricsHook interface {
	ObserveAppend(elapsed time.Duration, frames int, bytes int)
	ObserveSync(elapsed time.Duration, err error)
	ObserveRotate(segmentID uint64)
	ObserveTrim(segments int, bytes int64)
	ObserveLoss(reason BoundaryReason, frames int64, bytes int64)
}

// NoopMetrics is used when no metrics hook is provided.
type NoopMetrics struct{}

func (NoopMetrics) ObserveAppend(time.Duration, int, int)    {}
func (NoopMetrics) ObserveSync(time.Duration, error)         {}
func (NoopMetrics) ObserveRotate(uint64)                     {}
func (NoopMetrics) ObserveTrim(int, int64)                   {}
func (NoopMetrics) ObserveLoss(BoundaryReason, int64, int64) {}
