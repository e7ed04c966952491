// Package metrics exports backlog and cursor-store activity as Prometheus
// metrics. A Prometheus value satisfies both backlog.MetricsHook and
// pebblestore.MetricsHook.
//
//	reg := prometheus.NewRegistry()
//	m := metrics.NewPrometheus(reg)
//	b, _, err := backlog.Open(dir, backlog.Options{Metrics: m})
package metrics
