package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rzbill/backlog/internal/backlog"
	pebblestore "github.com/rzbill/backlog/internal/storage/pebble"
)

func TestObservations(t *testing.T) {
	p := NewPrometheus(nil)
	p.ObserveAppend(time.Millisecond, 3, 120)
	p.ObserveAppend(time.Millisecond, 1, 40)
	p.ObserveSync(time.Millisecond, nil)
	p.ObserveSync(time.Millisecond, errors.New("disk"))
	p.ObserveRotate(7)
	p.ObserveTrim(2, 4096)
	p.ObserveLoss(backlog.ReasonTornTail, 1, 28)
	p.ObserveLoss(backlog.ReasonRetention, 5, 500)

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"append frames", p.appendFrames, 4},
		{"append bytes", p.appendBytes, 160},
		{"sync errors", p.syncErrors, 1},
		{"rotations", p.rotations, 1},
		{"active segment", p.activeSeg, 7},
		{"trim segments", p.trimSegments, 2},
		{"trim bytes", p.trimBytes, 4096},
		{"torn tail frames", p.lossFrames.WithLabelValues("torn-tail"), 1},
		{"retention bytes", p.lossBytes.WithLabelValues("retention"), 500},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Fatalf("%s: got %v want %v", c.name, got, c.want)
		}
	}
	if n := testutil.CollectAndCount(p.syncDuration); n != 1 {
		t.Fatalf("sync histogram series: %d", n)
	}
}

func TestRegisterTwiceFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewPrometheus(reg)
	defer func() {
		if recover() == nil {
			t.Fatalf("expected duplicate registration to panic")
		}
	}()
	NewPrometheus(reg)
}

func TestBacklogDrivesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)
	opts := backlog.Options{
		MaxSegmentBytes: backlog.SegmentHeaderSize + 3*backlog.FrameSize(10),
		Trim:            backlog.TrimManual,
		Metrics:         p,
	}
	b, _, err := backlog.Open(t.TempDir(), opts)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	for i := 1; i <= 9; i++ {
		if _, err := b.Append(ctx, []byte(fmt.Sprintf("payload-%02d", i))); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if err := b.Acknowledge(6); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if _, err := b.Trim(ctx); err != nil {
		t.Fatalf("trim: %v", err)
	}

	if got := testutil.ToFloat64(p.appendFrames); got != 9 {
		t.Fatalf("append frames: %v", got)
	}
	if got := testutil.ToFloat64(p.rotations); got != 2 {
		t.Fatalf("rotations: %v", got)
	}
	if got := testutil.ToFloat64(p.trimSegments); got != 2 {
		t.Fatalf("trimmed segments: %v", got)
	}
	if got := testutil.ToFloat64(p.activeSeg); got != 3 {
		t.Fatalf("active segment: %v", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	seen := map[string]bool{}
	for _, mf := range families {
		seen[mf.GetName()] = true
	}
	for _, name := range []string{"backlog_append_frames_total", "backlog_sync_duration_seconds", "backlog_trimmed_bytes_total"} {
		if !seen[name] {
			t.Fatalf("missing metric family %s", name)
		}
	}
}

func TestCursorStoreMetrics(t *testing.T) {
	p := NewPrometheus(nil)
	cs, err := pebblestore.OpenCursorStore(pebblestore.Options{DataDir: t.TempDir(), Metrics: p}, "default")
	if err != nil {
		t.Fatalf("open cursor store: %v", err)
	}
	defer cs.Close()
	if err := cs.Store(42); err != nil {
		t.Fatalf("store: %v", err)
	}
	if v, err := cs.Load(); err != nil || v != 42 {
		t.Fatalf("load: %v %v", v, err)
	}
	if got := testutil.ToFloat64(p.storeOps.WithLabelValues("write")); got != 1 {
		t.Fatalf("write ops: %v", got)
	}
	if got := testutil.ToFloat64(p.storeOps.WithLabelValues("commit")); got != 1 {
		t.Fatalf("commit ops: %v", got)
	}
	if got := testutil.ToFloat64(p.storeOps.WithLabelValues("read")); got != 1 {
		t.Fatalf("read ops: %v", got)
	}
}
