package backlogcmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rzbill/backlog/internal/backlog"
)

func run(t *testing.T, stdin io.Reader, args ...string) (string, error) {
	t.Helper()
	root := NewRoot()
	out := &bytes.Buffer{}
	root.SetOut(out)
	root.SetErr(io.Discard)
	if stdin != nil {
		root.SetIn(stdin)
	}
	root.SetArgs(append([]string{"--log-level", "error"}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, nil, args...)
	if err != nil {
		t.Fatalf("%v: %v", args, err)
	}
	return out
}

func dumpLines(t *testing.T, out string) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		frames = append(frames, m)
	}
	return frames
}

func TestAppendAndDump(t *testing.T) {
	dir := t.TempDir()
	out := mustRun(t, "--dir", dir, "append", "--data", "a", "--data", "b")
	if !strings.Contains(out, "appended: 2 (seq 1..2)") {
		t.Fatalf("unexpected append output: %s", out)
	}

	frames := dumpLines(t, mustRun(t, "--dir", dir, "dump"))
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if frames[0]["seq"] != float64(1) || frames[0]["payload_text"] != "a" {
		t.Fatalf("unexpected first frame: %v", frames[0])
	}

	frames = dumpLines(t, mustRun(t, "--dir", dir, "dump", "--from", "2"))
	if len(frames) != 1 || frames[0]["payload_text"] != "b" {
		t.Fatalf("dump --from 2: %v", frames)
	}
	frames = dumpLines(t, mustRun(t, "--dir", dir, "dump", "--limit", "1"))
	if len(frames) != 1 || frames[0]["seq"] != float64(1) {
		t.Fatalf("dump --limit 1: %v", frames)
	}
}

func TestAppendFromStdin(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, strings.NewReader("x\ny\n{\"k\":1}\n"), "--dir", dir, "append")
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !strings.Contains(out, "appended: 3 (seq 1..3)") {
		t.Fatalf("unexpected output: %s", out)
	}
	frames := dumpLines(t, mustRun(t, "--dir", dir, "dump"))
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	obj, ok := frames[2]["payload_json"].(map[string]any)
	if !ok || obj["k"] != float64(1) {
		t.Fatalf("expected JSON payload, got %v", frames[2])
	}
}

func TestAckAndStats(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "--dir", dir, "append", "--data", "a", "--data", "b", "--data", "c")
	if out := mustRun(t, "--dir", dir, "ack", "2"); !strings.Contains(out, "cursor: 2") {
		t.Fatalf("ack output: %s", out)
	}
	out := mustRun(t, "--dir", dir, "stats", "--segments")
	for _, want := range []string{"segments: 1", "last_seq: 3", "cursor: 2", "unacked: 1", "active"} {
		if !strings.Contains(out, want) {
			t.Fatalf("stats missing %q:\n%s", want, out)
		}
	}
	frames := dumpLines(t, mustRun(t, "--dir", dir, "dump", "--unacked"))
	if len(frames) != 1 || frames[0]["payload_text"] != "c" {
		t.Fatalf("dump --unacked: %v", frames)
	}
}

func TestAckErrors(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "--dir", dir, "append", "--data", "a")
	if _, err := run(t, nil, "--dir", dir, "ack", "5"); !errors.Is(err, backlog.ErrAckOutOfRange) {
		t.Fatalf("expected ErrAckOutOfRange, got %v", err)
	}
	if _, err := run(t, nil, "--dir", dir, "ack", "nope"); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := run(t, nil, "--dir", dir, "ack"); err == nil {
		t.Fatalf("expected missing argument error")
	}
}

func TestRecoverReportsTornTail(t *testing.T) {
	dir := t.TempDir()
	mustRun(t, "--dir", dir, "append", "--data", "a", "--data", "b", "--data", "c")
	if out := mustRun(t, "--dir", dir, "recover"); !strings.Contains(out, "status: clean") {
		t.Fatalf("expected clean recovery: %s", out)
	}

	segs, err := filepath.Glob(filepath.Join(dir, "*.seg"))
	if err != nil || len(segs) != 1 {
		t.Fatalf("segments: %v %v", segs, err)
	}
	info, err := os.Stat(segs[0])
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if err := os.Truncate(segs[0], info.Size()-3); err != nil {
		t.Fatalf("truncate: %v", err)
	}

	out := mustRun(t, "--dir", dir, "recover", "--json")
	var report struct {
		Frames int64 `json:"frames"`
		Losses []struct {
			FirstSeq uint64 `json:"first_seq"`
			Reason   string `json:"reason"`
		} `json:"losses"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report: %v\n%s", err, out)
	}
	if report.Frames != 1 || len(report.Losses) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if report.Losses[0].FirstSeq != 3 || report.Losses[0].Reason != "torn-tail" {
		t.Fatalf("unexpected loss: %+v", report.Losses[0])
	}
	if out := mustRun(t, "--dir", dir, "recover"); !strings.Contains(out, "last_seq: 2") {
		t.Fatalf("expected last_seq 2 after repair: %s", out)
	}
}

func TestTrimWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(t.TempDir(), "backlog.json")
	// Header 20 bytes plus two 28-byte frames crosses 64 bytes. Rotation is
	// checked before each append call, so append one frame per call.
	if err := os.WriteFile(cfgFile, []byte(`{"maxSegmentBytes":64,"trim":{"mode":"manual"}}`), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	args := []string{"--dir", dir, "--config", cfgFile}
	for i := 0; i < 6; i++ {
		mustRun(t, append(args, "append", "--data", "0123456789")...)
	}
	if out := mustRun(t, append(args, "stats")...); !strings.Contains(out, "segments: 3") {
		t.Fatalf("expected 3 segments:\n%s", out)
	}
	mustRun(t, append(args, "ack", "4")...)
	out := mustRun(t, append(args, "trim")...)
	if !strings.Contains(out, "trimmed: 2 segments, 152 B (up to seq 4)") {
		t.Fatalf("unexpected trim output: %s", out)
	}
	if out := mustRun(t, append(args, "stats")...); !strings.Contains(out, "segments: 1") {
		t.Fatalf("expected 1 segment after trim:\n%s", out)
	}
}

func TestMetricsFlag(t *testing.T) {
	dir := t.TempDir()
	out := mustRun(t, "--dir", dir, "--metrics", "append", "--data", "a", "--data", "b")
	if !strings.Contains(out, "backlog_append_frames_total 2") {
		t.Fatalf("expected append counter in output:\n%s", out)
	}
	if !strings.Contains(out, "backlog_sync_duration_seconds_count 1") {
		t.Fatalf("expected sync histogram in output:\n%s", out)
	}
}

func TestDecodedFrame(t *testing.T) {
	tests := []struct {
		name    string
		payload []byte
		key     string
	}{
		{"json object", []byte(`{"a":1}`), "payload_json"},
		{"broken json", []byte(`{"a":`), "payload_text"},
		{"text", []byte("hello"), "payload_text"},
		{"binary", []byte{0xff, 0xfe, 0x00}, "payload_b64"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := decodedFrame(7, tt.payload)
			if _, ok := m[tt.key]; !ok {
				t.Fatalf("expected %s in %v", tt.key, m)
			}
			if m["seq"] != uint64(7) {
				t.Fatalf("seq: %v", m["seq"])
			}
		})
	}
}
