package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

func newBufLogger(level Level, f Formatter) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := NewLogger(WithLevel(level), WithFormatter(f), WithOutput(NewWriterOutput(&buf)))
	return l, &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{"": InfoLevel, "debug": DebugLevel, "INFO": InfoLevel, "warning": WarnLevel, "error": ErrorLevel}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestTextFormatterFields(t *testing.T) {
	l, buf := newBufLogger(DebugLevel, &TextFormatter{DisableTimestamp: true})
	l.With(Component("backlog")).Info("opened", Str("dir", "/tmp/a b"), Int("segments", 3), Err(errors.New("boom")))
	got := buf.String()
	want := `INFO  [backlog] opened dir="/tmp/a b" error=boom segments=3` + "\n"
	if got != want {
		t.Fatalf("text output\n got %q\nwant %q", got, want)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newBufLogger(WarnLevel, &TextFormatter{DisableTimestamp: true})
	l.Debug("d")
	l.Info("i")
	l.Warn("w")
	if got := strings.Count(buf.String(), "\n"); got != 1 {
		t.Fatalf("want 1 line, got %d: %q", got, buf.String())
	}
	l.SetLevel(DebugLevel)
	l.Debug("d")
	if !strings.Contains(buf.String(), "DEBUG d") {
		t.Fatalf("expected debug line after SetLevel, got %q", buf.String())
	}
}

func TestJSONFormatter(t *testing.T) {
	l, buf := newBufLogger(InfoLevel, &JSONFormatter{})
	l.WithField("seq", uint64(7)).Warn("lost", Duration("took", 2*time.Second))
	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, buf.String())
	}
	if m["level"] != "warn" || m["msg"] != "lost" || m["took"] != "2s" || m["seq"] != float64(7) {
		t.Fatalf("unexpected entry: %v", m)
	}
}

func TestWithDoesNotLeakIntoParent(t *testing.T) {
	l, buf := newBufLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	child := l.With(Str("k", "v"))
	l.Info("parent")
	child.Info("child")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || strings.Contains(lines[0], "k=v") || !strings.Contains(lines[1], "k=v") {
		t.Fatalf("unexpected lines: %q", lines)
	}
}

func TestApplyConfigRedactsAndSamples(t *testing.T) {
	l, err := ApplyConfig(&Config{Level: "info", Format: "text", Outputs: []OutputConfig{{Type: "null"}}, RedactKeys: []string{"token"}, Sampling: &SamplingConfig{Initial: 1, Thereafter: 2}})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	var buf bytes.Buffer
	bl := l.(*BaseLogger)
	bl.outputs = []Output{NewWriterOutput(&buf)}
	bl.formatter = &TextFormatter{DisableTimestamp: true}
	for i := 0; i < 4; i++ {
		l.Info("tick", Str("token", "secret"))
	}
	out := buf.String()
	if strings.Contains(out, "secret") {
		t.Fatalf("token not redacted: %q", out)
	}
	// initial=1 then every 2nd: entries 0, 1, 3
	if got := strings.Count(out, "tick"); got != 3 {
		t.Fatalf("want 3 sampled entries, got %d: %q", got, out)
	}
}

func TestApplyConfigRejectsUnknownFormat(t *testing.T) {
	if _, err := ApplyConfig(&Config{Format: "xml"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestToStdLogger(t *testing.T) {
	l, buf := newBufLogger(InfoLevel, &TextFormatter{DisableTimestamp: true})
	std := ToStdLogger(l, WarnLevel)
	std.Print("from pebble")
	if got := buf.String(); got != "WARN  from pebble\n" {
		t.Fatalf("got %q", got)
	}
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	l.With(Str("a", "b")).WithComponent("x").Info("ignored")
	if l.GetLevel() != FatalLevel {
		t.Fatalf("nop logger level: %v", l.GetLevel())
	}
}
