package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rzbill/backlog/internal/backlog"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.MaxSegmentBytes != backlog.DefaultMaxSegmentBytes {
		t.Fatalf("segment size default: %d", cfg.MaxSegmentBytes)
	}
	if cfg.Flush.Policy != "per-append" {
		t.Fatalf("flush policy default: %q", cfg.Flush.Policy)
	}
	if cfg.Cursor.Backend != CursorBackendFile {
		t.Fatalf("cursor backend default: %q", cfg.Cursor.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "backlog.json")
	data := []byte(`{"maxSegmentBytes":4096,"flush":{"policy":"batched","intervalMs":20},"retention":{"policy":"max-bytes","maxBytes":65536},"cursor":{"backend":"pebble"}}`)
	if err := os.WriteFile(file, data, 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxSegmentBytes != 4096 {
		t.Fatalf("expected 4096")
	}
	if cfg.Flush.BatchSize != backlog.DefaultFlushBatchSize {
		t.Fatalf("unset fields should keep defaults, got batch size %d", cfg.Flush.BatchSize)
	}
	if cfg.Cursor.Backend != CursorBackendPebble || cfg.Cursor.Name != "default" {
		t.Fatalf("cursor: %+v", cfg.Cursor)
	}

	opts, err := cfg.BacklogOptions()
	if err != nil {
		t.Fatalf("options: %v", err)
	}
	if opts.Flush != backlog.FlushBatched || opts.FlushInterval != 20*time.Millisecond {
		t.Fatalf("flush options: %v %v", opts.Flush, opts.FlushInterval)
	}
	if opts.Retention != backlog.RetainMaxBytes || opts.RetentionMaxBytes != 65536 {
		t.Fatalf("retention options: %v %d", opts.Retention, opts.RetentionMaxBytes)
	}
	if opts.Trim != backlog.TrimOnAck {
		t.Fatalf("trim default: %v", opts.Trim)
	}
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	if _, err := Load(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected parse error")
	}
	yml := filepath.Join(dir, "backlog.yaml")
	if err := os.WriteFile(yml, []byte("flush: {}"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(yml); err == nil {
		t.Fatalf("expected yaml to be rejected")
	}
	if cfg, err := Load(""); err != nil || cfg.Trim.Mode != "on-ack" {
		t.Fatalf("empty path should give defaults: %+v %v", cfg, err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative segment size", func(c *Config) { c.MaxSegmentBytes = -1 }},
		{"unknown flush policy", func(c *Config) { c.Flush.Policy = "sometimes" }},
		{"negative interval", func(c *Config) { c.Flush.IntervalMs = -5 }},
		{"unknown trim mode", func(c *Config) { c.Trim.Mode = "weekly" }},
		{"max-bytes without limit", func(c *Config) { c.Retention.Policy = "max-bytes" }},
		{"unknown cursor backend", func(c *Config) { c.Cursor.Backend = "redis" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
			if _, err := cfg.BacklogOptions(); err == nil {
				t.Fatalf("expected BacklogOptions to fail")
			}
		})
	}
}

func TestFromEnv(t *testing.T) {
	cfg := Default()
	t.Setenv("BACKLOG_FLUSH_POLICY", "manual")
	t.Setenv("BACKLOG_MAX_SEGMENT_BYTES", "8192")
	t.Setenv("BACKLOG_TRIM_MODE", "manual")
	t.Setenv("BACKLOG_CURSOR_BACKEND", "pebble")
	t.Setenv("BACKLOG_LOG_LEVEL", "debug")
	t.Setenv("BACKLOG_FLUSH_BATCH_SIZE", "not-a-number")
	FromEnv(&cfg)
	if cfg.Flush.Policy != "manual" {
		t.Fatalf("env override flush")
	}
	if cfg.MaxSegmentBytes != 8192 {
		t.Fatalf("env override segment size")
	}
	if cfg.Trim.Mode != "manual" || cfg.Cursor.Backend != "pebble" || cfg.Log.Level != "debug" {
		t.Fatalf("env overrides: %+v", cfg)
	}
	if cfg.Flush.BatchSize != backlog.DefaultFlushBatchSize {
		t.Fatalf("malformed numbers should be ignored")
	}
}
