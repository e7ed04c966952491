package config

import (
	"os"
	"strconv"
)

// FromEnv overlays BACKLOG_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	if v := os.Getenv("BACKLOG_MAX_SEGMENT_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MaxSegmentBytes = n
		}
	}
	if v := os.Getenv("BACKLOG_MAX_PAYLOAD_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxPayloadBytes = n
		}
	}
	if v := os.Getenv("BACKLOG_FLUSH_POLICY"); v != "" {
		cfg.Flush.Policy = v
	}
	if v := os.Getenv("BACKLOG_FLUSH_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Flush.BatchSize = n
		}
	}
	if v := os.Getenv("BACKLOG_FLUSH_INTERVAL_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Flush.IntervalMs = n
		}
	}
	if v := os.Getenv("BACKLOG_TRIM_MODE"); v != "" {
		cfg.Trim.Mode = v
	}
	if v := os.Getenv("BACKLOG_RETENTION_POLICY"); v != "" {
		cfg.Retention.Policy = v
	}
	if v := os.Getenv("BACKLOG_RETENTION_MAX_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Retention.MaxBytes = n
		}
	}
	if v := os.Getenv("BACKLOG_CURSOR_BACKEND"); v != "" {
		cfg.Cursor.Backend = v
	}
	if v := os.Getenv("BACKLOG_CURSOR_NAME"); v != "" {
		cfg.Cursor.Name = v
	}
	if v := os.Getenv("BACKLOG_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("BACKLOG_LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
}
