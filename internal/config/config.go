package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rzbill/backlog/internal/backlog"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	MaxSegmentBytes int64           `json:"maxSegmentBytes"`
	MaxPayloadBytes int             `json:"maxPayloadBytes"`
	Flush           FlushConfig     `json:"flush"`
	Trim            TrimConfig      `json:"trim"`
	Retention       RetentionConfig `json:"retention"`
	Cursor          CursorConfig    `json:"cursor"`
	Log             LogConfig       `json:"log"`
}

// FlushConfig selects the durability policy.
type FlushConfig struct {
	// Policy is one of "per-append", "batched" or "manual".
	Policy     string `json:"policy"`
	BatchSize  int    `json:"batchSize"`
	IntervalMs int    `json:"intervalMs"`
}

// TrimConfig selects when acknowledged segments are deleted.
type TrimConfig struct {
	// Mode is "on-ack" or "manual".
	Mode string `json:"mode"`
}

// RetentionConfig bounds unacknowledged data.
type RetentionConfig struct {
	// Policy is "until-acked" or "max-bytes".
	Policy   string `json:"policy"`
	MaxBytes int64  `json:"maxBytes"`
}

// CursorConfig selects the cursor backend.
type CursorConfig struct {
	// Backend is "file" (a cursor file in the backlog directory) or
	// "pebble" (a Pebble database next to the segments).
	Backend string `json:"backend"`
	// Name keys the cursor inside the pebble backend.
	Name string `json:"name"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

const (
	CursorBackendFile   = "file"
	CursorBackendPebble = "pebble"
)

// Default returns built-in defaults.
func Default() Config {
	return Config{
		MaxSegmentBytes: backlog.DefaultMaxSegmentBytes,
		MaxPayloadBytes: backlog.DefaultMaxPayloadBytes,
		Flush: FlushConfig{
			Policy:     "per-append",
			BatchSize:  backlog.DefaultFlushBatchSize,
			IntervalMs: int(backlog.DefaultFlushInterval / time.Millisecond),
		},
		Trim:      TrimConfig{Mode: "on-ack"},
		Retention: RetentionConfig{Policy: "until-acked"},
		Cursor:    CursorConfig{Backend: CursorBackendFile, Name: "default"},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a JSON file. If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return Config{}, errors.New("yaml config not supported; use JSON")
	}
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MaxSegmentBytes < 0 {
		return fmt.Errorf("maxSegmentBytes must not be negative")
	}
	if c.MaxPayloadBytes < 0 {
		return fmt.Errorf("maxPayloadBytes must not be negative")
	}
	if _, err := parseFlush(c.Flush.Policy); err != nil {
		return err
	}
	if c.Flush.BatchSize < 0 || c.Flush.IntervalMs < 0 {
		return fmt.Errorf("flush batchSize and intervalMs must not be negative")
	}
	if _, err := parseTrim(c.Trim.Mode); err != nil {
		return err
	}
	rp, err := parseRetention(c.Retention.Policy)
	if err != nil {
		return err
	}
	if rp == backlog.RetainMaxBytes && c.Retention.MaxBytes <= 0 {
		return fmt.Errorf("retention policy max-bytes needs a positive maxBytes")
	}
	switch c.Cursor.Backend {
	case "", CursorBackendFile, CursorBackendPebble:
	default:
		return fmt.Errorf("unknown cursor backend %q", c.Cursor.Backend)
	}
	return nil
}

// BacklogOptions translates c into backlog options. Storage, logger,
// metrics and cursor store are left for the caller to wire.
func (c Config) BacklogOptions() (backlog.Options, error) {
	if err := c.Validate(); err != nil {
		return backlog.Options{}, err
	}
	flush, _ := parseFlush(c.Flush.Policy)
	trim, _ := parseTrim(c.Trim.Mode)
	retention, _ := parseRetention(c.Retention.Policy)
	return backlog.Options{
		MaxSegmentBytes:   c.MaxSegmentBytes,
		MaxPayloadBytes:   c.MaxPayloadBytes,
		Flush:             flush,
		FlushBatchSize:    c.Flush.BatchSize,
		FlushInterval:     time.Duration(c.Flush.IntervalMs) * time.Millisecond,
		Trim:              trim,
		Retention:         retention,
		RetentionMaxBytes: c.Retention.MaxBytes,
	}, nil
}

func parseFlush(s string) (backlog.FlushPolicy, error) {
	switch strings.ToLower(s) {
	case "", "per-append":
		return backlog.FlushPerAppend, nil
	case "batched":
		return backlog.FlushBatched, nil
	case "manual":
		return backlog.FlushManual, nil
	}
	return 0, fmt.Errorf("unknown flush policy %q", s)
}

func parseTrim(s string) (backlog.TrimMode, error) {
	switch strings.ToLower(s) {
	case "", "on-ack":
		return backlog.TrimOnAck, nil
	case "manual":
		return backlog.TrimManual, nil
	}
	return 0, fmt.Errorf("unknown trim mode %q", s)
}

func parseRetention(s string) (backlog.RetentionPolicy, error) {
	switch strings.ToLower(s) {
	case "", "until-acked":
		return backlog.RetainUntilAcknowledged, nil
	case "max-bytes":
		return backlog.RetainMaxBytes, nil
	}
	return 0, fmt.Errorf("unknown retention policy %q", s)
}
