package runtime

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rzbill/backlog/internal/backlog"
	cfgpkg "github.com/rzbill/backlog/internal/config"
	"github.com/rzbill/backlog/internal/metrics"
	pebblestore "github.com/rzbill/backlog/internal/storage/pebble"
	logpkg "github.com/rzbill/backlog/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir string
	Config  cfgpkg.Config
	// Logger defaults to one built from Config.Log.
	Logger logpkg.Logger
	// Registry receives the backlog metrics. Nil disables metrics.
	Registry prometheus.Registerer
	// OnLoss is forwarded to the backlog.
	OnLoss func(backlog.Loss)
}

// Runtime owns an open backlog and the resources wired around it.
type Runtime struct {
	backlog *backlog.Backlog
	config  cfgpkg.Config
	logger  logpkg.Logger
	metrics *metrics.Prometheus
	dataDir string
}

// Open validates the configuration, opens the cursor backend and the backlog.
// The loss report is the one recovery produced.
func Open(opts Options) (*Runtime, backlog.LossReport, error) {
	if opts.DataDir == "" {
		return nil, backlog.LossReport{}, errors.New("runtime: Options.DataDir is required")
	}
	cfg := opts.Config
	bopts, err := cfg.BacklogOptions()
	if err != nil {
		return nil, backlog.LossReport{}, fmt.Errorf("invalid config: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logpkg.ApplyConfig(&logpkg.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
		if err != nil {
			return nil, backlog.LossReport{}, fmt.Errorf("logger: %w", err)
		}
	}

	rt := &Runtime{config: cfg, logger: logger, dataDir: opts.DataDir}
	bopts.Logger = logger
	bopts.OnLoss = opts.OnLoss
	if opts.Registry != nil {
		rt.metrics = metrics.NewPrometheus(opts.Registry)
		bopts.Metrics = rt.metrics
	}

	if cfg.Cursor.Backend == cfgpkg.CursorBackendPebble {
		popts := pebblestore.Options{DataDir: cfgpkg.CursorDBDir(opts.DataDir), Fsync: pebblestore.FsyncModeAlways}
		if rt.metrics != nil {
			popts.Metrics = rt.metrics
		}
		name := cfg.Cursor.Name
		if name == "" {
			name = "default"
		}
		cs, err := pebblestore.OpenCursorStore(popts, name)
		if err != nil {
			return nil, backlog.LossReport{}, err
		}
		bopts.CursorStore = cs
	}

	b, report, err := backlog.Open(opts.DataDir, bopts)
	if err != nil {
		return nil, report, err
	}
	rt.backlog = b
	logger.Debug("runtime ready",
		logpkg.Str("dir", opts.DataDir),
		logpkg.Str("cursor_backend", cursorBackend(cfg)))
	return rt, report, nil
}

func cursorBackend(cfg cfgpkg.Config) string {
	if cfg.Cursor.Backend == "" {
		return cfgpkg.CursorBackendFile
	}
	return cfg.Cursor.Backend
}

// Close closes the backlog and its cursor backend.
func (r *Runtime) Close() error {
	if r.backlog == nil {
		return nil
	}
	return r.backlog.Close()
}

// CheckHealth reports whether the backlog is still usable.
func (r *Runtime) CheckHealth() error {
	if r.backlog == nil {
		return errors.New("backlog not open")
	}
	return r.backlog.Health()
}

// Backlog returns the open backlog.
func (r *Runtime) Backlog() *backlog.Backlog { return r.backlog }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }

// Logger returns the logger the backlog writes to.
func (r *Runtime) Logger() logpkg.Logger { return r.logger }

// DataDir returns the backlog directory.
func (r *Runtime) DataDir() string { return r.dataDir }
