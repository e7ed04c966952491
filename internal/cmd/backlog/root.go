package backlogcmd

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rzbill/backlog/internal/backlog"
	cfgpkg "github.com/rzbill/backlog/internal/config"
	"github.com/rzbill/backlog/internal/runtime"
	logpkg "github.com/rzbill/backlog/pkg/log"
	"github.com/spf13/cobra"
)

// NewRoot constructs the root command with every subcommand registered.
func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "backlog",
		Short:         "Inspect and operate a durable local backlog",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.String("dir", "", "Backlog directory (defaults to the OS application data directory)")
	pf.String("config", "", "JSON config file")
	pf.String("log-level", "", "Log level: debug|info|warn|error (overrides config)")
	pf.String("log-format", "", "Log format: text|json (overrides config)")
	pf.Bool("metrics", false, "Print collected metrics after the command")

	root.AddCommand(
		newRecoverCommand(),
		newAppendCommand(),
		newDumpCommand(),
		newAckCommand(),
		newTrimCommand(),
		newStatsCommand(),
	)
	return root
}

// session is what a subcommand gets to work with.
type session struct {
	rt     *runtime.Runtime
	report backlog.LossReport
	out    io.Writer
}

func (s *session) backlog() *backlog.Backlog { return s.rt.Backlog() }

// withBacklog opens the backlog configured by the persistent flags, runs fn
// and closes it. The backlog is closed before metrics are printed so the
// counters include the final flush.
func withBacklog(cmd *cobra.Command, fn func(*session) error) error {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	cfgPath, _ := flags.GetString("config")
	level, _ := flags.GetString("log-level")
	format, _ := flags.GetString("log-format")
	withMetrics, _ := flags.GetBool("metrics")

	cfg, err := cfgpkg.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfgpkg.FromEnv(&cfg)
	if level != "" {
		cfg.Log.Level = level
	}
	if format != "" {
		cfg.Log.Format = format
	}
	if dir == "" {
		dir = cfgpkg.DefaultDataDir()
	}

	logger, err := newLogger(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	var reg *prometheus.Registry
	opts := runtime.Options{DataDir: dir, Config: cfg, Logger: logger}
	if withMetrics {
		reg = prometheus.NewRegistry()
		opts.Registry = reg
	}

	rt, report, err := runtime.Open(opts)
	if err != nil {
		return err
	}
	s := &session{rt: rt, report: report, out: cmd.OutOrStdout()}
	runErr := fn(s)
	if err := rt.Close(); err != nil && runErr == nil {
		runErr = err
	}
	if runErr != nil || reg == nil {
		return runErr
	}
	families, err := reg.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	return printFamilies(s.out, families)
}

func newLogger(cfg cfgpkg.LogConfig, w io.Writer) (logpkg.Logger, error) {
	level := logpkg.WarnLevel
	if cfg.Level != "" {
		l, err := logpkg.ParseLevel(cfg.Level)
		if err != nil {
			return nil, err
		}
		level = l
	}
	var formatter logpkg.Formatter = &logpkg.TextFormatter{}
	switch cfg.Format {
	case "", "text":
	case "json":
		formatter = &logpkg.JSONFormatter{}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	return logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(formatter),
		logpkg.WithOutput(logpkg.NewWriterOutput(w)),
	), nil
}
