package log

import (
	"fmt"
	"strings"
)

// Config declares how to build a logger.
type Config struct {
	Level  string `json:"level"`
	Format string `json:"format"` // text|json
	// Outputs defaults to a single console output.
	Outputs    []OutputConfig  `json:"outputs,omitempty"`
	ShowCaller bool            `json:"showCaller,omitempty"`
	RedactKeys []string        `json:"redactKeys,omitempty"`
	Sampling   *SamplingConfig `json:"sampling,omitempty"`
}

// OutputConfig selects one output.
type OutputConfig struct {
	Type string `json:"type"` // console|file|null
	Path string `json:"path,omitempty"`
}

// SamplingConfig passes the first Initial entries of each message, then every
// Thereafter-th.
type SamplingConfig struct {
	Initial    int `json:"initial"`
	Thereafter int `json:"thereafter"`
}

// ApplyConfig builds a logger from cfg. A nil cfg yields an INFO text logger
// on stderr.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		formatter = &TextFormatter{ShowCaller: cfg.ShowCaller}
	case "json":
		formatter = &JSONFormatter{ShowCaller: cfg.ShowCaller}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	opts := []LoggerOption{WithLevel(level), WithFormatter(formatter)}
	for _, oc := range cfg.Outputs {
		switch strings.ToLower(oc.Type) {
		case "", "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case "file":
			if oc.Path == "" {
				return nil, fmt.Errorf("file output requires a path")
			}
			fo, err := NewFileOutput(oc.Path)
			if err != nil {
				return nil, err
			}
			opts = append(opts, WithOutput(fo))
		case "null":
			opts = append(opts, WithOutput(NewNullOutput()))
		default:
			return nil, fmt.Errorf("unknown log output %q", oc.Type)
		}
	}

	logger := NewLogger(opts...).(*BaseLogger)
	h := logger.handler.withRedactions(cfg.RedactKeys)
	if cfg.Sampling != nil {
		h = h.withSampler(cfg.Sampling.Initial, cfg.Sampling.Thereafter)
	}
	logger.handler = h
	return logger, nil
}
