// Package config loads backlog configuration from a JSON file, overlays
// BACKLOG_* environment variables and translates the result into
// backlog.Options.
//
// Example:
//
//	cfg, err := config.Load("/etc/backlog.json")
//	if err != nil {
//	    return err
//	}
//	config.FromEnv(&cfg)
//	rt, _, err := runtime.Open(runtime.Options{DataDir: config.DefaultDataDir(), Config: cfg})
package config
