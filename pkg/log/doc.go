// Package log provides the structured logging facade used across backlog.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// simple Field type for structured context. Internally it is backed by Go's
// log/slog via a bridge handler that feeds a formatter/outputs pipeline, so
// slog-based code and the facade produce identical output.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("backlog"), log.Str("dir", "/var/lib/backlog"))
//	l.Info("backlog opened", log.Int("segments", 3))
//
// # Configuration
//
// ApplyConfig builds a logger from a declarative Config: text or JSON
// formatting, console/file/null outputs, key redaction and sampling.
//
// # Interop
//
// RedirectStdLog routes the standard library logger (Pebble's default) through
// a Logger; ToStdLogger returns a *log.Logger for APIs that want one, and
// (*BaseLogger).Slog exposes a *slog.Logger.
package log
