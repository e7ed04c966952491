package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	backlogcmd "github.com/rzbill/backlog/internal/cmd/backlog"
	logpkg "github.com/rzbill/backlog/pkg/log"
)

func main() {
	// Pebble logs through the standard library logger; route it through ours.
	// BACKLOG_LOG_LEVEL is honored here as well as by the commands.
	level, err := logpkg.ParseLevel(os.Getenv("BACKLOG_LOG_LEVEL"))
	if err != nil || os.Getenv("BACKLOG_LOG_LEVEL") == "" {
		level = logpkg.WarnLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(level),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := backlogcmd.NewRoot().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}
