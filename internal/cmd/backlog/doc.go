// Package backlogcmd contains the Cobra commands of the backlog CLI. Every
// command opens the backlog directory given by --dir, runs recovery, does its
// work and closes the backlog again.
package backlogcmd
