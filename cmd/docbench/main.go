// Package main provides the docbench CLI entrypoint.
//
// Usage:
//
//	docbench [global options] <command> [options]
//
// Exit codes:
//   - 0: command succeeded, or load test finished success/degraded
//   - 1: anything else
package main

import (
	"os"

	"github.com/pithecene-io/docbench/cli/cmd"
)

// Commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	app := cmd.NewApp(commit)
	app.ExitErrHandler = cmd.ExitErrHandler(os.Stderr, os.Exit)

	if err := app.Run(os.Args); err != nil {
		// ExitErrHandler already exited for command errors. This covers
		// flag parsing failures reported before any action ran.
		os.Exit(1)
	}
}
