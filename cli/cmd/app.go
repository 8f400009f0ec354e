package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbench/types"
)

// NewApp builds the docbench command tree.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "docbench",
		Usage:   "Benchmark client for the document indexing server",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Flags:   GlobalFlags(),
		Commands: []*cli.Command{
			UploadCommand(),
			SearchCommand(),
			DeleteCommand(),
			DownloadCommand(),
			StatusCommand(),
			LoadTestCommand(),
			ReportsCommand(),
			VersionCommand(commit),
		},
	}
}
