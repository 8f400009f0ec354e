// Package cmd provides CLI commands for the docbench binary.
package cmd

import "github.com/urfave/cli/v2"

// Global flags shared by every command.
var (
	// ConfigFlag points at a docbench.yaml file.
	ConfigFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to config file (default: ./docbench.yaml if present)",
		EnvVars: []string{"DOCBENCH_CONFIG"},
	}

	// HostFlag overrides the server host.
	HostFlag = &cli.StringFlag{
		Name:    "host",
		Usage:   "Document server host",
		EnvVars: []string{"DOCBENCH_HOST"},
	}

	// PortFlag overrides the server port.
	PortFlag = &cli.IntFlag{
		Name:    "port",
		Aliases: []string{"p"},
		Usage:   "Document server port",
		EnvVars: []string{"DOCBENCH_PORT"},
	}

	// LogLevelFlag sets the minimum log level written to stderr.
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "Log level: debug, info, warn, error",
		Value:   "info",
		EnvVars: []string{"DOCBENCH_LOG_LEVEL"},
	}
)

// Shared flags for commands that render results.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// NoColorFlag disables colored output.
	NoColorFlag = &cli.BoolFlag{
		Name:  "no-color",
		Usage: "Disable colored output",
	}
)

// GlobalFlags returns the flags accepted before any command name.
func GlobalFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		HostFlag,
		PortFlag,
		LogLevelFlag,
	}
}

// OutputFlags returns the rendering flags for commands that print results.
func OutputFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		NoColorFlag,
	}
}

// withOutputFlags appends the rendering flags to flags.
func withOutputFlags(flags ...cli.Flag) []cli.Flag {
	return append(flags, OutputFlags()...)
}
