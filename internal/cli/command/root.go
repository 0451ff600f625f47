// Package command provides CLI command definitions for gridmesh-cli.
//
// It uses urfave/cli/v2 for command parsing.
package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:    "gridmesh-cli",
		Usage:   "GridMesh cluster communication tool",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildTime),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			PingCommand(),
			ForwardCommand(),
			ControllerCommand(),
			EndpointsCommand(),
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to configuration file",
			EnvVars: []string{"GRIDMESH_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json",
			Value:   "table",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "Per-operation timeout (0 uses the configured default)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable verbose logging",
		},
	}
}

// GlobalFlags holds parsed global flags.
type GlobalFlags struct {
	Config  string
	Output  string
	Timeout time.Duration
	Verbose bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Config:  c.String("config"),
		Output:  c.String("output"),
		Timeout: c.Duration("timeout"),
		Verbose: c.Bool("verbose"),
	}
}
