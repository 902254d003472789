package main

import (
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/standardbeagle/redefine/internal/debug"
	"github.com/standardbeagle/redefine/internal/version"
)

func main() {
	// A missing .env is fine
	_ = godotenv.Load()

	if err := newApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:                   "redefine",
		Usage:                  "Reconcile recompiled JVM class files with the classes already loaded",
		Version:                version.FullInfo(),
		UseShortOptionHandling: true,
		Writer:                 stdout,
		ErrWriter:              stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Config file path (.kdl or .toml); default looks for .redefine.kdl then .redefine.toml in the root",
				EnvVars: []string{"REDEFINE_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Project root directory (overrides config)",
				EnvVars: []string{"REDEFINE_ROOT"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level: debug, info, warn, error (overrides config)",
				EnvVars: []string{"REDEFINE_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:    "debug-log",
				Usage:   "Append debug traces of loaders, planning and the watcher to this file",
				EnvVars: []string{"REDEFINE_DEBUG_LOG"},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("debug-log"); path != "" {
				if _, err := debug.InitDebugLogFile(path); err != nil {
					return err
				}
			} else if debug.IsDebugEnabled() {
				debug.SetDebugOutput(c.App.ErrWriter)
			}
			debug.Printf("redefine %s: %v\n", version.Info(), c.Args().Slice())
			return nil
		},
		After: func(c *cli.Context) error {
			return debug.CloseDebugLog()
		},
		Commands: []*cli.Command{
			{
				Name:      "inspect",
				Aliases:   []string{"i"},
				Usage:     "Show the name, nesting and fingerprint of class files",
				ArgsUsage: "<file.class>...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
				},
				Action: inspectCommand,
			},
			{
				Name:      "plan",
				Aliases:   []string{"p"},
				Usage:     "Match recompiled class files against a loader's classpath without changing anything",
				ArgsUsage: "<file.class>...",
				Flags: []cli.Flag{
					loaderFlag(),
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
					treeFlag(),
				},
				Action: planCommand,
			},
			{
				Name:      "redefine",
				Aliases:   []string{"rd"},
				Usage:     "Rename, patch and write recompiled class files so they continue the loaded ones",
				ArgsUsage: "<file.class>...",
				Flags: []cli.Flag{
					loaderFlag(),
					&cli.StringFlag{
						Name:     "out",
						Aliases:  []string{"o"},
						Usage:    "Directory the patched class files are written to, laid out by package",
						Required: true,
					},
					&cli.BoolFlag{Name: "json", Aliases: []string{"j"}, Usage: "Output as JSON"},
					treeFlag(),
				},
				Action: redefineCommand,
			},
			{
				Name:   "watch",
				Usage:  "Watch every loader's class directories and reconcile each batch the compiler writes",
				Action: watchCommand,
			},
			{
				Name:   "mcp",
				Usage:  "Start MCP (Model Context Protocol) server with stdio transport",
				Action: mcpCommand,
			},
		},
	}
}

func loaderFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "loader",
		Aliases: []string{"l"},
		Usage:   "Configured loader the class files belong to",
		Value:   "app",
	}
}

func treeFlag() cli.Flag {
	return &cli.BoolFlag{Name: "tree", Aliases: []string{"t"}, Usage: "Show matches as type nests instead of a table"}
}
