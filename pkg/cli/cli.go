// Package cli provides the command-line interface for flowtest.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowtest/pkg/config"
	"github.com/devicelab-dev/flowtest/pkg/logger"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "config",
		Usage:   "Path to workspace flowtest.yaml (default: ./flowtest.yaml if present)",
		EnvVars: []string{"FLOWTEST_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "driver",
		Aliases: []string{"d"},
		Usage:   "Browser driver to use (chrome, mock)",
		EnvVars: []string{"FLOWTEST_DRIVER"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Mirror the run log to stderr",
		EnvVars: []string{"FLOWTEST_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// NewApp builds the flowtest application.
func NewApp() *cli.App {
	return &cli.App{
		Name:    "flowtest",
		Usage:   "Run declarative browser flow tests",
		Version: Version,
		Description: `flowtest executes the test scenarios of a requirements document
against a real browser and writes a JSON result summary.

Examples:
  flowtest run prd.json
  flowtest run prd.json --story US-001 --base-url http://localhost:5173
  flowtest scenario login.json http://localhost:3000
  flowtest validate prd.json
  flowtest report --allure
  flowtest history --stats`,
		Flags: GlobalFlags,
		Before: func(c *cli.Context) error {
			if c.Bool("no-ansi") {
				colorsEnabled = false
			}
			logger.SetVerbose(c.Bool("verbose"))
			if err := logger.Init(filepath.Join(config.GetLogDir(), "flowtest.log")); err != nil {
				// Running without a log file is not fatal.
				fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
			}
			return nil
		},
		After: func(c *cli.Context) error {
			logger.Close()
			return nil
		},
		Commands: []*cli.Command{
			runCommand,
			scenarioCommand,
			validateCommand,
			reportCommand,
			historyCommand,
		},
	}
}

// Execute runs the CLI. SIGINT and SIGTERM cancel the running scenarios,
// which still release their browser sessions.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ExitCoder errors (failed runs) exit inside RunContext.
	if err := NewApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// loadConfig loads the --config file, or flowtest.yaml from the working
// directory when the flag is unset.
func loadConfig(c *cli.Context) (*config.Config, error) {
	if path := c.String("config"); path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := config.LoadFromDir(".")
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
