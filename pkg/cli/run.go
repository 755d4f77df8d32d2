package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowtest/pkg/config"
	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/executor"
	"github.com/devicelab-dev/flowtest/pkg/flow"
	"github.com/devicelab-dev/flowtest/pkg/history"
	"github.com/devicelab-dev/flowtest/pkg/logger"
	"github.com/devicelab-dev/flowtest/pkg/report"
)

// runFlags are the execution flags shared by run and scenario.
var runFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "base-url",
		Usage: "Prefix for relative navigate URLs (overrides verification.devServerUrl)",
	},
	&cli.IntFlag{
		Name:  "timeout",
		Usage: "Default step timeout in milliseconds",
	},
	&cli.BoolFlag{
		Name:  "continue-on-error",
		Usage: "Keep running a scenario's steps after a failure",
	},
	&cli.StringSliceFlag{
		Name:    "env",
		Aliases: []string{"e"},
		Usage:   "Variables for ${NAME} expansion (KEY=VALUE)",
	},
	&cli.BoolFlag{
		Name:  "headless",
		Usage: "Run the browser without a window",
		Value: true,
	},
	&cli.BoolFlag{
		Name:  "record-video",
		Usage: "Record a screencast of every scenario (--record-video=false to turn off)",
		Value: true,
	},
	&cli.StringFlag{
		Name:  "screenshot-dir",
		Usage: "Directory for screenshots (overrides verification.screenshotDir)",
	},
	&cli.StringFlag{
		Name:  "video-dir",
		Usage: "Directory for screencast recordings",
	},
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run every test scenario of a requirements document",
	ArgsUsage: "<prd.json>",
	Description: `Run the test scenarios of each user story in order and write the
suite result to the results file (default: .claude/logs/flow-test-results.json).
Exits non-zero when any scenario fails.

Examples:
  flowtest run prd.json
  flowtest run prd.json --story US-001 --story US-003
  flowtest run prd.json -e USER=alice --continue-on-error
  flowtest run prd.json --report --history`,
	Flags: append([]cli.Flag{
		&cli.StringSliceFlag{
			Name:  "story",
			Usage: "Only run these story IDs",
		},
		&cli.StringFlag{
			Name:  "output",
			Usage: "Results file path",
		},
		&cli.BoolFlag{
			Name:  "report",
			Usage: "Also render the HTML report and Allure results",
		},
		&cli.BoolFlag{
			Name:  "history",
			Usage: "Record the run in the history database",
		},
	}, runFlags...),
	Action: runSuite,
}

var scenarioCommand = &cli.Command{
	Name:      "scenario",
	Usage:     "Run a single scenario file and print its result as JSON",
	ArgsUsage: "<scenario.json> [base-url]",
	Flags:     runFlags,
	Action:    runSingleScenario,
}

// overrides collects the execution flags the user set explicitly.
func overrides(c *cli.Context) config.Overrides {
	o := config.Overrides{
		BaseURL:       c.String("base-url"),
		ScreenshotDir: c.String("screenshot-dir"),
		VideoDir:      c.String("video-dir"),
	}
	if c.IsSet("timeout") {
		o.Timeout = time.Duration(c.Int("timeout")) * time.Millisecond
	}
	if c.IsSet("continue-on-error") {
		v := c.Bool("continue-on-error")
		o.ContinueOnError = &v
	}
	if c.IsSet("headless") {
		v := c.Bool("headless")
		o.Headless = &v
	}
	if c.IsSet("record-video") {
		v := c.Bool("record-video")
		o.RecordVideo = &v
	}
	if envs := c.StringSlice("env"); len(envs) > 0 {
		o.Env = parseEnvVars(envs)
	}
	return o
}

func runSuite(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("a requirements document is required")
	}
	path := c.Args().First()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	req, err := flow.ParseRequirementsFile(path)
	if err != nil {
		return err
	}
	req = req.FilterStories(c.StringSlice("story"))

	rc := cfg.RunnerConfig(req, overrides(c))
	out := c.App.Writer
	attachProgress(&rc, out)

	var scenarios []flow.Scenario
	for _, story := range req.UserStories {
		scenarios = append(scenarios, story.TestScenarios...)
	}
	driverName := resolveDriverName(c.String("driver"), cfg.Driver)
	launcher, err := newLauncher(driverName, scenarios)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%sflowtest %s%s  %s  %d scenarios  %s\n",
		color(colorBold), Version, color(colorReset), path, len(scenarios), rc.BaseURL)
	logger.Info("run %s: %d scenarios, driver=%s, baseUrl=%s", path, len(scenarios), driverName, rc.BaseURL)

	started := time.Now()
	suite := executor.New(launcher, rc).Run(c.Context, req)
	finished := time.Now()

	printSummary(out, suite)

	resultsPath := c.String("output")
	if resultsPath == "" {
		resultsPath = cfg.ResultsFile()
	}
	if err := report.WriteResults(resultsPath, suite); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	fmt.Fprintf(out, "\nResults: %s\n", resultsPath)

	if c.Bool("report") || cfg.ReportDir != "" {
		if err := writeReports(out, suite, reportDirOf(cfg), report.HTMLConfig{
			Project: req.Project,
			Feature: req.Feature,
			BaseURL: rc.BaseURL,
			Driver:  driverName,
		}); err != nil {
			logger.Error("report generation failed: %v", err)
			fmt.Fprintf(c.App.ErrWriter, "Warning: report generation failed: %v\n", err)
		}
	}

	if c.Bool("history") || cfg.History != "" {
		if err := recordHistory(c, cfg.HistoryFile(), history.RunInfo{
			StartedAt:  started,
			FinishedAt: finished,
			Source:     path,
			BaseURL:    rc.BaseURL,
			Driver:     driverName,
		}, suite); err != nil {
			logger.Error("history: %v", err)
			fmt.Fprintf(c.App.ErrWriter, "Warning: could not record history: %v\n", err)
		}
	}

	if c.Context.Err() != nil {
		return cli.Exit("interrupted", 130)
	}
	if !suite.Success() {
		return cli.Exit("", 1)
	}
	return nil
}

func runSingleScenario(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("a scenario file is required")
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	sc, err := flow.ParseScenarioFile(c.Args().First())
	if err != nil {
		return err
	}

	o := overrides(c)
	if c.NArg() > 1 {
		o.BaseURL = c.Args().Get(1)
	}
	rc := cfg.RunnerConfig(nil, o)
	// stdout carries the JSON result
	attachProgress(&rc, c.App.ErrWriter)

	launcher, err := newLauncher(resolveDriverName(c.String("driver"), cfg.Driver), []flow.Scenario{*sc})
	if err != nil {
		return err
	}

	result := executor.New(launcher, rc).RunScenario(c.Context, *sc)
	if err := printJSON(c.App.Writer, result); err != nil {
		return err
	}

	if !result.Passed {
		return cli.Exit("", 1)
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func reportDirOf(cfg *config.Config) string {
	if cfg.ReportDir != "" {
		return cfg.ReportDir
	}
	return report.DefaultReportDir
}

// writeReports renders the HTML report and Allure results into dir.
func writeReports(w io.Writer, suite *core.SuiteResult, dir string, html report.HTMLConfig) error {
	html.OutputPath = filepath.Join(dir, "report.html")
	htmlPath, err := report.GenerateHTML(suite, html)
	if err != nil {
		return err
	}
	allureDir, err := report.GenerateAllure(suite, dir, report.AllureConfig{
		BaseURL: html.BaseURL,
		Driver:  html.Driver,
		Project: html.Project,
		Feature: html.Feature,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "Report:  %s\nAllure:  %s\n", htmlPath, allureDir)
	return nil
}

func recordHistory(c *cli.Context, dbPath string, info history.RunInfo, suite *core.SuiteResult) error {
	store, err := history.Open(dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	run, err := store.Record(c.Context, info, suite)
	if err != nil {
		return err
	}
	logger.Info("recorded run %s in %s", run.ID, dbPath)
	fmt.Fprintf(c.App.Writer, "History: run %s\n", run.ID)
	return nil
}

// exists reports whether path can be stat'ed.
func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
