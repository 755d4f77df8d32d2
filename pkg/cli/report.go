package cli

import (
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowtest/pkg/report"
)

var reportCommand = &cli.Command{
	Name:      "report",
	Usage:     "Render the HTML report and Allure results from a results file",
	ArgsUsage: "[results.json]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "output",
			Usage: "Report directory (default: reportDir from config, or .claude/reports)",
		},
		&cli.StringFlag{
			Name:  "title",
			Usage: "HTML report title",
		},
		&cli.BoolFlag{
			Name:  "embed",
			Usage: "Embed screenshots in the HTML file",
		},
		&cli.BoolFlag{
			Name:  "allure",
			Usage: "Also write Allure result files",
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}

		resultsPath := cfg.ResultsFile()
		if c.NArg() > 0 {
			resultsPath = c.Args().First()
		}
		if !exists(resultsPath) {
			return fmt.Errorf("no results at %s (run `flowtest run` first)", resultsPath)
		}
		suite, err := report.ReadResults(resultsPath)
		if err != nil {
			return err
		}

		dir := c.String("output")
		if dir == "" {
			dir = reportDirOf(cfg)
		}

		htmlCfg := report.HTMLConfig{
			Title:       c.String("title"),
			EmbedAssets: c.Bool("embed"),
			BaseURL:     cfg.BaseURL,
			Driver:      cfg.Driver,
		}
		if !c.Bool("allure") {
			htmlCfg.OutputPath = filepath.Join(dir, "report.html")
			path, err := report.GenerateHTML(suite, htmlCfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Report:  %s\n", path)
			return nil
		}
		return writeReports(c.App.Writer, suite, dir, htmlCfg)
	},
}
