package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowtest/pkg/history"
)

var historyCommand = &cli.Command{
	Name:      "history",
	Usage:     "List recorded runs and scenario pass rates",
	ArgsUsage: "[run-id]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "db",
			Usage: "History database (default: history from config, or <home>/history.db)",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Number of runs to consider",
			Value: 20,
		},
		&cli.BoolFlag{
			Name:  "stats",
			Usage: "Show per-scenario pass rates instead of runs",
		},
		&cli.IntFlag{
			Name:  "prune",
			Usage: "Delete all but the newest N runs",
			Value: -1,
		},
	},
	Action: func(c *cli.Context) error {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		dbPath := c.String("db")
		if dbPath == "" {
			dbPath = cfg.HistoryFile()
		}

		store, err := history.Open(dbPath)
		if err != nil {
			return err
		}
		defer store.Close()

		out := c.App.Writer
		ctx := c.Context

		switch {
		case c.Int("prune") >= 0:
			n, err := store.Prune(ctx, c.Int("prune"))
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Pruned %d run(s)\n", n)
			return nil

		case c.NArg() > 0:
			run, err := store.Get(ctx, c.Args().First())
			if err != nil {
				return err
			}
			records, err := store.Scenarios(ctx, run.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s%s%s  %s  %d/%d passed\n", color(colorBold), run.ID, color(colorReset),
				run.StartedAt.Format("2006-01-02 15:04:05"), run.Passed, run.Total)
			for _, r := range records {
				mark := color(colorGreen) + "✓" + color(colorReset)
				if !r.Passed {
					mark = color(colorRed) + "✗" + color(colorReset)
				}
				fmt.Fprintf(out, "  %s %-10s %s %s(%s)%s\n", mark, r.StoryID, r.Scenario,
					color(colorGray), formatDuration(r.Duration), color(colorReset))
				if r.FirstError != "" {
					fmt.Fprintf(out, "      %s╰─%s %s\n", color(colorGray), color(colorReset), r.FirstError)
				}
			}
			return nil

		case c.Bool("stats"):
			stats, err := store.Stats(ctx, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(stats) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintf(out, "  %-10s %-34s %6s %8s\n", "Story", "Scenario", "Runs", "Pass %")
			fmt.Fprintln(out, strings.Repeat("─", 64))
			for _, st := range stats {
				flag := ""
				if st.Flaky() {
					flag = color(colorYellow) + " flaky" + color(colorReset)
				}
				fmt.Fprintf(out, "  %-10s %-34s %6d %7.0f%%%s\n",
					truncate(st.StoryID, 10), truncate(st.Scenario, 34), st.Runs, st.PassRate(), flag)
			}
			return nil

		default:
			runs, err := store.Recent(ctx, c.Int("limit"))
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Fprintln(out, "No runs recorded")
				return nil
			}
			fmt.Fprintf(out, "  %-26s %-19s %-8s %7s %8s  %s\n", "Run", "Started", "Driver", "Passed", "Pass %", "Source")
			fmt.Fprintln(out, strings.Repeat("─", 92))
			for _, r := range runs {
				rateColor := color(colorGreen)
				if r.Failed > 0 {
					rateColor = color(colorRed)
				}
				fmt.Fprintf(out, "  %-26s %-19s %-8s %7s %s%7.0f%%%s  %s\n",
					r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Driver,
					fmt.Sprintf("%d/%d", r.Passed, r.Total),
					rateColor, r.PassRate(), color(colorReset), r.Source)
			}
			return nil
		}
	},
}
