package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/flowtest/pkg/validator"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Check a requirements document (or a folder of scenario files) without running it",
	ArgsUsage: "<prd.json | scenarios/>",
	Flags: []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "story",
			Usage: "Only validate these story IDs",
		},
	},
	Action: func(c *cli.Context) error {
		if c.NArg() < 1 {
			return fmt.Errorf("a requirements document or scenario folder is required")
		}

		result := validator.New(c.StringSlice("story")).Validate(c.Args().First())
		out := c.App.Writer

		for _, err := range result.Errors {
			fmt.Fprintf(out, "  %s✗%s %v\n", color(colorRed), color(colorReset), err)
		}
		if !result.IsValid() {
			fmt.Fprintf(out, "\n%s%d problem(s)%s in %d scenarios, %d steps\n",
				color(colorRed), len(result.Errors), color(colorReset), result.Scenarios, result.Steps)
			return cli.Exit("", 1)
		}

		fmt.Fprintf(out, "%s✓%s %d scenarios, %d steps valid\n",
			color(colorGreen), color(colorReset), result.Scenarios, result.Steps)
		return nil
	},
}
