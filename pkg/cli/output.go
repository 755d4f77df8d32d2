package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/executor"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// Slow step threshold in milliseconds (5 seconds)
const slowThresholdMs = 5000

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

// attachProgress wires live progress output to w into rc.
func attachProgress(rc *executor.RunnerConfig, w io.Writer) {
	rc.OnScenarioStart = func(idx, total int, storyID, name string) {
		fmt.Fprintf(w, "\n  %s[%d/%d]%s %s%s%s", color(colorCyan), idx+1, total, color(colorReset),
			color(colorBold), name, color(colorReset))
		if storyID != "" {
			fmt.Fprintf(w, " (%s)", storyID)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("─", 60))
	}
	rc.OnStepComplete = func(idx int, desc string, passed bool, durationMs int64, errMsg string) {
		printStep(w, desc, passed, durationMs, errMsg)
	}
	rc.OnScenarioEnd = func(name string, passed bool, durationMs int64) {
		printScenarioEnd(w, name, passed, durationMs)
	}
}

func printStep(w io.Writer, desc string, passed bool, durationMs int64, errMsg string) {
	durStr := formatDuration(durationMs)

	if passed {
		symbol := "✓"
		symbolColor := color(colorGreen)
		durColor := ""
		if durationMs >= slowThresholdMs {
			durColor = color(colorYellow)
			symbol = "⚠"
			symbolColor = color(colorYellow)
		}
		fmt.Fprintf(w, "    %s%s%s %s %s(%s)%s\n",
			symbolColor, symbol, color(colorReset), desc, durColor, durStr, color(colorReset))
		return
	}

	fmt.Fprintf(w, "    %s✗%s %s (%s)\n", color(colorRed), color(colorReset), desc, durStr)
	if errMsg != "" {
		fmt.Fprintf(w, "      %s╰─%s %s\n", color(colorGray), color(colorReset), errMsg)
	}
}

func printScenarioEnd(w io.Writer, name string, passed bool, durationMs int64) {
	mark, c := "✓", colorGreen
	if !passed {
		mark, c = "✗", colorRed
	}
	fmt.Fprintf(w, "%s%s %s%s %s%s%s\n",
		color(c), mark, color(colorReset), name, color(colorGray), formatDuration(durationMs), color(colorReset))
}

// printSummary prints the per-scenario table and totals.
func printSummary(w io.Writer, suite *core.SuiteResult) {
	totalSteps, passedSteps, failedSteps := 0, 0, 0
	var duration int64
	for _, sc := range suite.Scenarios {
		p, f := sc.StepCounts()
		totalSteps += len(sc.Steps)
		passedSteps += p
		failedSteps += f
		duration += sc.Duration
	}

	fmt.Fprintln(w)
	if passedSteps > 0 {
		fmt.Fprintf(w, "  %s%d steps passing%s (%s)\n", color(colorGreen), passedSteps, color(colorReset), formatDuration(duration))
	}
	if failedSteps > 0 {
		fmt.Fprintf(w, "  %s%d steps failing%s\n", color(colorRed), failedSteps, color(colorReset))
	}
	fmt.Fprintln(w)

	tableWidth := 84
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
	fmt.Fprintf(w, "  %-10s %-34s %6s %7s %6s %6s %10s\n", "Story", "Scenario", "Status", "Steps", "Pass", "Fail", "Duration")
	fmt.Fprintln(w, strings.Repeat("─", tableWidth))

	for _, sc := range suite.Scenarios {
		status, statusColor := "✓ PASS", color(colorGreen)
		if !sc.Passed {
			status, statusColor = "✗ FAIL", color(colorRed)
		}
		p, f := sc.StepCounts()
		fmt.Fprintf(w, "  %-10s %-34s %s%6s%s %7d %6d %6d %10s\n",
			truncate(sc.StoryID, 10), truncate(sc.Scenario, 34),
			statusColor, status, color(colorReset),
			len(sc.Steps), p, f, formatDuration(sc.Duration))
	}

	fmt.Fprintln(w, strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", suite.Passed, suite.TotalScenarios)
	statusColor := color(colorGreen)
	if suite.Failed > 0 {
		statusColor = color(colorRed)
	}
	fmt.Fprintf(w, "  %s%-45s%s %s%6s%s %7d %6d %6d %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		totalSteps, passedSteps, failedSteps, formatDuration(duration))
	fmt.Fprintln(w, strings.Repeat("═", tableWidth))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
