package report

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/logger"
)

// Allure result schema types.

// AllureResult represents a single test result in Allure format.
type AllureResult struct {
	UUID          string              `json:"uuid"`
	HistoryID     string              `json:"historyId"`
	FullName      string              `json:"fullName"`
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	Labels        []AllureLabel       `json:"labels"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureStep represents a step within a test result.
type AllureStep struct {
	Name          string              `json:"name"`
	Status        string              `json:"status"`
	Stage         string              `json:"stage"`
	Start         int64               `json:"start"`
	Stop          int64               `json:"stop"`
	StatusDetails AllureStatusDetails `json:"statusDetails"`
	Steps         []AllureStep        `json:"steps"`
	Attachments   []AllureAttachment  `json:"attachments"`
}

// AllureAttachment represents a file attachment.
type AllureAttachment struct {
	Name   string `json:"name"`
	Source string `json:"source"`
	Type   string `json:"type"`
}

// AllureLabel represents a label on a test result.
type AllureLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// AllureStatusDetails holds failure message and trace.
type AllureStatusDetails struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

// AllureCategory defines a failure category with regex matching.
type AllureCategory struct {
	Name            string   `json:"name"`
	MatchedStatuses []string `json:"matchedStatuses"`
	MessageRegex    string   `json:"messageRegex"`
}

// AllureExecutor holds executor info.
type AllureExecutor struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	ReportName string `json:"reportName"`
}

// AllureConfig describes the run for environment.properties.
type AllureConfig struct {
	BaseURL string
	Driver  string
	Project string
	Feature string
}

// GenerateAllure writes Allure result files for suite into
// <reportDir>/allure-results/ and returns that directory. Screenshots are
// copied next to the results.
func GenerateAllure(suite *core.SuiteResult, reportDir string, cfg AllureConfig) (string, error) {
	allureDir := filepath.Join(reportDir, "allure-results")
	if err := os.MkdirAll(allureDir, 0o755); err != nil {
		return "", fmt.Errorf("create allure-results dir: %w", err)
	}

	// Write one result file per scenario
	for i, entry := range suite.Scenarios {
		result := buildAllureResult(entry, i)

		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal allure result for %s: %w", entry.Scenario, err)
		}

		resultPath := filepath.Join(allureDir, result.UUID+"-result.json")
		if err := os.WriteFile(resultPath, data, 0o644); err != nil {
			return "", fmt.Errorf("write allure result %s: %w", result.UUID, err)
		}

		for _, shot := range entry.Screenshots {
			copyFile(shot, filepath.Join(allureDir, filepath.Base(shot)))
		}
	}

	if err := writeAllureCategories(allureDir); err != nil {
		return "", err
	}
	if err := writeAllureEnvironment(allureDir, cfg); err != nil {
		return "", err
	}
	if err := writeAllureExecutor(allureDir); err != nil {
		return "", err
	}

	return allureDir, nil
}

// buildAllureResult builds an AllureResult from one scenario entry.
func buildAllureResult(entry core.ScenarioEntry, position int) AllureResult {
	status := mapAllureStatus(entry.Passed)

	labels := []AllureLabel{
		{Name: "suite", Value: entry.Scenario},
		{Name: "framework", Value: "flowtest"},
		{Name: "severity", Value: "normal"},
	}
	if entry.StoryID != "" {
		labels = append(labels,
			AllureLabel{Name: "parentSuite", Value: entry.StoryID},
			AllureLabel{Name: "story", Value: entry.StoryID})
	}

	// Status details
	var statusDetails AllureStatusDetails
	if len(entry.Errors) > 0 {
		msgs := make([]string, 0, len(entry.Errors))
		for _, e := range entry.Errors {
			msgs = append(msgs, fmt.Sprintf("step %d (%s): %s", e.Step, e.Action, e.Error))
		}
		statusDetails.Message = entry.Errors[0].Error
		statusDetails.Trace = strings.Join(msgs, "\n")
	}

	attachments := make([]AllureAttachment, 0, len(entry.Screenshots))
	for _, shot := range entry.Screenshots {
		attachments = append(attachments, AllureAttachment{
			Name:   "Screenshot",
			Source: filepath.Base(shot),
			Type:   mimeType(shot),
		})
	}

	return AllureResult{
		UUID:          fmt.Sprintf("scenario-%03d-%s", position, fnv32aHash(entry.StoryID+":"+entry.Scenario)),
		HistoryID:     fnv32aHash(entry.StoryID + ":" + entry.Scenario),
		FullName:      fullName(entry),
		Name:          entry.Scenario,
		Status:        status,
		Stage:         "finished",
		Start:         entry.StartTime,
		Stop:          entry.EndTime,
		Labels:        labels,
		StatusDetails: statusDetails,
		Steps:         buildAllureSteps(entry.StartTime, entry.Steps, entry.Screenshots),
		Attachments:   attachments,
	}
}

func fullName(entry core.ScenarioEntry) string {
	if entry.StoryID == "" {
		return entry.Scenario
	}
	return entry.StoryID + " / " + entry.Scenario
}

// buildAllureSteps lays the steps end to end from start, since results
// record durations only. A failed step gets the failure screenshot taken
// for its index.
func buildAllureSteps(start int64, steps []core.StepResult, screenshots []string) []AllureStep {
	out := make([]AllureStep, 0, len(steps))
	at := start
	for _, st := range steps {
		step := AllureStep{
			Name:        fmt.Sprintf("%d. %s", st.Index, st.Action),
			Status:      mapStepStatus(st.Status),
			Stage:       "finished",
			Start:       at,
			Stop:        at + st.Duration,
			Steps:       []AllureStep{},
			Attachments: []AllureAttachment{},
		}
		if target := stepTarget(st.Params); target != "" {
			step.Name += ": " + target
		}
		if st.Error != "" {
			step.StatusDetails.Message = st.Error
			if shot := failureShotFor(st.Index, screenshots); shot != "" {
				step.Attachments = append(step.Attachments, AllureAttachment{
					Name:   "Failure",
					Source: filepath.Base(shot),
					Type:   mimeType(shot),
				})
			}
		}
		out = append(out, step)
		at += st.Duration
	}
	return out
}

// failureShotFor finds the failure screenshot named for step index.
func failureShotFor(index int, screenshots []string) string {
	marker := fmt.Sprintf("-step-%d-", index)
	for _, s := range screenshots {
		base := filepath.Base(s)
		if strings.HasPrefix(base, "error-") && strings.Contains(base, marker) {
			return s
		}
	}
	return ""
}

// copyFile copies a single file from src to dst, ignoring a missing source.
func copyFile(src, dst string) {
	in, err := os.Open(src) //#nosec G304 -- screenshot path from results
	if err != nil {
		return
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		logger.Warn("failed to copy %s to %s: %v", src, dst, err)
	}
}

func mapAllureStatus(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// mapStepStatus maps a step status to an Allure status string.
func mapStepStatus(s core.StepStatus) string {
	switch s {
	case core.StatusPassed:
		return "passed"
	case core.StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func mimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return core.ContentTypeJPEG
	default:
		return core.ContentTypePNG
	}
}

// fnv32aHash returns a hex-encoded FNV-32a hash of the input string.
func fnv32aHash(s string) string {
	h := fnv.New32a()
	h.Write([]byte(s))
	return fmt.Sprintf("%08x", h.Sum32())
}

// writeAllureCategories writes categories.json for failure categorization.
func writeAllureCategories(allureDir string) error {
	categories := []AllureCategory{
		{Name: "Element Not Found", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*element not found.*"},
		{Name: "Timeout", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*timeout.*|.*timed out.*"},
		{Name: "Assertion Failed", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*expected .*"},
		{Name: "Unknown Action", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*unknown action.*"},
		{Name: "Invalid Step", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*missing required parameter.*|.*invalid .*"},
		{Name: "Browser Session", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*launch chrome.*|.*open tab.*|.*session.*"},
		{Name: "Script Error", MatchedStatuses: []string{"failed"}, MessageRegex: "(?i).*evaluate.*|.*exception.*"},
	}

	data, err := json.MarshalIndent(categories, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}

	path := filepath.Join(allureDir, "categories.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write categories.json: %w", err)
	}

	return nil
}

// writeAllureEnvironment writes environment.properties with run metadata.
func writeAllureEnvironment(allureDir string, cfg AllureConfig) error {
	var b strings.Builder
	b.WriteString("framework=flowtest\n")

	if cfg.BaseURL != "" {
		b.WriteString(fmt.Sprintf("baseUrl=%s\n", cfg.BaseURL))
	}
	if cfg.Driver != "" {
		b.WriteString(fmt.Sprintf("driver=%s\n", cfg.Driver))
	}
	if cfg.Project != "" {
		b.WriteString(fmt.Sprintf("project=%s\n", cfg.Project))
	}
	if cfg.Feature != "" {
		b.WriteString(fmt.Sprintf("feature=%s\n", cfg.Feature))
	}

	path := filepath.Join(allureDir, "environment.properties")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write environment.properties: %w", err)
	}

	return nil
}

// writeAllureExecutor writes executor.json.
func writeAllureExecutor(allureDir string) error {
	executor := AllureExecutor{
		Name:       "flowtest",
		Type:       "flowtest",
		ReportName: "Flow Test Report",
	}

	data, err := json.MarshalIndent(executor, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal executor: %w", err)
	}

	path := filepath.Join(allureDir, "executor.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write executor.json: %w", err)
	}

	return nil
}
