package core

import (
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// StepResult captures the outcome of executing a single step.
// It is finalized by the step executor and never mutated afterwards.
type StepResult struct {
	Index    int                    `json:"index"` // 1-based position in the scenario
	Action   flow.ActionKind        `json:"action"`
	Params   map[string]interface{} `json:"params"` // Step minus action
	Status   StepStatus             `json:"status"`
	Duration int64                  `json:"duration"` // Milliseconds

	Error    string        `json:"error,omitempty"`
	Category ErrorCategory `json:"errorCategory,omitempty"`
}

// StepError records one failed step in a scenario.
type StepError struct {
	Step   int             `json:"step"` // 1-based step index, 0 for session errors
	Action flow.ActionKind `json:"action"`
	Error  string          `json:"error"`
}

// ScenarioResult captures the complete outcome of running one scenario.
type ScenarioResult struct {
	Scenario string `json:"scenario"`
	Passed   bool   `json:"passed"`

	// Timing, Unix milliseconds
	StartTime int64 `json:"startTime"`
	EndTime   int64 `json:"endTime"`
	Duration  int64 `json:"duration"`

	Steps       []StepResult `json:"steps"`
	Errors      []StepError  `json:"errors"`
	Screenshots []string     `json:"screenshots"`
	Video       *string      `json:"video"`
}

// HasFailure reports whether any step failed.
func (r *ScenarioResult) HasFailure() bool {
	for _, step := range r.Steps {
		if step.Status == StatusFailed {
			return true
		}
	}
	return false
}

// StepCounts returns the number of passed and failed steps.
func (r *ScenarioResult) StepCounts() (passed, failed int) {
	for _, step := range r.Steps {
		switch step.Status {
		case StatusPassed:
			passed++
		case StatusFailed:
			failed++
		}
	}
	return passed, failed
}

// ScenarioEntry is a scenario result annotated with its owning story.
type ScenarioEntry struct {
	StoryID string `json:"storyId"`
	ScenarioResult
}

// SuiteResult accumulates scenario results across a requirements document.
// Entries are only ever appended.
type SuiteResult struct {
	TotalScenarios int             `json:"totalScenarios"`
	Passed         int             `json:"passed"`
	Failed         int             `json:"failed"`
	Scenarios      []ScenarioEntry `json:"scenarios"`
}

// NewSuiteResult returns an empty suite result.
func NewSuiteResult() *SuiteResult {
	return &SuiteResult{Scenarios: []ScenarioEntry{}}
}

// Add folds one scenario result into the totals.
func (s *SuiteResult) Add(storyID string, result ScenarioResult) {
	s.TotalScenarios++
	if result.Passed {
		s.Passed++
	} else {
		s.Failed++
	}
	s.Scenarios = append(s.Scenarios, ScenarioEntry{StoryID: storyID, ScenarioResult: result})
}

// Success returns true if no scenario failed.
func (s *SuiteResult) Success() bool {
	return s.Failed == 0
}

// PassRate returns passed/total in percent, 0 for an empty suite.
func (s *SuiteResult) PassRate() float64 {
	if s.TotalScenarios == 0 {
		return 0
	}
	return float64(s.Passed) * 100 / float64(s.TotalScenarios)
}
