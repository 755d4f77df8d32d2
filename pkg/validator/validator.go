// Package validator checks requirements documents before execution.
// It parses the document upfront and reports every step the dispatcher
// would reject, without launching a browser.
package validator

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// ValidationError represents a validation error with context.
type ValidationError struct {
	File     string
	Story    string
	Scenario string
	Step     int // 1-based, 0 when the error is not about a step
	Action   flow.ActionKind
	Message  string
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.File)
	if e.Story != "" {
		b.WriteString(": story " + e.Story)
	}
	if e.Scenario != "" {
		b.WriteString(": scenario " + e.Scenario)
	}
	if e.Step > 0 {
		fmt.Fprintf(&b, ": step %d (%s)", e.Step, e.Action)
	}
	b.WriteString(": " + e.Message)
	return b.String()
}

// Result contains the validation result.
type Result struct {
	// Files is the list of documents that parsed.
	Files []string
	// Scenarios and Steps count what was checked.
	Scenarios int
	Steps     int
	// Errors contains all validation errors found.
	Errors []error
}

// IsValid returns true if there are no validation errors.
func (r *Result) IsValid() bool {
	return len(r.Errors) == 0
}

// Validator validates requirements documents and scenario files.
type Validator struct {
	stories []string
}

// New creates a new Validator. A non-empty stories limits validation to
// those story IDs.
func New(stories []string) *Validator {
	return &Validator{stories: stories}
}

// Validate validates a requirements document, or every scenario file in a
// directory.
func (v *Validator) Validate(path string) *Result {
	result := &Result{}

	info, err := os.Stat(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("cannot access: %v", err),
		})
		return result
	}

	if !info.IsDir() {
		req, err := flow.ParseRequirementsFile(path)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    path,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			return result
		}
		v.validateRequirements(req, path, result)
		return result
	}

	files, err := collectScenarioFiles(path)
	if err != nil {
		result.Errors = append(result.Errors, &ValidationError{
			File:    path,
			Message: fmt.Sprintf("failed to scan directory: %v", err),
		})
		return result
	}
	for _, file := range files {
		sc, err := flow.ParseScenarioFile(file)
		if err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Message: fmt.Sprintf("parse error: %v", err),
			})
			continue
		}
		result.Files = append(result.Files, file)
		validateScenario(*sc, file, "", result)
	}
	return result
}

// ValidateRequirements validates an already parsed document.
func (v *Validator) ValidateRequirements(req *flow.Requirements) *Result {
	result := &Result{}
	v.validateRequirements(req, req.SourcePath, result)
	return result
}

func (v *Validator) validateRequirements(req *flow.Requirements, file string, result *Result) {
	result.Files = append(result.Files, file)

	req = req.FilterStories(v.stories)
	seen := make(map[string]bool, len(req.UserStories))
	for _, story := range req.UserStories {
		if story.ID == "" {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Message: "user story without id",
			})
		} else if seen[story.ID] {
			result.Errors = append(result.Errors, &ValidationError{
				File:    file,
				Story:   story.ID,
				Message: "duplicate story id",
			})
		}
		seen[story.ID] = true

		for _, sc := range story.TestScenarios {
			validateScenario(sc, file, story.ID, result)
		}
	}
}

func validateScenario(sc flow.Scenario, file, storyID string, result *Result) {
	result.Scenarios++
	if len(sc.Steps) == 0 {
		result.Errors = append(result.Errors, &ValidationError{
			File:     file,
			Story:    storyID,
			Scenario: sc.Name,
			Message:  "scenario has no steps",
		})
	}
	for i, step := range sc.Steps {
		result.Steps++
		if err := ValidateStep(step); err != nil {
			result.Errors = append(result.Errors, &ValidationError{
				File:     file,
				Story:    storyID,
				Scenario: sc.Name,
				Step:     i + 1,
				Action:   step.Action,
				Message:  err.Error(),
			})
		}
	}
}

// ValidateStep reports the first problem the dispatcher would raise for
// step before touching the page. It returns a *core.ExecutionError.
func ValidateStep(step flow.Step) error {
	if !step.Action.IsKnown() {
		return core.ErrUnknownAction.WithMessagef("unknown action: %s", step.Action)
	}
	if err := step.ParamError(); err != nil {
		return core.ErrInvalidParam.WithMessagef("%s: %v", step.Action, err)
	}

	switch step.Action {
	case flow.ActionNavigate, flow.ActionWaitForURL:
		return require(step, "url", step.URL != "")
	case flow.ActionWaitForLoadState:
		switch core.LoadState(step.State) {
		case "", core.LoadStateDOMContentLoaded, core.LoadStateLoad, core.LoadStateNetworkIdle:
			return nil
		}
		return invalid(step, "state", step.State)
	case flow.ActionClick, flow.ActionDoubleClick, flow.ActionHover, flow.ActionFocus,
		flow.ActionBlur, flow.ActionCheck, flow.ActionUncheck, flow.ActionClear:
		return require(step, "selector", step.Selector != "")
	case flow.ActionType:
		if err := require(step, "text", step.Text != ""); err != nil {
			return err
		}
		return require(step, "selector", step.Selector != "")
	case flow.ActionFill, flow.ActionSelect:
		if err := require(step, "value", step.Value != nil); err != nil {
			return err
		}
		return require(step, "selector", step.Selector != "")
	case flow.ActionUpload:
		if err := require(step, "files", len(step.Files) > 0); err != nil {
			return err
		}
		return require(step, "selector", step.Selector != "")
	case flow.ActionDrag:
		if err := require(step, "source", step.Source != ""); err != nil {
			return err
		}
		return require(step, "target", step.Target != "")
	case flow.ActionWaitFor:
		if err := require(step, "selector", step.Selector != ""); err != nil {
			return err
		}
		switch core.ElementState(step.State) {
		case "", core.StateAttached, core.StateDetached, core.StateVisible, core.StateHidden:
			return nil
		}
		return invalid(step, "state", step.State)
	case flow.ActionPress:
		return require(step, "key", step.Key != "")
	case flow.ActionAssert:
		if err := require(step, "selector", step.Selector != ""); err != nil {
			return err
		}
		if step.Contains == "" && step.Visible == nil && step.Count == nil &&
			step.Value == nil && step.Attribute == "" {
			return core.ErrMissingParam.WithMessage(
				"assert: no check given (contains, visible, count, value or attribute)")
		}
	case flow.ActionEvaluate:
		return require(step, "script", step.Script != "")
	}
	return nil
}

func require(step flow.Step, name string, present bool) error {
	if present {
		return nil
	}
	return core.ErrMissingParam.WithMessagef("%s: missing required parameter %q", step.Action, name)
}

func invalid(step flow.Step, name, value string) error {
	return core.ErrInvalidParam.WithMessagef("%s: invalid %s %q", step.Action, name, value)
}

// collectScenarioFiles finds all .json/.yaml/.yml files in a directory.
func collectScenarioFiles(dir string) ([]string, error) {
	var files []string

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".yaml", ".yml":
			files = append(files, path)
		}
		return nil
	})

	return files, err
}
