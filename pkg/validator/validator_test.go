package validator

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidate_RequirementsFile(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "prd.json", `{
  "project": "shop",
  "userStories": [
    {"id": "US-001", "testScenarios": [
      {"name": "Login", "steps": [
        {"action": "navigate", "url": "/login"},
        {"action": "fill", "selector": "#email", "value": ""},
        {"action": "click", "selector": "#go"},
        {"action": "assert", "selector": "h1", "contains": "Welcome"}
      ]}
    ]}
  ]
}`)

	result := New(nil).Validate(file)

	if !result.IsValid() {
		t.Errorf("expected valid result, got errors: %v", result.Errors)
	}
	if len(result.Files) != 1 || result.Scenarios != 1 || result.Steps != 4 {
		t.Errorf("files=%v scenarios=%d steps=%d", result.Files, result.Scenarios, result.Steps)
	}
}

func TestValidate_ReportsEveryBadStep(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "prd.yaml", `
userStories:
  - id: US-001
    testScenarios:
      - name: Broken
        steps:
          - action: navigate
          - action: teleport
          - action: click
            selector: "#ok"
          - action: assert
            selector: h1
  - id: US-002
    testScenarios:
      - name: Empty
        steps: []
`)

	result := New(nil).Validate(file)

	if result.IsValid() {
		t.Fatal("expected errors")
	}
	if len(result.Errors) != 4 {
		t.Fatalf("expected 4 errors, got %d: %v", len(result.Errors), result.Errors)
	}

	var ve *ValidationError
	if !errors.As(result.Errors[0], &ve) {
		t.Fatalf("expected ValidationError, got %T", result.Errors[0])
	}
	if ve.Story != "US-001" || ve.Scenario != "Broken" || ve.Step != 1 {
		t.Errorf("first error context = %+v", ve)
	}
	if !strings.Contains(result.Errors[1].Error(), "unknown action: teleport") {
		t.Errorf("second error = %v", result.Errors[1])
	}
	if !strings.Contains(result.Errors[2].Error(), "step 4 (assert)") {
		t.Errorf("third error = %v", result.Errors[2])
	}
	if !strings.Contains(result.Errors[3].Error(), "scenario has no steps") {
		t.Errorf("fourth error = %v", result.Errors[3])
	}
}

func TestValidate_StoryFilter(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "prd.json", `{"userStories": [
  {"id": "US-001", "testScenarios": [{"name": "bad", "steps": [{"action": "press"}]}]},
  {"id": "US-002", "testScenarios": [{"name": "good", "steps": [{"action": "reload"}]}]}
]}`)

	result := New([]string{"US-002"}).Validate(file)
	if !result.IsValid() {
		t.Errorf("filtered story should be skipped, got %v", result.Errors)
	}
	if result.Scenarios != 1 {
		t.Errorf("Scenarios = %d, want 1", result.Scenarios)
	}
}

func TestValidate_DuplicateStoryID(t *testing.T) {
	req := &flow.Requirements{
		SourcePath: "prd.json",
		UserStories: []flow.Story{
			{ID: "US-001"},
			{ID: "US-001"},
			{},
		},
	}
	result := New(nil).ValidateRequirements(req)
	if len(result.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0].Error(), "duplicate story id") {
		t.Errorf("error = %v", result.Errors[0])
	}
	if !strings.Contains(result.Errors[1].Error(), "user story without id") {
		t.Errorf("error = %v", result.Errors[1])
	}
}

func TestValidate_ScenarioDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "login.json", `{"name": "login", "steps": [{"action": "navigate", "url": "/"}]}`)
	writeFile(t, dir, "search.yaml", "steps:\n  - action: type\n    selector: \"#q\"\n")
	writeFile(t, dir, "notes.txt", "ignored")

	result := New(nil).Validate(dir)

	if len(result.Files) != 2 {
		t.Errorf("expected 2 files, got %v", result.Files)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	var ve *ValidationError
	if !errors.As(result.Errors[0], &ve) || ve.Scenario != "search" {
		t.Errorf("error = %v", result.Errors[0])
	}
	if !strings.Contains(ve.Message, `missing required parameter "text"`) {
		t.Errorf("message = %s", ve.Message)
	}
}

func TestValidate_Errors(t *testing.T) {
	dir := t.TempDir()

	result := New(nil).Validate(filepath.Join(dir, "missing.json"))
	if result.IsValid() || !strings.Contains(result.Errors[0].Error(), "cannot access") {
		t.Errorf("missing file: %v", result.Errors)
	}

	bad := writeFile(t, dir, "bad.json", "{not json")
	result = New(nil).Validate(bad)
	if result.IsValid() || !strings.Contains(result.Errors[0].Error(), "parse error") {
		t.Errorf("bad file: %v", result.Errors)
	}
}

func TestValidateStep(t *testing.T) {
	tests := []struct {
		name string
		step flow.Step
		want error // nil, core.ErrMissingParam, core.ErrInvalidParam or core.ErrUnknownAction
	}{
		{"navigate ok", flow.Step{Action: flow.ActionNavigate, URL: "/"}, nil},
		{"navigate no url", flow.Step{Action: flow.ActionNavigate}, core.ErrMissingParam},
		{"waitForURL no url", flow.Step{Action: flow.ActionWaitForURL}, core.ErrMissingParam},
		{"reload", flow.Step{Action: flow.ActionReload}, nil},
		{"load state ok", flow.Step{Action: flow.ActionWaitForLoadState, State: "load"}, nil},
		{"load state bad", flow.Step{Action: flow.ActionWaitForLoadState, State: "idle"}, core.ErrInvalidParam},
		{"click no selector", flow.Step{Action: flow.ActionClick}, core.ErrMissingParam},
		{"blur no selector", flow.Step{Action: flow.ActionBlur}, core.ErrMissingParam},
		{"type no text", flow.Step{Action: flow.ActionType, Selector: "#q"}, core.ErrMissingParam},
		{"type ok", flow.Step{Action: flow.ActionType, Selector: "#q", Text: "hi"}, nil},
		{"fill empty value", flow.Step{Action: flow.ActionFill, Selector: "#q", Value: flow.StringPtr("")}, nil},
		{"fill no value", flow.Step{Action: flow.ActionFill, Selector: "#q"}, core.ErrMissingParam},
		{"select no value", flow.Step{Action: flow.ActionSelect, Selector: "#s"}, core.ErrMissingParam},
		{"upload no files", flow.Step{Action: flow.ActionUpload, Selector: "#f"}, core.ErrMissingParam},
		{"upload ok", flow.Step{Action: flow.ActionUpload, Selector: "#f", Files: flow.StringList{"a.txt"}}, nil},
		{"drag no target", flow.Step{Action: flow.ActionDrag, Source: ".a"}, core.ErrMissingParam},
		{"waitFor bad state", flow.Step{Action: flow.ActionWaitFor, Selector: "#a", State: "gone"}, core.ErrInvalidParam},
		{"waitFor hidden", flow.Step{Action: flow.ActionWaitFor, Selector: "#a", State: "hidden"}, nil},
		{"press no key", flow.Step{Action: flow.ActionPress}, core.ErrMissingParam},
		{"assert no checks", flow.Step{Action: flow.ActionAssert, Selector: "h1"}, core.ErrMissingParam},
		{"assert visible", flow.Step{Action: flow.ActionAssert, Selector: "h1", Visible: flow.BoolPtr(false)}, nil},
		{"evaluate no script", flow.Step{Action: flow.ActionEvaluate}, core.ErrMissingParam},
		{"scroll bare", flow.Step{Action: flow.ActionScroll}, nil},
		{"wait bare", flow.Step{Action: flow.ActionWait}, nil},
		{"screenshot bare", flow.Step{Action: flow.ActionScreenshot}, nil},
		{"unknown", flow.Step{Action: "hoverAndClick"}, core.ErrUnknownAction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStep(tt.step)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateStep_MistypedParam(t *testing.T) {
	var step flow.Step
	if err := json.Unmarshal([]byte(`{"action":"assert","selector":"h1","visible":"yes"}`), &step); err != nil {
		t.Fatalf("decode: %v", err)
	}
	err := ValidateStep(step)
	if !errors.Is(err, core.ErrInvalidParam) || !strings.Contains(err.Error(), "visible") {
		t.Errorf("ValidateStep() = %v, want invalid visible", err)
	}
}
