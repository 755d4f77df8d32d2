package flow

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const samplePRD = `{
  "project": "shop",
  "userStories": [
    {
      "id": "US-001",
      "testScenarios": [
        {
          "name": "login fails with wrong password",
          "steps": [
            {"action": "navigate", "url": "/login"},
            {"action": "fill", "selector": "#user", "value": "alice"},
            {"action": "click", "selector": "#submit"}
          ]
        }
      ]
    },
    {"id": "US-002"},
    {
      "id": "US-003",
      "testScenarios": [
        {"steps": [{"action": "reload"}]}
      ]
    }
  ],
  "verification": {"devServerUrl": "http://localhost:5173", "screenshotDir": "shots"}
}`

func TestParseRequirements_JSON(t *testing.T) {
	req, err := ParseRequirements([]byte(samplePRD), "prd.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(req.UserStories) != 3 {
		t.Fatalf("expected 3 stories, got %d", len(req.UserStories))
	}
	if req.ScenarioCount() != 2 {
		t.Errorf("ScenarioCount()=%d, want 2", req.ScenarioCount())
	}

	sc := req.UserStories[0].TestScenarios[0]
	if sc.Name != "login fails with wrong password" {
		t.Errorf("Name=%q", sc.Name)
	}
	if len(sc.Steps) != 3 {
		t.Fatalf("expected 3 steps, got %d", len(sc.Steps))
	}
	if sc.Steps[1].Action != ActionFill {
		t.Errorf("Steps[1].Action=%q, want fill", sc.Steps[1].Action)
	}

	if got := req.BaseURL("http://localhost:3000"); got != "http://localhost:5173" {
		t.Errorf("BaseURL=%q", got)
	}
	if got := req.ScreenshotDir("x"); got != "shots" {
		t.Errorf("ScreenshotDir=%q", got)
	}
}

func TestParseRequirements_DefaultScenarioName(t *testing.T) {
	req, err := ParseRequirements([]byte(samplePRD), "prd.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := req.UserStories[2].TestScenarios[0].Name; got != "US-003-scenario-1" {
		t.Errorf("Name=%q, want US-003-scenario-1", got)
	}
}

func TestRequirements_Fallbacks(t *testing.T) {
	req := &Requirements{}
	if got := req.BaseURL("http://localhost:3000"); got != "http://localhost:3000" {
		t.Errorf("BaseURL=%q", got)
	}
	if got := req.ScreenshotDir(".claude/screenshots"); got != ".claude/screenshots" {
		t.Errorf("ScreenshotDir=%q", got)
	}
}

func TestParseRequirements_YAML(t *testing.T) {
	data := `
userStories:
  - id: US-010
    testScenarios:
      - name: search
        steps:
          - action: fill
            selector: "#q"
            value: shoes
          - action: press
            key: Enter
verification:
  devServerUrl: http://127.0.0.1:8080
`
	req, err := ParseRequirements([]byte(data), "prd.yaml")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	steps := req.UserStories[0].TestScenarios[0].Steps
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[1].Key != "Enter" {
		t.Errorf("Key=%q, want Enter", steps[1].Key)
	}
	if req.BaseURL("") != "http://127.0.0.1:8080" {
		t.Errorf("BaseURL=%q", req.BaseURL(""))
	}
}

func TestParseRequirements_InvalidJSON(t *testing.T) {
	_, err := ParseRequirements([]byte("{\n  \"userStories\": [\n  oops\n]}"), "prd.json")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if pe.Line != 3 {
		t.Errorf("Line=%d, want 3", pe.Line)
	}
	if !strings.Contains(err.Error(), "prd.json:3") {
		t.Errorf("error %q should contain location", err.Error())
	}
}

func TestParseRequirements_Empty(t *testing.T) {
	_, err := ParseRequirements([]byte("   \n"), "prd.json")
	if err == nil {
		t.Fatal("expected error for empty document")
	}
	if !strings.Contains(err.Error(), "empty document") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseScenarioFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "checkout.json")
	content := `{"steps":[{"action":"navigate","url":"/cart"},{"action":"click","selector":"#pay"}]}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	sc, err := ParseScenarioFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sc.Name != "checkout" {
		t.Errorf("Name=%q, want checkout (from file name)", sc.Name)
	}
	if len(sc.Steps) != 2 {
		t.Errorf("expected 2 steps, got %d", len(sc.Steps))
	}
}

func TestParseScenarioFile_Missing(t *testing.T) {
	_, err := ParseScenarioFile(filepath.Join(t.TempDir(), "nope.json"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestRequirements_FilterStories(t *testing.T) {
	req, err := ParseRequirements([]byte(samplePRD), "prd.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	filtered := req.FilterStories([]string{"US-003"})
	if len(filtered.UserStories) != 1 || filtered.UserStories[0].ID != "US-003" {
		t.Errorf("filtered stories = %+v", filtered.UserStories)
	}
	if len(req.UserStories) != 3 {
		t.Error("FilterStories must not modify the original")
	}

	if all := req.FilterStories(nil); len(all.UserStories) != 3 {
		t.Errorf("empty filter should keep all stories, got %d", len(all.UserStories))
	}
}

func TestParseRequirements_MistypedParamKeepsDocument(t *testing.T) {
	data := `{"userStories": [
  {"id": "US-1", "testScenarios": [{"name": "bad", "steps": [{"action": "bogus", "count": "many"}]}]},
  {"id": "US-2", "testScenarios": [{"name": "good", "steps": [{"action": "wait", "duration": 10}]}]}
]}`
	req, err := ParseRequirements([]byte(data), "prd.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.ScenarioCount() != 2 {
		t.Fatalf("ScenarioCount()=%d, want 2", req.ScenarioCount())
	}
	bad := req.UserStories[0].TestScenarios[0].Steps[0]
	if bad.Action != "bogus" || bad.ParamError() == nil {
		t.Errorf("bad step = %+v, ParamError=%v", bad, bad.ParamError())
	}
	good := req.UserStories[1].TestScenarios[0].Steps[0]
	if good.DurationMs != 10 || good.ParamError() != nil {
		t.Errorf("good step = %+v, ParamError=%v", good, good.ParamError())
	}
}
