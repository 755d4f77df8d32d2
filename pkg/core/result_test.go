package core

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestScenarioResult_HasFailure(t *testing.T) {
	r := ScenarioResult{Steps: []StepResult{
		{Index: 1, Status: StatusPassed},
		{Index: 2, Status: StatusPassed},
	}}
	if r.HasFailure() {
		t.Error("HasFailure() = true, want false")
	}

	r.Steps = append(r.Steps, StepResult{Index: 3, Status: StatusFailed})
	if !r.HasFailure() {
		t.Error("HasFailure() = false, want true")
	}

	passed, failed := r.StepCounts()
	if passed != 2 || failed != 1 {
		t.Errorf("StepCounts() = (%d, %d), want (2, 1)", passed, failed)
	}
}

func TestSuiteResult_Add(t *testing.T) {
	s := NewSuiteResult()
	s.Add("US-1", ScenarioResult{Scenario: "a", Passed: false})
	s.Add("US-2", ScenarioResult{Scenario: "b", Passed: true})
	s.Add("US-2", ScenarioResult{Scenario: "c", Passed: true})

	if s.TotalScenarios != 3 || s.Passed != 2 || s.Failed != 1 {
		t.Errorf("totals = %d/%d/%d, want 3/2/1", s.TotalScenarios, s.Passed, s.Failed)
	}
	if s.Passed+s.Failed != s.TotalScenarios {
		t.Error("passed + failed must equal total")
	}
	if s.Scenarios[0].StoryID != "US-1" || s.Scenarios[2].Scenario != "c" {
		t.Errorf("scenarios out of order: %+v", s.Scenarios)
	}
	if s.Success() {
		t.Error("Success() = true with a failed scenario")
	}
}

func TestSuiteResult_PassRate(t *testing.T) {
	s := NewSuiteResult()
	if s.PassRate() != 0 {
		t.Errorf("PassRate() = %v for empty suite, want 0", s.PassRate())
	}
	if !s.Success() {
		t.Error("empty suite should be successful")
	}
	s.Add("US-1", ScenarioResult{Passed: true})
	s.Add("US-1", ScenarioResult{Passed: false})
	if s.PassRate() != 50 {
		t.Errorf("PassRate() = %v, want 50", s.PassRate())
	}
}

func TestSuiteResult_JSONShape(t *testing.T) {
	s := NewSuiteResult()
	s.Add("US-7", ScenarioResult{
		Scenario: "login",
		Passed:   false,
		Steps: []StepResult{
			{Index: 1, Action: "click", Params: map[string]interface{}{"selector": "#go"}, Status: StatusFailed, Error: "boom", Category: ErrCategoryAction},
		},
		Errors:      []StepError{{Step: 1, Action: "click", Error: "boom"}},
		Screenshots: []string{"shot.png"},
	})

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	out := string(data)

	for _, want := range []string{
		`"totalScenarios":1`,
		`"storyId":"US-7"`,
		`"scenario":"login"`,
		`"status":"failed"`,
		`"errorCategory":"action"`,
		`"video":null`,
		`"errors":[{"step":1,"action":"click","error":"boom"}]`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("JSON %s missing %s", out, want)
		}
	}

	var back SuiteResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back.Scenarios[0].StoryID != "US-7" || back.Scenarios[0].Steps[0].Category != ErrCategoryAction {
		t.Errorf("decoded = %+v", back.Scenarios[0])
	}
}

func TestStepResult_PassedOmitsError(t *testing.T) {
	data, err := json.Marshal(StepResult{Index: 1, Action: "reload", Status: StatusPassed})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if strings.Contains(string(data), "error") {
		t.Errorf("passed step JSON should not mention error: %s", data)
	}
}
