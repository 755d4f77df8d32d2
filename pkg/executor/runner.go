package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/flow"
	"github.com/devicelab-dev/flowtest/pkg/logger"
)

// sessionAction is the action recorded for failures outside any step.
const sessionAction flow.ActionKind = "session"

// Runner runs every scenario of a requirements document, one after another.
type Runner struct {
	config    RunnerConfig
	scenarios *ScenarioRunner
}

// New creates a new Runner.
func New(launcher core.Launcher, cfg RunnerConfig) *Runner {
	cfg = cfg.withDefaults()
	return &Runner{
		config:    cfg,
		scenarios: NewScenarioRunner(launcher, cfg),
	}
}

// Run executes all scenarios of doc in story order. Stories without
// scenarios are skipped. A scenario that cannot start, or panics, is
// recorded as failed and the run moves on.
func (r *Runner) Run(ctx context.Context, doc *flow.Requirements) *core.SuiteResult {
	suite := core.NewSuiteResult()
	total := doc.ScenarioCount()
	n := 0

	for _, story := range doc.UserStories {
		if len(story.TestScenarios) == 0 {
			logger.Debug("story %s has no scenarios, skipping", story.ID)
			continue
		}
		for _, sc := range story.TestScenarios {
			if r.config.OnScenarioStart != nil {
				r.config.OnScenarioStart(n, total, story.ID, sc.Name)
			}
			result := r.RunScenario(ctx, sc)
			suite.Add(story.ID, result)
			if r.config.OnScenarioEnd != nil {
				r.config.OnScenarioEnd(sc.Name, result.Passed, result.Duration)
			}
			n++
		}
	}

	logger.Info("suite finished: %d scenarios, %d passed, %d failed",
		suite.TotalScenarios, suite.Passed, suite.Failed)
	return suite
}

// RunScenario runs one scenario and always returns a result.
func (r *Runner) RunScenario(ctx context.Context, sc flow.Scenario) (result core.ScenarioResult) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			logger.Error("scenario %s panicked: %v", sc.Name, p)
			result = failedScenario(sc.Name, start, fmt.Errorf("panic: %v", p))
		}
	}()

	res, err := r.scenarios.Run(ctx, sc)
	if err != nil {
		logger.Error("scenario %s could not start: %v", sc.Name, err)
		return failedScenario(sc.Name, start, err)
	}
	return res
}

// failedScenario is the result for a scenario that produced no steps.
func failedScenario(name string, start time.Time, err error) core.ScenarioResult {
	end := time.Now()
	return core.ScenarioResult{
		Scenario:    name,
		Passed:      false,
		StartTime:   start.UnixMilli(),
		EndTime:     end.UnixMilli(),
		Duration:    end.Sub(start).Milliseconds(),
		Steps:       []core.StepResult{},
		Errors:      []core.StepError{{Step: 0, Action: sessionAction, Error: err.Error()}},
		Screenshots: []string{},
	}
}
