package executor

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/flow"
	"github.com/devicelab-dev/flowtest/pkg/logger"
)

// ScenarioState is the lifecycle of one scenario run.
type ScenarioState int

const (
	ScenarioNotStarted ScenarioState = iota
	ScenarioRunning
	ScenarioPassed
	ScenarioFailed
)

// String returns the string representation of ScenarioState
func (s ScenarioState) String() string {
	switch s {
	case ScenarioNotStarted:
		return "not_started"
	case ScenarioRunning:
		return "running"
	case ScenarioPassed:
		return "passed"
	case ScenarioFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ScenarioRunner executes scenarios, each in its own browser and session.
type ScenarioRunner struct {
	launcher core.Launcher
	config   RunnerConfig

	now func() time.Time
}

// NewScenarioRunner creates a runner. Zero fields of cfg take defaults.
func NewScenarioRunner(launcher core.Launcher, cfg RunnerConfig) *ScenarioRunner {
	return &ScenarioRunner{launcher: launcher, config: cfg.withDefaults()}
}

// Run executes scenario and returns its result. Errors acquiring the
// browser or session are returned as-is; every step failure is reported in
// the result instead. A panic inside a step fails that step and ends the
// scenario. The session and browser are released on every exit path.
func (r *ScenarioRunner) Run(ctx context.Context, scenario flow.Scenario) (result core.ScenarioResult, err error) {
	cfg := r.config
	art := cfg.artifacts()
	state := ScenarioNotStarted

	start := r.clock()
	result = core.ScenarioResult{
		Scenario:    scenario.Name,
		Passed:      true,
		StartTime:   start.UnixMilli(),
		Steps:       []core.StepResult{},
		Errors:      []core.StepError{},
		Screenshots: []string{},
	}

	if err := os.MkdirAll(art.ScreenshotDir, 0o755); err != nil {
		return result, core.ErrSessionFailed.WithMessage("could not create screenshot directory").WithCause(err)
	}
	if dir := art.VideoDirOrEmpty(); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return result, core.ErrSessionFailed.WithMessage("could not create video directory").WithCause(err)
		}
	}

	browser, err := r.launcher.Launch(ctx, core.LaunchOptions{Headless: cfg.Headless, ExecPath: cfg.ExecPath})
	if err != nil {
		return result, core.ErrSessionFailed.WithMessage("could not launch browser").WithCause(err)
	}
	defer func() {
		if cerr := browser.Close(); cerr != nil {
			logger.Warn("closing browser for %s: %v", scenario.Name, cerr)
		}
	}()

	sess, err := browser.NewSession(ctx, core.SessionOptions{
		Viewport: cfg.Viewport,
		VideoDir: art.VideoDirOrEmpty(),
	})
	if err != nil {
		return result, core.ErrSessionFailed.WithCause(err)
	}
	defer func() {
		end := r.clock()
		result.EndTime = end.UnixMilli()
		result.Duration = end.Sub(start).Milliseconds()
		if art.RecordVideo {
			if p, verr := sess.VideoPath(); verr != nil {
				logger.Warn("video path for %s: %v", scenario.Name, verr)
			} else if p != "" {
				result.Video = &p
			}
		}
		if cerr := sess.Close(); cerr != nil {
			logger.Warn("closing session for %s: %v", scenario.Name, cerr)
		}
		logger.Info("scenario %s %s (%dms)", scenario.Name, state, result.Duration)
	}()

	exec := &StepExecutor{
		Dispatcher:     cfg.dispatcher(),
		Script:         NewScriptEngine(cfg.Env),
		Scenario:       scenario.Name,
		ScreenshotDir:  art.ScreenshotDir,
		CaptureTimeout: cfg.Timeout,
		now:            r.now,
	}

	// a panicking step ends the scenario but keeps what ran before it
	current := 0
	defer func() {
		p := recover()
		if p == nil {
			return
		}
		if current == 0 {
			panic(p)
		}
		logger.Error("scenario %s panicked at step %d: %v", scenario.Name, current, p)
		msg := fmt.Sprintf("panic: %v", p)
		step := scenario.Steps[current-1]
		if len(result.Steps) < current {
			result.Steps = append(result.Steps, core.StepResult{
				Index:    current,
				Action:   step.Action,
				Params:   step.Params(),
				Status:   core.StatusFailed,
				Error:    msg,
				Category: core.ErrCategoryAction,
			})
		}
		result.Errors = append(result.Errors, core.StepError{Step: current, Action: step.Action, Error: msg})
		result.Passed = false
		state = ScenarioFailed
		err = nil
	}()

	state = ScenarioRunning
	logger.Info("scenario %s started (%d steps)", scenario.Name, len(scenario.Steps))

	for i, step := range scenario.Steps {
		idx := i + 1
		current = idx
		sr, shots := exec.Execute(ctx, sess, idx, step)
		result.Steps = append(result.Steps, sr)
		result.Screenshots = append(result.Screenshots, shots...)

		if cfg.OnStepComplete != nil {
			cfg.OnStepComplete(idx, step.Describe(), sr.Status == core.StatusPassed, sr.Duration, sr.Error)
		}

		if sr.Status == core.StatusFailed {
			result.Passed = false
			result.Errors = append(result.Errors, core.StepError{Step: idx, Action: step.Action, Error: sr.Error})
			if !cfg.ContinueOnError {
				break
			}
		}
	}

	if result.Passed {
		state = ScenarioPassed
	} else {
		state = ScenarioFailed
	}
	return result, nil
}

func (r *ScenarioRunner) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}
