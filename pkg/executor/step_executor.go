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

// StepExecutor runs one step at a time for a single scenario.
type StepExecutor struct {
	Dispatcher    *Dispatcher
	Script        *ScriptEngine // Optional; nil disables variable expansion
	Scenario      string        // Used to name failure screenshots
	ScreenshotDir string
	// CaptureTimeout bounds the failure screenshot.
	CaptureTimeout time.Duration

	now func() time.Time
}

// Execute runs step (1-based position idx) and returns exactly one result
// plus the screenshots it produced.
func (e *StepExecutor) Execute(ctx context.Context, sess core.Session, idx int, step flow.Step) (core.StepResult, []string) {
	result := core.StepResult{
		Index:  idx,
		Action: step.Action,
		Params: step.Params(),
		Status: core.StatusRunning,
	}

	run := step
	if e.Script != nil {
		run = e.Script.ExpandStep(step)
	}

	start := e.clock()
	out, err := e.Dispatcher.Dispatch(ctx, sess, idx, run)
	result.Duration = e.clock().Sub(start).Milliseconds()

	var shots []string
	if err == nil {
		result.Status = core.StatusPassed
		if out.Screenshot != "" {
			shots = append(shots, out.Screenshot)
		}
		logger.Info("step %d passed: %s (%dms)", idx, run.Describe(), result.Duration)
		return result, shots
	}

	result.Status = core.StatusFailed
	result.Error = err.Error()
	result.Category = core.CategoryOf(err)
	logger.Error("step %d failed: %s [%s]: %v", idx, run.Describe(), result.Category, err)

	if path, capErr := e.captureFailure(ctx, sess, idx); capErr != nil {
		logger.Warn("could not take error screenshot: %v", capErr)
	} else {
		shots = append(shots, path)
	}
	return result, shots
}

// captureFailure takes the post-failure screenshot. Its errors, panics
// included, are returned for logging and never affect the step result.
func (e *StepExecutor) captureFailure(ctx context.Context, sess core.Session, idx int) (path string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = core.ErrCaptureFailed.WithCause(fmt.Errorf("panic: %v", r))
		}
	}()

	timeout := e.CaptureTimeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	// the step may have failed because ctx was cancelled
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	path = core.FailureScreenshotPath(e.ScreenshotDir, e.Scenario, idx, e.clock())
	if e.ScreenshotDir != "" {
		if err := os.MkdirAll(e.ScreenshotDir, 0o755); err != nil {
			return "", core.ErrCaptureFailed.WithCause(err)
		}
	}
	if err := sess.Screenshot(cctx, path, true); err != nil {
		return "", core.ErrCaptureFailed.WithCause(err)
	}
	return path, nil
}

func (e *StepExecutor) clock() time.Time {
	if e.now != nil {
		return e.now()
	}
	return time.Now()
}
