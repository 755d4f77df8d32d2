package executor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// Per-action defaults.
const (
	defaultTypeDelay    = 50 * time.Millisecond
	defaultWaitDuration = 1000 * time.Millisecond
	scrollStep          = 500
)

// Outcome carries what a dispatched step produced besides success.
type Outcome struct {
	Screenshot string // Path written by a screenshot step
}

// Dispatcher maps each action kind to one browser operation. It holds no
// state between steps.
type Dispatcher struct {
	BaseURL       string
	Timeout       time.Duration // Used when the step sets no timeout
	ScreenshotDir string
}

// Dispatch performs step against sess. index is the 1-based step position,
// used to name screenshots.
func (d *Dispatcher) Dispatch(ctx context.Context, sess core.Session, index int, step flow.Step) (Outcome, error) {
	timeout := d.timeoutFor(step)
	out, err := d.dispatch(ctx, sess, index, step, timeout)
	return out, classify(step, timeout, err)
}

func (d *Dispatcher) timeoutFor(step flow.Step) time.Duration {
	if step.TimeoutMs > 0 {
		return time.Duration(step.TimeoutMs) * time.Millisecond
	}
	if d.Timeout > 0 {
		return d.Timeout
	}
	return DefaultTimeout
}

func (d *Dispatcher) dispatch(ctx context.Context, sess core.Session, index int, step flow.Step, timeout time.Duration) (Outcome, error) {
	var out Outcome

	if !step.Action.IsKnown() {
		return out, core.ErrUnknownAction.WithMessagef("unknown action: %s", step.Action)
	}
	if err := step.ParamError(); err != nil {
		return out, core.ErrInvalidParam.WithMessagef("%s: %v", step.Action, err)
	}

	// wait is bounded by its own duration, not the step timeout
	if step.Action == flow.ActionWait {
		return out, sleep(ctx, step)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch step.Action {
	// Navigation
	case flow.ActionNavigate:
		if err := require(step, "url", step.URL); err != nil {
			return out, err
		}
		return out, sess.Navigate(ctx, d.resolveURL(step.URL), core.LoadStateNetworkIdle)
	case flow.ActionReload:
		return out, sess.Reload(ctx, core.LoadStateNetworkIdle)
	case flow.ActionGoBack:
		return out, sess.GoBack(ctx, core.LoadStateNetworkIdle)
	case flow.ActionGoForward:
		return out, sess.GoForward(ctx, core.LoadStateNetworkIdle)
	case flow.ActionWaitForNavigation:
		return out, sess.WaitForNavigation(ctx)
	case flow.ActionWaitForURL:
		if err := require(step, "url", step.URL); err != nil {
			return out, err
		}
		return out, sess.WaitForURL(ctx, step.URL)
	case flow.ActionWaitForLoadState:
		state, err := loadState(step)
		if err != nil {
			return out, err
		}
		return out, sess.WaitForLoadState(ctx, state)

	// Element interaction
	case flow.ActionClick:
		return out, withElement(ctx, sess, step, core.Locator.Click)
	case flow.ActionDoubleClick:
		return out, withElement(ctx, sess, step, core.Locator.DoubleClick)
	case flow.ActionHover:
		return out, withElement(ctx, sess, step, core.Locator.Hover)
	case flow.ActionFocus:
		return out, withElement(ctx, sess, step, core.Locator.Focus)
	case flow.ActionCheck:
		return out, withElement(ctx, sess, step, core.Locator.Check)
	case flow.ActionUncheck:
		return out, withElement(ctx, sess, step, core.Locator.Uncheck)
	case flow.ActionClear:
		return out, withElement(ctx, sess, step, func(l core.Locator, ctx context.Context) error {
			return l.Fill(ctx, "")
		})
	case flow.ActionType:
		if err := require(step, "text", step.Text); err != nil {
			return out, err
		}
		delay := defaultTypeDelay
		if step.DelayMs != nil {
			delay = time.Duration(*step.DelayMs) * time.Millisecond
		}
		return out, withElement(ctx, sess, step, func(l core.Locator, ctx context.Context) error {
			return l.Type(ctx, step.Text, delay)
		})
	case flow.ActionFill:
		if step.Value == nil {
			return out, missing(step, "value")
		}
		return out, withElement(ctx, sess, step, func(l core.Locator, ctx context.Context) error {
			return l.Fill(ctx, *step.Value)
		})
	case flow.ActionSelect:
		if step.Value == nil {
			return out, missing(step, "value")
		}
		return out, withElement(ctx, sess, step, func(l core.Locator, ctx context.Context) error {
			return l.SelectOption(ctx, *step.Value)
		})
	case flow.ActionUpload:
		if len(step.Files) == 0 {
			return out, missing(step, "files")
		}
		return out, withElement(ctx, sess, step, func(_ core.Locator, ctx context.Context) error {
			return sess.SetInputFiles(ctx, step.Selector, step.Files)
		})
	case flow.ActionBlur:
		if err := require(step, "selector", step.Selector); err != nil {
			return out, err
		}
		return out, sess.Locate(step.Selector).Blur(ctx)
	case flow.ActionDrag:
		if err := require(step, "source", step.Source); err != nil {
			return out, err
		}
		if err := require(step, "target", step.Target); err != nil {
			return out, err
		}
		return out, sess.DragAndDrop(ctx, step.Source, step.Target)
	case flow.ActionScroll:
		return out, scroll(ctx, sess, step)
	case flow.ActionWaitFor:
		if err := require(step, "selector", step.Selector); err != nil {
			return out, err
		}
		state, err := elementState(step)
		if err != nil {
			return out, err
		}
		return out, sess.WaitForSelector(ctx, step.Selector, state)

	// Keyboard
	case flow.ActionPress:
		if err := require(step, "key", step.Key); err != nil {
			return out, err
		}
		return out, sess.KeyboardPress(ctx, step.Key)

	// Assertions & media
	case flow.ActionAssert:
		if err := require(step, "selector", step.Selector); err != nil {
			return out, err
		}
		return out, assert(ctx, sess, step)
	case flow.ActionScreenshot:
		path := core.StepScreenshotPath(d.ScreenshotDir, step.Name, index)
		if err := sess.Screenshot(ctx, path, step.FullPage); err != nil {
			return out, err
		}
		out.Screenshot = path
		return out, nil

	// Other
	case flow.ActionEvaluate:
		if err := require(step, "script", step.Script); err != nil {
			return out, err
		}
		_, err := sess.Evaluate(ctx, step.Script)
		return out, err

	default:
		return out, core.ErrUnknownAction.WithMessagef("unknown action: %s", step.Action)
	}
}

// resolveURL prefixes relative URLs with the base URL.
func (d *Dispatcher) resolveURL(url string) string {
	if strings.HasPrefix(url, "http") {
		return url
	}
	return d.BaseURL + url
}

// withElement waits for the step's selector to be visible, then acts on it.
func withElement(ctx context.Context, sess core.Session, step flow.Step, act func(core.Locator, context.Context) error) error {
	if err := require(step, "selector", step.Selector); err != nil {
		return err
	}
	if err := sess.WaitForSelector(ctx, step.Selector, core.StateVisible); err != nil {
		return err
	}
	return act(sess.Locate(step.Selector), ctx)
}

func scroll(ctx context.Context, sess core.Session, step flow.Step) error {
	switch {
	case step.Selector != "":
		return sess.Locate(step.Selector).ScrollIntoView(ctx)
	case step.Position != nil:
		_, err := sess.Evaluate(ctx, fmt.Sprintf("window.scrollTo(%s, %s)",
			formatNumber(step.Position.X), formatNumber(step.Position.Y)))
		return err
	default:
		delta := scrollStep
		if step.Direction == "up" {
			delta = -scrollStep
		}
		_, err := sess.Evaluate(ctx, fmt.Sprintf("window.scrollBy(0, %d)", delta))
		return err
	}
}

func sleep(ctx context.Context, step flow.Step) error {
	d := defaultWaitDuration
	if step.DurationMs > 0 {
		d = time.Duration(step.DurationMs) * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func loadState(step flow.Step) (core.LoadState, error) {
	switch s := core.LoadState(step.State); s {
	case "":
		return core.LoadStateNetworkIdle, nil
	case core.LoadStateDOMContentLoaded, core.LoadStateLoad, core.LoadStateNetworkIdle:
		return s, nil
	default:
		return "", invalid(step, "state", step.State)
	}
}

func elementState(step flow.Step) (core.ElementState, error) {
	switch s := core.ElementState(step.State); s {
	case "":
		return core.StateVisible, nil
	case core.StateAttached, core.StateDetached, core.StateVisible, core.StateHidden:
		return s, nil
	default:
		return "", invalid(step, "state", step.State)
	}
}

func require(step flow.Step, name, value string) error {
	if value == "" {
		return missing(step, name)
	}
	return nil
}

func missing(step flow.Step, name string) error {
	return core.ErrMissingParam.WithMessagef("%s: missing required parameter %q", step.Action, name)
}

func invalid(step flow.Step, name, value string) error {
	return core.ErrInvalidParam.WithMessagef("%s: invalid %s %q", step.Action, name, value)
}

func formatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// classify turns a raw browser error into a categorized ExecutionError.
// Assertion, config and unknown-action errors pass through unchanged.
func classify(step flow.Step, timeout time.Duration, err error) error {
	if err == nil {
		return nil
	}
	var execErr *core.ExecutionError
	if errors.As(err, &execErr) && execErr.Category != core.ErrCategoryAction {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return core.ErrTimeout.
			WithMessagef("%s: timed out after %dms", step.Describe(), timeout.Milliseconds()).
			WithCause(err)
	}
	return core.ErrActionFailed.WithMessage(step.Describe()).WithCause(err)
}
