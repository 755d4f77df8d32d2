package executor

import (
	"context"
	"strings"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// assert runs every check the step sets, in a fixed order, and fails on
// the first one that does not hold.
func assert(ctx context.Context, sess core.Session, step flow.Step) error {
	loc := sess.Locate(step.Selector)
	checks := 0

	if step.Contains != "" {
		checks++
		if err := sess.WaitForSelector(ctx, step.Selector, core.StateVisible); err != nil {
			return err
		}
		text, err := loc.Text(ctx)
		if err != nil {
			return err
		}
		if !strings.Contains(text, step.Contains) {
			return core.ErrAssertionFailed.WithMessagef(
				"expected text %q not found in %q", step.Contains, text)
		}
	}

	if step.Visible != nil {
		checks++
		visible, err := loc.IsVisible(ctx)
		if err != nil {
			return err
		}
		if visible != *step.Visible {
			return core.ErrAssertionFailed.WithMessagef(
				"expected element %s visibility: %t, got: %t", step.Selector, *step.Visible, visible)
		}
	}

	if step.Count != nil {
		checks++
		count, err := loc.Count(ctx)
		if err != nil {
			return err
		}
		if count != *step.Count {
			return core.ErrAssertionFailed.WithMessagef(
				"expected %d elements matching %s, found %d", *step.Count, step.Selector, count)
		}
	}

	if step.Value != nil {
		checks++
		value, err := loc.InputValue(ctx)
		if err != nil {
			return err
		}
		if value != *step.Value {
			return core.ErrAssertionFailed.WithMessagef(
				"expected input value %q, got %q", *step.Value, value)
		}
	}

	if step.Attribute != "" {
		checks++
		value, ok, err := loc.Attribute(ctx, step.Attribute)
		if err != nil {
			return err
		}
		switch {
		case !ok:
			return core.ErrAssertionFailed.WithMessagef(
				"expected attribute %s on %s, attribute is absent", step.Attribute, step.Selector)
		case step.ExpectedValue != nil && value != *step.ExpectedValue:
			return core.ErrAssertionFailed.WithMessagef(
				"expected attribute %s=%q, got %q", step.Attribute, *step.ExpectedValue, value)
		}
	}

	if checks == 0 {
		return core.ErrMissingParam.WithMessage(
			"assert: no check given (contains, visible, count, value or attribute)")
	}
	return nil
}
