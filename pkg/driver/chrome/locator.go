package chrome

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

// locator implements core.Locator for the first element matching a CSS
// selector.
type locator struct {
	s        *Session
	selector string
}

// info runs an element script and fails when the element is absent.
func (l *locator) info(ctx context.Context, script string) (elementInfo, error) {
	var info elementInfo
	if err := l.s.eval(ctx, script, &info); err != nil {
		return info, err
	}
	if !info.Found {
		return info, notFound(l.selector)
	}
	return info, nil
}

func (l *locator) Click(ctx context.Context) error {
	return l.s.run(ctx, chromedp.Click(l.selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (l *locator) DoubleClick(ctx context.Context) error {
	return l.s.run(ctx, chromedp.DoubleClick(l.selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (l *locator) Hover(ctx context.Context) error {
	c, err := l.s.center(ctx, l.selector)
	if err != nil {
		return err
	}
	return l.s.run(ctx, chromedp.MouseEvent(input.MouseMoved, c.X, c.Y))
}

func (l *locator) Focus(ctx context.Context) error {
	return l.s.run(ctx, chromedp.Focus(l.selector, chromedp.ByQuery))
}

// Blur removes focus from the element; a missing element is not an error.
func (l *locator) Blur(ctx context.Context) error {
	var info elementInfo
	return l.s.eval(ctx, blurScript(l.selector), &info)
}

// Fill replaces the element's value in one step.
func (l *locator) Fill(ctx context.Context, value string) error {
	if err := l.Focus(ctx); err != nil {
		return err
	}
	_, err := l.info(ctx, fillScript(l.selector, value))
	return err
}

// Type focuses the element and sends text one character at a time,
// pausing delay between characters.
func (l *locator) Type(ctx context.Context, text string, delay time.Duration) error {
	if err := l.Focus(ctx); err != nil {
		return err
	}
	first := true
	for _, r := range text {
		if !first && delay > 0 {
			if err := sleepCtx(ctx, delay); err != nil {
				return err
			}
		}
		first = false
		if err := l.s.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
	}
	return nil
}

func (l *locator) Check(ctx context.Context) error {
	return l.setChecked(ctx, true)
}

func (l *locator) Uncheck(ctx context.Context) error {
	return l.setChecked(ctx, false)
}

// setChecked clicks the element when its checked state differs from want
// and verifies the click took effect.
func (l *locator) setChecked(ctx context.Context, want bool) error {
	info, err := l.info(ctx, checkedScript(l.selector))
	if err != nil {
		return err
	}
	if info.Checked == want {
		return nil
	}
	if err := l.Click(ctx); err != nil {
		return err
	}
	if info, err = l.info(ctx, checkedScript(l.selector)); err != nil {
		return err
	}
	if info.Checked != want {
		return fmt.Errorf("clicking %s did not change its checked state", l.selector)
	}
	return nil
}

// SelectOption selects the option whose value, or failing that label,
// equals value.
func (l *locator) SelectOption(ctx context.Context, value string) error {
	info, err := l.info(ctx, selectScript(l.selector, value))
	if err != nil {
		return err
	}
	if !info.OK {
		return fmt.Errorf("no option %q in %s", value, l.selector)
	}
	return nil
}

func (l *locator) ScrollIntoView(ctx context.Context) error {
	return l.s.run(ctx, chromedp.ScrollIntoView(l.selector, chromedp.ByQuery))
}

// Text returns the element's textContent.
func (l *locator) Text(ctx context.Context) (string, error) {
	info, err := l.info(ctx, textScript(l.selector))
	return info.Value, err
}

// Attribute reports the attribute value and whether it is present.
func (l *locator) Attribute(ctx context.Context, name string) (string, bool, error) {
	info, err := l.info(ctx, attributeScript(l.selector, name))
	return info.Value, info.Present, err
}

func (l *locator) InputValue(ctx context.Context) (string, error) {
	info, err := l.info(ctx, inputValueScript(l.selector))
	return info.Value, err
}

// IsVisible never waits; a missing element is not visible.
func (l *locator) IsVisible(ctx context.Context) (bool, error) {
	var info elementInfo
	if err := l.s.eval(ctx, visibilityScript(l.selector), &info); err != nil {
		return false, err
	}
	return info.Visible, nil
}

func (l *locator) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.s.eval(ctx, countScript(l.selector), &n); err != nil {
		return 0, err
	}
	return n, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ core.Locator = (*locator)(nil)
