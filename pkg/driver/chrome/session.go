package chrome

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

const (
	pollInterval      = 100 * time.Millisecond
	networkIdleWindow = 500 * time.Millisecond
	dragSteps         = 5
)

// Session is one Chrome tab. It implements core.Session.
type Session struct {
	ctx    context.Context // chromedp target context of the tab
	cancel context.CancelFunc
	rec    *recorder

	closeOnce sync.Once
}

// run executes actions on the tab, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := bind(s.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// eval evaluates expr and decodes its result into out.
func (s *Session) eval(ctx context.Context, expr string, out interface{}) error {
	return s.run(ctx, chromedp.Evaluate(expr, out))
}

func (s *Session) pageState(ctx context.Context) (pageInfo, error) {
	var info pageInfo
	err := s.eval(ctx, pageStateScript, &info)
	return info, err
}

// Navigate loads url and waits for the given load state.
func (s *Session) Navigate(ctx context.Context, url string, wait core.LoadState) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return err
	}
	return s.WaitForLoadState(ctx, wait)
}

func (s *Session) Reload(ctx context.Context, wait core.LoadState) error {
	if err := s.run(ctx, chromedp.Reload()); err != nil {
		return err
	}
	return s.WaitForLoadState(ctx, wait)
}

func (s *Session) GoBack(ctx context.Context, wait core.LoadState) error {
	if err := s.run(ctx, chromedp.NavigateBack()); err != nil {
		return err
	}
	return s.WaitForLoadState(ctx, wait)
}

func (s *Session) GoForward(ctx context.Context, wait core.LoadState) error {
	if err := s.run(ctx, chromedp.NavigateForward()); err != nil {
		return err
	}
	return s.WaitForLoadState(ctx, wait)
}

// WaitForNavigation waits until the current document is replaced or its URL
// changes, then for the new page to load.
func (s *Session) WaitForNavigation(ctx context.Context) error {
	var start string
	if err := s.run(ctx, chromedp.Evaluate(markPageScript, nil), chromedp.Location(&start)); err != nil {
		return err
	}
	err := poll(ctx, func() (bool, error) {
		info, err := s.pageState(ctx)
		if err != nil {
			// the old document may be gone mid-check
			return false, ctx.Err()
		}
		return !info.Marked || info.Href != start, nil
	})
	if err != nil {
		return err
	}
	return s.WaitForLoadState(ctx, core.LoadStateLoad)
}

// WaitForURL waits until the page URL matches pattern, a literal URL or a
// glob where * stays within a path segment and ** crosses segments.
func (s *Session) WaitForURL(ctx context.Context, pattern string) error {
	return poll(ctx, func() (bool, error) {
		var url string
		if err := s.run(ctx, chromedp.Location(&url)); err != nil {
			return false, ctx.Err()
		}
		return core.MatchURL(pattern, url), nil
	})
}

// WaitForLoadState waits for a readyState milestone. networkidle also
// requires no new resource entries for networkIdleWindow.
func (s *Session) WaitForLoadState(ctx context.Context, state core.LoadState) error {
	lastCount := -1
	var quietSince time.Time
	return poll(ctx, func() (bool, error) {
		info, err := s.pageState(ctx)
		if err != nil {
			return false, ctx.Err()
		}
		switch state {
		case core.LoadStateDOMContentLoaded:
			return info.Ready == "interactive" || info.Ready == "complete", nil
		case core.LoadStateLoad:
			return info.Ready == "complete", nil
		default:
			if info.Ready != "complete" {
				lastCount = -1
				return false, nil
			}
			if info.Resources != lastCount {
				lastCount = info.Resources
				quietSince = time.Now()
				return false, nil
			}
			return time.Since(quietSince) >= networkIdleWindow, nil
		}
	})
}

// WaitForSelector waits until the first match of selector reaches state.
func (s *Session) WaitForSelector(ctx context.Context, selector string, state core.ElementState) error {
	switch state {
	case core.StateAttached:
		return s.run(ctx, chromedp.WaitReady(selector, chromedp.ByQuery))
	case core.StateDetached:
		return s.run(ctx, chromedp.WaitNotPresent(selector, chromedp.ByQuery))
	case core.StateHidden:
		return poll(ctx, func() (bool, error) {
			var info elementInfo
			if err := s.eval(ctx, visibilityScript(selector), &info); err != nil {
				return false, err
			}
			return !info.Visible, nil
		})
	default:
		return s.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
	}
}

// Locate returns a locator for selector. Nothing is queried until an
// action runs.
func (s *Session) Locate(selector string) core.Locator {
	return &locator{s: s, selector: selector}
}

// KeyboardPress sends a key or combination such as "Enter" or "Control+A"
// to the focused element.
func (s *Session) KeyboardPress(ctx context.Context, key string) error {
	seq, mods, err := parseKey(key)
	if err != nil {
		return err
	}
	return s.run(ctx, chromedp.KeyEvent(seq, chromedp.KeyModifiers(mods)))
}

// SetInputFiles attaches files to the file input matching selector.
func (s *Session) SetInputFiles(ctx context.Context, selector string, files []string) error {
	abs := make([]string, len(files))
	for i, f := range files {
		p, err := filepath.Abs(f)
		if err != nil {
			return err
		}
		abs[i] = p
	}
	return s.run(ctx, chromedp.SetUploadFiles(selector, abs, chromedp.ByQuery))
}

// DragAndDrop presses the mouse on source, moves to target and releases.
func (s *Session) DragAndDrop(ctx context.Context, source, target string) error {
	from, err := s.center(ctx, source)
	if err != nil {
		return err
	}
	to, err := s.center(ctx, target)
	if err != nil {
		return err
	}

	actions := []chromedp.Action{
		chromedp.MouseEvent(input.MouseMoved, from.X, from.Y),
		chromedp.MouseEvent(input.MousePressed, from.X, from.Y, chromedp.ButtonType(input.Left), chromedp.ClickCount(1)),
	}
	for i := 1; i <= dragSteps; i++ {
		x := from.X + (to.X-from.X)*float64(i)/dragSteps
		y := from.Y + (to.Y-from.Y)*float64(i)/dragSteps
		actions = append(actions, chromedp.MouseEvent(input.MouseMoved, x, y, chromedp.ButtonType(input.Left)))
	}
	actions = append(actions,
		chromedp.MouseEvent(input.MouseReleased, to.X, to.Y, chromedp.ButtonType(input.Left), chromedp.ClickCount(1)))
	return s.run(ctx, actions...)
}

func (s *Session) center(ctx context.Context, selector string) (elementInfo, error) {
	var info elementInfo
	if err := s.eval(ctx, centerScript(selector), &info); err != nil {
		return info, err
	}
	if !info.Found {
		return info, notFound(selector)
	}
	return info, nil
}

// Evaluate runs script in the page, awaiting a returned promise. Undefined
// and null results are returned as nil.
func (s *Session) Evaluate(ctx context.Context, script string) (interface{}, error) {
	var res interface{}
	err := s.run(ctx, chromedp.Evaluate(script, &res, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithAwaitPromise(true)
	}))
	if errors.Is(err, chromedp.ErrJSUndefined) || errors.Is(err, chromedp.ErrJSNull) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Screenshot writes a PNG of the viewport, or of the whole page when
// fullPage is set.
func (s *Session) Screenshot(ctx context.Context, path string, fullPage bool) error {
	var buf []byte
	var action chromedp.Action = chromedp.CaptureScreenshot(&buf)
	if fullPage {
		action = chromedp.FullScreenshot(&buf, 100)
	}
	if err := s.run(ctx, action); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf, 0o644)
}

// VideoPath returns the screencast frame directory, or "" when the session
// is not recording.
func (s *Session) VideoPath() (string, error) {
	if s.rec == nil {
		return "", nil
	}
	return s.rec.dir, nil
}

// Close stops recording and closes the tab.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		if s.rec != nil {
			s.rec.stop(s.ctx)
		}
		s.cancel()
	})
	return nil
}

func notFound(selector string) error {
	return core.ErrElementNotFound.WithMessagef("element not found: %s", selector)
}

// poll calls check every pollInterval until it reports done, fails, or ctx
// ends.
func poll(ctx context.Context, check func() (bool, error)) error {
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

var _ core.Session = (*Session)(nil)
