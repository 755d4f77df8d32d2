// Package mock provides an in-memory browser for tests and dry runs.
package mock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/jsengine"
)

// pollInterval is how often waits re-check the page model.
const pollInterval = 10 * time.Millisecond

// Config configures mock browser behavior.
type Config struct {
	// Setup populates the page of every new session. nil leaves it empty.
	Setup func(p *Page)
	// LaunchError and SessionError make Launch / NewSession fail.
	LaunchError  error
	SessionError error
	// FailScreenshot makes every Screenshot call fail.
	FailScreenshot bool
	// ActionDelay adds artificial delay to every page operation.
	ActionDelay time.Duration
}

// Launcher is a mock implementation of core.Launcher.
type Launcher struct {
	Config Config

	mu       sync.Mutex
	browsers []*Browser
	sessions []*Session
}

// New creates a new mock launcher.
func New(cfg Config) *Launcher {
	return &Launcher{Config: cfg}
}

// Launch starts a mock browser.
func (l *Launcher) Launch(ctx context.Context, opts core.LaunchOptions) (core.Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if l.Config.LaunchError != nil {
		return nil, l.Config.LaunchError
	}
	b := &Browser{launcher: l, Options: opts}
	l.mu.Lock()
	l.browsers = append(l.browsers, b)
	l.mu.Unlock()
	return b, nil
}

// Browsers returns every browser launched so far.
func (l *Launcher) Browsers() []*Browser {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Browser(nil), l.browsers...)
}

// Sessions returns every session opened so far, in order.
func (l *Launcher) Sessions() []*Session {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Session(nil), l.sessions...)
}

// Browser is a mock implementation of core.Browser.
type Browser struct {
	Options core.LaunchOptions

	launcher *Launcher
	mu       sync.Mutex
	closed   bool
}

// NewSession opens a session on a fresh page.
func (b *Browser) NewSession(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.launcher.Config.SessionError != nil {
		return nil, b.launcher.Config.SessionError
	}

	page := NewPage()
	if b.launcher.Config.Setup != nil {
		b.launcher.Config.Setup(page)
	}
	js, err := newPageScript(page)
	if err != nil {
		return nil, err
	}

	l := b.launcher
	l.mu.Lock()
	s := &Session{
		Page:    page,
		Options: opts,
		id:      len(l.sessions) + 1,
		cfg:     l.Config,
		js:      js,
	}
	l.sessions = append(l.sessions, s)
	l.mu.Unlock()
	return s, nil
}

// Close marks the browser closed. Safe to call more than once.
func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Closed reports whether Close was called.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Session is a mock implementation of core.Session backed by a Page.
type Session struct {
	Page    *Page
	Options core.SessionOptions

	id  int
	cfg Config
	js  *jsengine.Engine

	mu     sync.Mutex
	closed bool
}

// begin records the call, applies ActionDelay and returns any injected error.
func (s *Session) begin(ctx context.Context, method, arg string) error {
	s.Page.record(method, arg)

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return fmt.Errorf("%s: session closed", method)
	}

	if s.cfg.ActionDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.ActionDelay):
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Page.injected(method, arg)
}

// Navigate loads url into the page history.
func (s *Session) Navigate(ctx context.Context, url string, wait core.LoadState) error {
	if err := s.begin(ctx, "navigate", url); err != nil {
		return err
	}
	s.Page.navigate(url)
	return nil
}

// Reload keeps the current URL.
func (s *Session) Reload(ctx context.Context, wait core.LoadState) error {
	return s.begin(ctx, "reload", "")
}

// GoBack moves one entry back in history, if possible.
func (s *Session) GoBack(ctx context.Context, wait core.LoadState) error {
	if err := s.begin(ctx, "goBack", ""); err != nil {
		return err
	}
	s.Page.move(-1)
	return nil
}

// GoForward moves one entry forward in history, if possible.
func (s *Session) GoForward(ctx context.Context, wait core.LoadState) error {
	if err := s.begin(ctx, "goForward", ""); err != nil {
		return err
	}
	s.Page.move(1)
	return nil
}

// WaitForNavigation returns once the page has navigated at least once.
func (s *Session) WaitForNavigation(ctx context.Context) error {
	if err := s.begin(ctx, "waitForNavigation", ""); err != nil {
		return err
	}
	return s.poll(ctx, "navigation", func() bool { return s.Page.URL() != "" })
}

// WaitForURL polls until the current URL matches pattern.
func (s *Session) WaitForURL(ctx context.Context, pattern string) error {
	if err := s.begin(ctx, "waitForURL", pattern); err != nil {
		return err
	}
	return s.poll(ctx, "URL "+pattern, func() bool { return core.MatchURL(pattern, s.Page.URL()) })
}

// WaitForLoadState returns immediately; mock pages are always loaded.
func (s *Session) WaitForLoadState(ctx context.Context, state core.LoadState) error {
	return s.begin(ctx, "waitForLoadState", string(state))
}

// WaitForSelector polls until the element reaches state.
func (s *Session) WaitForSelector(ctx context.Context, selector string, state core.ElementState) error {
	if err := s.begin(ctx, "waitForSelector", selector); err != nil {
		return err
	}
	return s.poll(ctx, fmt.Sprintf("selector %s to be %s", selector, state), func() bool {
		el, ok := s.Page.Element(selector)
		switch state {
		case core.StateAttached:
			return ok
		case core.StateDetached:
			return !ok
		case core.StateHidden:
			return !ok || el.Hidden
		default:
			return ok && !el.Hidden
		}
	})
}

func (s *Session) poll(ctx context.Context, what string, cond func() bool) error {
	if cond() {
		return nil
	}
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %s: %w", what, ctx.Err())
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}

// Locate returns a locator for selector.
func (s *Session) Locate(selector string) core.Locator {
	return &Locator{session: s, selector: selector}
}

// KeyboardPress records the key.
func (s *Session) KeyboardPress(ctx context.Context, key string) error {
	if err := s.begin(ctx, "press", key); err != nil {
		return err
	}
	s.Page.press(key)
	return nil
}

// SetInputFiles attaches files to the element.
func (s *Session) SetInputFiles(ctx context.Context, selector string, files []string) error {
	if err := s.begin(ctx, "upload", selector); err != nil {
		return err
	}
	return s.Page.update(selector, func(el *Element) { el.Files = append([]string(nil), files...) })
}

// DragAndDrop requires both elements to exist.
func (s *Session) DragAndDrop(ctx context.Context, source, target string) error {
	if err := s.begin(ctx, "drag", source+" -> "+target); err != nil {
		return err
	}
	if _, ok := s.Page.Element(source); !ok {
		return notFound(source)
	}
	if _, ok := s.Page.Element(target); !ok {
		return notFound(target)
	}
	s.Page.fire(s.Page.onDrop, source+" -> "+target)
	return nil
}

// Evaluate runs script in the page's JavaScript runtime.
func (s *Session) Evaluate(ctx context.Context, script string) (interface{}, error) {
	if err := s.begin(ctx, "evaluate", script); err != nil {
		return nil, err
	}
	return s.js.Eval(script)
}

// ScrollPosition returns the page scroll offsets set by scripts.
func (s *Session) ScrollPosition() (x, y float64) {
	v, err := s.js.Eval("[window.scrollX, window.scrollY]")
	if err != nil {
		return 0, 0
	}
	pair, ok := v.([]interface{})
	if !ok || len(pair) != 2 {
		return 0, 0
	}
	return toFloat(pair[0]), toFloat(pair[1])
}

// Screenshot writes a 1x1 PNG to path.
func (s *Session) Screenshot(ctx context.Context, path string, fullPage bool) error {
	if err := s.begin(ctx, "screenshot", path); err != nil {
		return err
	}
	if s.cfg.FailScreenshot {
		return fmt.Errorf("mock screenshot failure")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, pngPixel, 0o644)
}

// VideoPath returns a per-session path under the video directory.
func (s *Session) VideoPath() (string, error) {
	if s.Options.VideoDir == "" {
		return "", nil
	}
	return filepath.Join(s.Options.VideoDir, fmt.Sprintf("session-%d", s.id)), nil
}

// Close marks the session closed. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Locator is a mock implementation of core.Locator.
type Locator struct {
	session  *Session
	selector string
}

func (l *Locator) act(ctx context.Context, method string, fn func(el *Element)) error {
	if err := l.session.begin(ctx, method, l.selector); err != nil {
		return err
	}
	if fn == nil {
		fn = func(*Element) {}
	}
	return l.session.Page.update(l.selector, fn)
}

// Click fires the element's click handler.
func (l *Locator) Click(ctx context.Context) error {
	if err := l.act(ctx, "click", nil); err != nil {
		return err
	}
	l.session.Page.fire(l.session.Page.onClick, l.selector)
	return nil
}

// DoubleClick fires the click handler twice.
func (l *Locator) DoubleClick(ctx context.Context) error {
	if err := l.act(ctx, "doubleClick", nil); err != nil {
		return err
	}
	l.session.Page.fire(l.session.Page.onClick, l.selector)
	l.session.Page.fire(l.session.Page.onClick, l.selector)
	return nil
}

// Hover records the hover.
func (l *Locator) Hover(ctx context.Context) error { return l.act(ctx, "hover", nil) }

// ScrollIntoView records the scroll.
func (l *Locator) ScrollIntoView(ctx context.Context) error {
	return l.act(ctx, "scrollIntoView", nil)
}

// Focus moves focus to the element.
func (l *Locator) Focus(ctx context.Context) error {
	if err := l.act(ctx, "focus", nil); err != nil {
		return err
	}
	l.session.Page.setFocus(l.selector)
	return nil
}

// Blur removes focus from the element if it has it. Missing elements are
// ignored.
func (l *Locator) Blur(ctx context.Context) error {
	if err := l.session.begin(ctx, "blur", l.selector); err != nil {
		return err
	}
	if l.session.Page.Focused() == l.selector {
		l.session.Page.setFocus("")
	}
	return nil
}

// Fill replaces the element value.
func (l *Locator) Fill(ctx context.Context, value string) error {
	return l.act(ctx, "fill", func(el *Element) { el.Value = value })
}

// Type appends text to the element value. The delay is recorded, not slept.
func (l *Locator) Type(ctx context.Context, text string, delay time.Duration) error {
	if err := l.act(ctx, "type", func(el *Element) { el.Value += text }); err != nil {
		return err
	}
	l.session.Page.record("typeDelay", delay.String())
	return nil
}

// Check sets the checked flag.
func (l *Locator) Check(ctx context.Context) error {
	return l.act(ctx, "check", func(el *Element) { el.Checked = true })
}

// Uncheck clears the checked flag.
func (l *Locator) Uncheck(ctx context.Context) error {
	return l.act(ctx, "uncheck", func(el *Element) { el.Checked = false })
}

// SelectOption sets the element value.
func (l *Locator) SelectOption(ctx context.Context, value string) error {
	return l.act(ctx, "select", func(el *Element) { el.Value = value })
}

// Text returns the element text.
func (l *Locator) Text(ctx context.Context) (string, error) {
	el, err := l.read(ctx, "text")
	return el.Text, err
}

// Attribute returns the named attribute.
func (l *Locator) Attribute(ctx context.Context, name string) (string, bool, error) {
	el, err := l.read(ctx, "attribute")
	if err != nil {
		return "", false, err
	}
	v, ok := el.Attrs[name]
	return v, ok, nil
}

// InputValue returns the element value.
func (l *Locator) InputValue(ctx context.Context) (string, error) {
	el, err := l.read(ctx, "inputValue")
	return el.Value, err
}

// IsVisible reports visibility; missing elements are not visible.
func (l *Locator) IsVisible(ctx context.Context) (bool, error) {
	if err := l.session.begin(ctx, "isVisible", l.selector); err != nil {
		return false, err
	}
	el, ok := l.session.Page.Element(l.selector)
	return ok && !el.Hidden, nil
}

// Count returns the number of matching elements.
func (l *Locator) Count(ctx context.Context) (int, error) {
	if err := l.session.begin(ctx, "count", l.selector); err != nil {
		return 0, err
	}
	el, ok := l.session.Page.Element(l.selector)
	if !ok {
		return 0, nil
	}
	if el.Count == 0 {
		return 1, nil
	}
	return el.Count, nil
}

func (l *Locator) read(ctx context.Context, method string) (Element, error) {
	if err := l.session.begin(ctx, method, l.selector); err != nil {
		return Element{}, err
	}
	el, ok := l.session.Page.Element(l.selector)
	if !ok {
		return Element{}, notFound(l.selector)
	}
	return el, nil
}

func notFound(selector string) error {
	return core.ErrElementNotFound.WithMessagef("element not found: %s", selector)
}

func toFloat(v interface{}) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

// pngPixel is a minimal valid PNG (1x1 transparent pixel).
var pngPixel = []byte{
	0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, // PNG signature
	0x00, 0x00, 0x00, 0x0D, 0x49, 0x48, 0x44, 0x52, // IHDR chunk
	0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1F, 0x15, 0xC4,
	0x89, 0x00, 0x00, 0x00, 0x0A, 0x49, 0x44, 0x41,
	0x54, 0x78, 0x9C, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0D, 0x0A, 0x2D, 0xB4, 0x00,
	0x00, 0x00, 0x00, 0x49, 0x45, 0x4E, 0x44, 0xAE,
	0x42, 0x60, 0x82,
}
