package executor

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/driver/mock"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// newMockSession opens a session on a mock browser whose page is set up by
// setup.
func newMockSession(t *testing.T, setup func(p *mock.Page)) *mock.Session {
	t.Helper()
	l := mock.New(mock.Config{Setup: setup})
	b, err := l.Launch(context.Background(), core.LaunchOptions{})
	if err != nil {
		t.Fatalf("Launch() error = %v", err)
	}
	s, err := b.NewSession(context.Background(), core.SessionOptions{})
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	return s.(*mock.Session)
}

func testDispatcher(t *testing.T) *Dispatcher {
	return &Dispatcher{
		BaseURL:       "http://localhost:3000",
		Timeout:       100 * time.Millisecond,
		ScreenshotDir: t.TempDir(),
	}
}

func formPage(p *mock.Page) {
	p.Set("#user", mock.Element{})
	p.Set("#agree", mock.Element{})
	p.Set("#color", mock.Element{})
	p.Set("#file", mock.Element{})
	p.Set("#go", mock.Element{})
	p.Set("#card", mock.Element{})
	p.Set("#bin", mock.Element{})
	p.Set("#secret", mock.Element{Hidden: true})
}

func TestDispatch_AllActionKinds(t *testing.T) {
	tests := []struct {
		step     flow.Step
		wantCall string
	}{
		{flow.Step{Action: flow.ActionNavigate, URL: "/login"}, "navigate http://localhost:3000/login"},
		{flow.Step{Action: flow.ActionClick, Selector: "#go"}, "click #go"},
		{flow.Step{Action: flow.ActionDoubleClick, Selector: "#go"}, "doubleClick #go"},
		{flow.Step{Action: flow.ActionType, Selector: "#user", Text: "bob"}, "type #user"},
		{flow.Step{Action: flow.ActionFill, Selector: "#user", Value: flow.StringPtr("x")}, "fill #user"},
		{flow.Step{Action: flow.ActionClear, Selector: "#user"}, "fill #user"},
		{flow.Step{Action: flow.ActionPress, Key: "Enter"}, "press Enter"},
		{flow.Step{Action: flow.ActionWaitFor, Selector: "#go"}, "waitForSelector #go"},
		{flow.Step{Action: flow.ActionWaitForNavigation}, "waitForNavigation"},
		{flow.Step{Action: flow.ActionWaitForURL, URL: "**"}, "waitForURL **"},
		{flow.Step{Action: flow.ActionWaitForLoadState}, "waitForLoadState networkidle"},
		{flow.Step{Action: flow.ActionAssert, Selector: "#go", Visible: flow.BoolPtr(true)}, "isVisible #go"},
		{flow.Step{Action: flow.ActionScreenshot, Name: "home"}, "screenshot"},
		{flow.Step{Action: flow.ActionScroll}, "evaluate window.scrollBy(0, 500)"},
		{flow.Step{Action: flow.ActionHover, Selector: "#go"}, "hover #go"},
		{flow.Step{Action: flow.ActionSelect, Selector: "#color", Value: flow.StringPtr("red")}, "select #color"},
		{flow.Step{Action: flow.ActionCheck, Selector: "#agree"}, "check #agree"},
		{flow.Step{Action: flow.ActionUncheck, Selector: "#agree"}, "uncheck #agree"},
		{flow.Step{Action: flow.ActionFocus, Selector: "#user"}, "focus #user"},
		{flow.Step{Action: flow.ActionBlur, Selector: "#user"}, "blur #user"},
		{flow.Step{Action: flow.ActionUpload, Selector: "#file", Files: flow.StringList{"a.png"}}, "upload #file"},
		{flow.Step{Action: flow.ActionDrag, Source: "#card", Target: "#bin"}, "drag #card -> #bin"},
		{flow.Step{Action: flow.ActionWait, DurationMs: 1}, ""},
		{flow.Step{Action: flow.ActionEvaluate, Script: "1 + 1"}, "evaluate 1 + 1"},
		{flow.Step{Action: flow.ActionReload}, "reload"},
		{flow.Step{Action: flow.ActionGoBack}, "goBack"},
		{flow.Step{Action: flow.ActionGoForward}, "goForward"},
	}

	if len(tests) != len(flow.ActionKinds) {
		t.Fatalf("table covers %d actions, want %d", len(tests), len(flow.ActionKinds))
	}

	for _, tt := range tests {
		t.Run(string(tt.step.Action), func(t *testing.T) {
			sess := newMockSession(t, formPage)
			// navigation waits need a loaded page
			if tt.step.Action == flow.ActionWaitForNavigation || tt.step.Action == flow.ActionWaitForURL {
				if err := sess.Navigate(context.Background(), "http://localhost:3000/", core.LoadStateLoad); err != nil {
					t.Fatal(err)
				}
			}

			if _, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, tt.step); err != nil {
				t.Fatalf("Dispatch() error = %v", err)
			}
			if tt.wantCall == "" {
				return
			}
			if !hasCallPrefix(sess.Page.Calls(), tt.wantCall) {
				t.Errorf("calls %v missing %q", sess.Page.Calls(), tt.wantCall)
			}
		})
	}
}

func hasCallPrefix(calls []string, prefix string) bool {
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			return true
		}
	}
	return false
}

func TestDispatch_UnknownAction(t *testing.T) {
	sess := newMockSession(t, formPage)
	steps := []flow.Step{
		{Action: "bogus"},
		{Action: "bogus", Selector: "#go", URL: "http://x", Value: flow.StringPtr("v")},
		{Action: ""},
	}
	for _, step := range steps {
		_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, step)
		if !errors.Is(err, core.ErrUnknownAction) {
			t.Fatalf("Dispatch(%q) error = %v, want unknown action", step.Action, err)
		}
		if !strings.Contains(err.Error(), "unknown action") {
			t.Errorf("error %q should mention unknown action", err)
		}
		if core.CategoryOf(err) != core.ErrCategoryUnknownAction {
			t.Errorf("category = %s", core.CategoryOf(err))
		}
	}
	if len(sess.Page.Calls()) != 0 {
		t.Errorf("unknown action touched the browser: %v", sess.Page.Calls())
	}
}

func TestDispatch_MistypedParams(t *testing.T) {
	tests := []struct {
		data string
		want error
	}{
		{`{"action":"bogus","count":"many"}`, core.ErrUnknownAction},
		{`{"action":"assert","selector":"#msg","value":5}`, core.ErrInvalidParam},
		{`{"action":"click","selector":"#go","timeout":"soon"}`, core.ErrInvalidParam},
	}
	for _, tt := range tests {
		var step flow.Step
		if err := json.Unmarshal([]byte(tt.data), &step); err != nil {
			t.Fatalf("decode %s: %v", tt.data, err)
		}
		sess := newMockSession(t, formPage)
		_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, step)
		if !errors.Is(err, tt.want) {
			t.Errorf("Dispatch(%s) error = %v, want %v", tt.data, err, tt.want)
		}
		if len(sess.Page.Calls()) != 0 {
			t.Errorf("Dispatch(%s) touched the browser: %v", tt.data, sess.Page.Calls())
		}
	}
}

func TestDispatch_MissingParams(t *testing.T) {
	tests := []struct {
		step  flow.Step
		param string
	}{
		{flow.Step{Action: flow.ActionNavigate}, "url"},
		{flow.Step{Action: flow.ActionClick}, "selector"},
		{flow.Step{Action: flow.ActionType, Selector: "#user"}, "text"},
		{flow.Step{Action: flow.ActionFill, Selector: "#user"}, "value"},
		{flow.Step{Action: flow.ActionSelect, Selector: "#color"}, "value"},
		{flow.Step{Action: flow.ActionUpload, Selector: "#file"}, "files"},
		{flow.Step{Action: flow.ActionPress}, "key"},
		{flow.Step{Action: flow.ActionDrag, Source: "#card"}, "target"},
		{flow.Step{Action: flow.ActionEvaluate}, "script"},
		{flow.Step{Action: flow.ActionWaitForURL}, "url"},
		{flow.Step{Action: flow.ActionAssert}, "selector"},
	}

	for _, tt := range tests {
		t.Run(string(tt.step.Action), func(t *testing.T) {
			sess := newMockSession(t, formPage)
			_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, tt.step)
			if !errors.Is(err, core.ErrMissingParam) {
				t.Fatalf("error = %v, want missing param", err)
			}
			if !strings.Contains(err.Error(), `"`+tt.param+`"`) {
				t.Errorf("error %q should name %q", err, tt.param)
			}
		})
	}
}

func TestDispatch_InvalidState(t *testing.T) {
	sess := newMockSession(t, formPage)
	d := testDispatcher(t)

	for _, step := range []flow.Step{
		{Action: flow.ActionWaitFor, Selector: "#go", State: "shiny"},
		{Action: flow.ActionWaitForLoadState, State: "eventually"},
	} {
		if _, err := d.Dispatch(context.Background(), sess, 1, step); !errors.Is(err, core.ErrInvalidParam) {
			t.Errorf("%s: error = %v, want invalid param", step.Action, err)
		}
	}
}

func TestDispatch_NavigateKeepsAbsoluteURL(t *testing.T) {
	sess := newMockSession(t, nil)
	step := flow.Step{Action: flow.ActionNavigate, URL: "https://example.com/x"}
	if _, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, step); err != nil {
		t.Fatal(err)
	}
	if sess.Page.URL() != "https://example.com/x" {
		t.Errorf("URL = %s", sess.Page.URL())
	}
}

func TestDispatch_SelectorTimeout(t *testing.T) {
	sess := newMockSession(t, formPage)
	d := testDispatcher(t)

	start := time.Now()
	_, err := d.Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionClick, Selector: "#absent"})
	if !errors.Is(err, core.ErrTimeout) {
		t.Fatalf("error = %v, want timeout", err)
	}
	if !strings.Contains(err.Error(), "timed out after 100ms") {
		t.Errorf("error = %q", err)
	}
	if time.Since(start) > time.Second {
		t.Error("wait was not bounded by the timeout")
	}

	// step timeout overrides the default
	_, err = d.Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionWaitFor, Selector: "#secret", TimeoutMs: 30})
	if !errors.Is(err, core.ErrTimeout) || !strings.Contains(err.Error(), "30ms") {
		t.Errorf("error = %v, want 30ms timeout", err)
	}
}

func TestDispatch_ActionError(t *testing.T) {
	boom := errors.New("node detached")
	sess := newMockSession(t, func(p *mock.Page) {
		formPage(p)
		p.FailOn("click #go", boom)
	})

	_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionClick, Selector: "#go"})
	if !errors.Is(err, core.ErrActionFailed) || !errors.Is(err, boom) {
		t.Fatalf("error = %v, want action failure wrapping cause", err)
	}
	if err.Error() != "click #go: node detached" {
		t.Errorf("error = %q", err)
	}
}

func TestDispatch_TypeDelay(t *testing.T) {
	sess := newMockSession(t, formPage)
	d := testDispatcher(t)

	if _, err := d.Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionType, Selector: "#user", Text: "ab"}); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Dispatch(context.Background(), sess, 2, flow.Step{Action: flow.ActionType, Selector: "#user", Text: "c", DelayMs: flow.IntPtr(0)}); err != nil {
		t.Fatal(err)
	}

	if !hasCallPrefix(sess.Page.Calls(), "typeDelay 50ms") {
		t.Errorf("default delay not applied: %v", sess.Page.Calls())
	}
	if !hasCallPrefix(sess.Page.Calls(), "typeDelay 0s") {
		t.Errorf("explicit zero delay not applied: %v", sess.Page.Calls())
	}
	if el, _ := sess.Page.Element("#user"); el.Value != "abc" {
		t.Errorf("value = %q, want abc", el.Value)
	}
}

func TestDispatch_FillAndClear(t *testing.T) {
	sess := newMockSession(t, formPage)
	d := testDispatcher(t)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, sess, 1, flow.Step{Action: flow.ActionFill, Selector: "#user", Value: flow.StringPtr("alice")}); err != nil {
		t.Fatal(err)
	}
	if el, _ := sess.Page.Element("#user"); el.Value != "alice" {
		t.Errorf("value after fill = %q", el.Value)
	}
	if _, err := d.Dispatch(ctx, sess, 2, flow.Step{Action: flow.ActionClear, Selector: "#user"}); err != nil {
		t.Fatal(err)
	}
	if el, _ := sess.Page.Element("#user"); el.Value != "" {
		t.Errorf("value after clear = %q", el.Value)
	}
}

func TestDispatch_Scroll(t *testing.T) {
	tests := []struct {
		name  string
		step  flow.Step
		wantX float64
		wantY float64
	}{
		{"down by default", flow.Step{Action: flow.ActionScroll}, 0, 500},
		{"down explicit", flow.Step{Action: flow.ActionScroll, Direction: "down"}, 0, 500},
		{"up", flow.Step{Action: flow.ActionScroll, Direction: "up"}, 0, -500},
		{"position", flow.Step{Action: flow.ActionScroll, Position: &flow.Position{X: 10, Y: 1200.5}}, 10, 1200.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newMockSession(t, nil)
			if _, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, tt.step); err != nil {
				t.Fatal(err)
			}
			if x, y := sess.ScrollPosition(); x != tt.wantX || y != tt.wantY {
				t.Errorf("scroll = (%v, %v), want (%v, %v)", x, y, tt.wantX, tt.wantY)
			}
		})
	}

	sess := newMockSession(t, formPage)
	if _, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionScroll, Selector: "#go"}); err != nil {
		t.Fatal(err)
	}
	if !hasCallPrefix(sess.Page.Calls(), "scrollIntoView #go") {
		t.Errorf("calls = %v", sess.Page.Calls())
	}
}

func TestDispatch_Screenshot(t *testing.T) {
	sess := newMockSession(t, nil)
	d := testDispatcher(t)

	out, err := d.Dispatch(context.Background(), sess, 4, flow.Step{Action: flow.ActionScreenshot})
	if err != nil {
		t.Fatal(err)
	}
	if out.Screenshot != filepath.Join(d.ScreenshotDir, "step-4.png") {
		t.Errorf("screenshot = %s", out.Screenshot)
	}

	out, err = d.Dispatch(context.Background(), sess, 5, flow.Step{Action: flow.ActionScreenshot, Name: "checkout"})
	if err != nil {
		t.Fatal(err)
	}
	if out.Screenshot != filepath.Join(d.ScreenshotDir, "checkout.png") {
		t.Errorf("screenshot = %s", out.Screenshot)
	}
}

func TestDispatch_Wait(t *testing.T) {
	sess := newMockSession(t, nil)
	d := testDispatcher(t)

	start := time.Now()
	if _, err := d.Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionWait, DurationMs: 150}); err != nil {
		t.Fatal(err)
	}
	// longer than the 100ms step timeout: wait is bounded by its duration only
	if elapsed := time.Since(start); elapsed < 150*time.Millisecond {
		t.Errorf("wait returned after %v", elapsed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := d.Dispatch(ctx, sess, 2, flow.Step{Action: flow.ActionWait}); err == nil {
		t.Error("wait should be interrupted by a cancelled context")
	}
}

func TestDispatch_BlurMissingElement(t *testing.T) {
	sess := newMockSession(t, nil)
	if _, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionBlur, Selector: "#nothing"}); err != nil {
		t.Errorf("blur on a missing element should be a no-op, got %v", err)
	}
}

func TestDispatch_Assert(t *testing.T) {
	page := func(p *mock.Page) {
		p.Set("#error", mock.Element{Text: "Unknown issue"})
		p.Set("#banner", mock.Element{Hidden: true})
		p.Set(".item", mock.Element{Count: 3})
		p.Set("#email", mock.Element{Value: "a@b.c", Attrs: map[string]string{"type": "email"}})
	}

	tests := []struct {
		name    string
		step    flow.Step
		wantErr string
	}{
		{"contains ok", flow.Step{Selector: "#error", Contains: "Unknown"}, ""},
		{"contains fails", flow.Step{Selector: "#error", Contains: "Invalid credentials"},
			`expected text "Invalid credentials" not found in "Unknown issue"`},
		{"visible false ok", flow.Step{Selector: "#banner", Visible: flow.BoolPtr(false)}, ""},
		{"visible fails", flow.Step{Selector: "#banner", Visible: flow.BoolPtr(true)},
			"expected element #banner visibility: true, got: false"},
		{"absent not visible", flow.Step{Selector: "#nope", Visible: flow.BoolPtr(false)}, ""},
		{"count ok", flow.Step{Selector: ".item", Count: flow.IntPtr(3)}, ""},
		{"count zero ok", flow.Step{Selector: ".none", Count: flow.IntPtr(0)}, ""},
		{"count fails", flow.Step{Selector: ".item", Count: flow.IntPtr(2)},
			"expected 2 elements matching .item, found 3"},
		{"value ok", flow.Step{Selector: "#email", Value: flow.StringPtr("a@b.c")}, ""},
		{"value fails", flow.Step{Selector: "#email", Value: flow.StringPtr("x")},
			`expected input value "x", got "a@b.c"`},
		{"attribute ok", flow.Step{Selector: "#email", Attribute: "type", ExpectedValue: flow.StringPtr("email")}, ""},
		{"attribute present ok", flow.Step{Selector: "#email", Attribute: "type"}, ""},
		{"attribute fails", flow.Step{Selector: "#email", Attribute: "type", ExpectedValue: flow.StringPtr("text")},
			`expected attribute type="text", got "email"`},
		{"attribute absent", flow.Step{Selector: "#email", Attribute: "name", ExpectedValue: flow.StringPtr("x")},
			"attribute is absent"},
		{"combined, later check fails", flow.Step{Selector: "#email", Visible: flow.BoolPtr(true), Value: flow.StringPtr("nope")},
			`expected input value "nope"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sess := newMockSession(t, page)
			tt.step.Action = flow.ActionAssert
			_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, tt.step)

			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Dispatch() error = %v", err)
				}
				return
			}
			if !errors.Is(err, core.ErrAssertionFailed) {
				t.Fatalf("error = %v, want assertion failure", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestDispatch_AssertWithoutChecks(t *testing.T) {
	sess := newMockSession(t, formPage)
	_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1, flow.Step{Action: flow.ActionAssert, Selector: "#go"})
	if !errors.Is(err, core.ErrMissingParam) {
		t.Errorf("error = %v, want missing param", err)
	}
}

func TestDispatch_AssertContainsTimesOut(t *testing.T) {
	sess := newMockSession(t, nil)
	_, err := testDispatcher(t).Dispatch(context.Background(), sess, 1,
		flow.Step{Action: flow.ActionAssert, Selector: "#error", Contains: "x"})
	if !errors.Is(err, core.ErrTimeout) {
		t.Errorf("error = %v, want timeout", err)
	}
}
