package core

import (
	"context"
	"time"
)

// LoadState is a page load milestone to wait for.
type LoadState string

// Load states, in increasing order of completeness.
const (
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateLoad             LoadState = "load"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// ElementState is the condition WaitForSelector waits for.
type ElementState string

// Element states.
const (
	StateAttached ElementState = "attached"
	StateDetached ElementState = "detached"
	StateVisible  ElementState = "visible"
	StateHidden   ElementState = "hidden"
)

// Viewport is the browser window size in CSS pixels.
type Viewport struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`
}

// LaunchOptions configures a browser launch.
type LaunchOptions struct {
	Headless bool
	ExecPath string // Browser binary; empty means auto-detect
}

// SessionOptions configures a new browsing session.
type SessionOptions struct {
	Viewport Viewport
	// VideoDir enables recording when non-empty. The recording is written
	// somewhere below this directory; Session.VideoPath reports where.
	VideoDir string
}

// Launcher starts browsers. Implementations: chrome, mock.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Browser, error)
}

// Browser is a running browser process.
type Browser interface {
	NewSession(ctx context.Context, opts SessionOptions) (Session, error)
	Close() error
}

// Session is one isolated browsing context with a single page.
// Every blocking method is bounded by ctx.
type Session interface {
	Navigate(ctx context.Context, url string, wait LoadState) error
	Reload(ctx context.Context, wait LoadState) error
	GoBack(ctx context.Context, wait LoadState) error
	GoForward(ctx context.Context, wait LoadState) error
	WaitForNavigation(ctx context.Context) error
	WaitForURL(ctx context.Context, pattern string) error
	WaitForLoadState(ctx context.Context, state LoadState) error

	WaitForSelector(ctx context.Context, selector string, state ElementState) error
	Locate(selector string) Locator

	KeyboardPress(ctx context.Context, key string) error
	SetInputFiles(ctx context.Context, selector string, files []string) error
	DragAndDrop(ctx context.Context, source, target string) error

	// Evaluate runs script in the page and returns its JSON-decoded result.
	Evaluate(ctx context.Context, script string) (interface{}, error)
	Screenshot(ctx context.Context, path string, fullPage bool) error

	// VideoPath returns the recording location, or "" when not recording.
	VideoPath() (string, error)
	Close() error
}

// Locator addresses the elements matching a CSS selector. Actions apply to
// the first match; Count and IsVisible never wait.
type Locator interface {
	Click(ctx context.Context) error
	DoubleClick(ctx context.Context) error
	Hover(ctx context.Context) error
	Focus(ctx context.Context) error
	Blur(ctx context.Context) error
	Fill(ctx context.Context, value string) error
	Type(ctx context.Context, text string, delay time.Duration) error
	Check(ctx context.Context) error
	Uncheck(ctx context.Context) error
	SelectOption(ctx context.Context, value string) error
	ScrollIntoView(ctx context.Context) error

	Text(ctx context.Context) (string, error)
	Attribute(ctx context.Context, name string) (value string, ok bool, err error)
	InputValue(ctx context.Context) (string, error)
	IsVisible(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
}
