// Package chrome drives a local Chrome or Chromium through the DevTools
// protocol. Each session is a separate tab of one browser process.
package chrome

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/oklog/ulid/v2"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/logger"
)

// Launcher starts Chrome processes. It implements core.Launcher.
type Launcher struct{}

// NewLauncher creates a Chrome launcher.
func NewLauncher() *Launcher {
	return &Launcher{}
}

// Launch starts a browser process. ctx bounds the startup only; the browser
// lives until Close.
func (l *Launcher) Launch(ctx context.Context, opts core.LaunchOptions) (core.Browser, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("hide-scrollbars", true),
	)
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	b, err := start(ctx, allocCtx, allocCancel)
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	logger.Info("chrome started (headless=%t)", opts.Headless)
	return b, nil
}

// start connects to the browser behind allocCtx. ctx bounds the startup
// only; the browser owns allocCancel from then on.
func start(ctx context.Context, allocCtx context.Context, allocCancel context.CancelFunc) (*Browser, error) {
	b := &Browser{allocCtx: allocCtx, allocCancel: allocCancel}
	b.browserCtx, b.browserCancel = chromedp.NewContext(b.allocCtx,
		chromedp.WithLogf(logger.Debug),
		chromedp.WithErrorf(logger.Debug),
	)

	stop := context.AfterFunc(ctx, b.cleanup)
	err := chromedp.Run(b.browserCtx)
	if !stop() {
		return nil, ctx.Err()
	}
	if err != nil {
		b.cleanup()
		return nil, err
	}
	return b, nil
}

// Browser is a running Chrome process. It implements core.Browser.
type Browser struct {
	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
	closed        bool
}

// NewSession opens a new tab sized to opts.Viewport. When opts.VideoDir is
// set, the tab is screencast into a fresh directory below it.
func (b *Browser) NewSession(ctx context.Context, opts core.SessionOptions) (core.Session, error) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("browser is closed")
	}

	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	// The first Run attaches the tab, and the tab's event loop lives as
	// long as that Run's context. It must be tabCtx itself.
	stop := context.AfterFunc(ctx, tabCancel)
	err := chromedp.Run(tabCtx)
	if !stop() {
		return nil, fmt.Errorf("open tab: %w", ctx.Err())
	}
	if err != nil {
		tabCancel()
		return nil, fmt.Errorf("open tab: %w", err)
	}
	s := &Session{ctx: tabCtx, cancel: tabCancel}

	if opts.Viewport.Width > 0 && opts.Viewport.Height > 0 {
		viewport := chromedp.EmulateViewport(int64(opts.Viewport.Width), int64(opts.Viewport.Height))
		if err := s.run(ctx, viewport); err != nil {
			tabCancel()
			return nil, fmt.Errorf("set viewport: %w", err)
		}
	}

	if opts.VideoDir != "" {
		dir := filepath.Join(opts.VideoDir, ulid.Make().String())
		rec, err := startRecording(ctx, tabCtx, dir)
		if err != nil {
			tabCancel()
			return nil, fmt.Errorf("start recording: %w", err)
		}
		s.rec = rec
	}
	return s, nil
}

// Close terminates the browser process and every tab it owns.
func (b *Browser) Close() error {
	b.cleanup()
	return nil
}

func (b *Browser) cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.browserCancel != nil {
		b.browserCancel()
	}
	if b.allocCancel != nil {
		b.allocCancel()
	}
}

// bind derives a context that carries parent's browser target but ends
// when ctx does.
func bind(parent, ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(parent)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		cancelParent := cancel
		cancel = func() {
			cancelDeadline()
			cancelParent()
		}
	}
	// a copied deadline reports DeadlineExceeded on its own
	stop := context.AfterFunc(ctx, func() {
		if !errors.Is(ctx.Err(), context.DeadlineExceeded) {
			cancel()
		}
	})
	return runCtx, func() {
		stop()
		cancel()
	}
}
