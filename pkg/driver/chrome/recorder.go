package chrome

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/devicelab-dev/flowtest/pkg/logger"
)

const (
	screencastQuality = 70
	stopTimeout       = 2 * time.Second
)

// recorder writes a tab's screencast as numbered JPEG frames into dir.
type recorder struct {
	dir    string
	frames atomic.Int64

	mu      sync.Mutex
	stopped bool
	pending sync.WaitGroup
}

// startRecording begins the screencast of the tab behind tabCtx. ctx bounds
// the start command.
func startRecording(ctx, tabCtx context.Context, dir string) (*recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	r := &recorder{dir: dir}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		frame, ok := ev.(*page.EventScreencastFrame)
		if !ok {
			return
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.stopped {
			return
		}
		r.pending.Add(1)
		// listeners must not block the event loop
		go func() {
			defer r.pending.Done()
			r.save(tabCtx, frame)
		}()
	})

	start := page.StartScreencast().
		WithFormat(page.ScreencastFormatJpeg).
		WithQuality(screencastQuality).
		WithEveryNthFrame(1)
	runCtx, cancel := bind(tabCtx, ctx)
	defer cancel()
	if err := chromedp.Run(runCtx, start); err != nil {
		return nil, err
	}
	logger.Debug("recording to %s", dir)
	return r, nil
}

func (r *recorder) save(tabCtx context.Context, frame *page.EventScreencastFrame) {
	n := r.frames.Add(1)
	data, err := base64.StdEncoding.DecodeString(frame.Data)
	if err == nil {
		err = os.WriteFile(filepath.Join(r.dir, fmt.Sprintf("frame-%05d.jpg", n)), data, 0o644)
	}
	if err != nil {
		logger.Debug("screencast frame %d: %v", n, err)
	}
	if err := chromedp.Run(tabCtx, page.ScreencastFrameAck(frame.SessionID)); err != nil && tabCtx.Err() == nil {
		logger.Debug("screencast ack %d: %v", n, err)
	}
}

// stop ends the screencast and waits for frames already received.
func (r *recorder) stop(tabCtx context.Context) {
	ctx, cancel := context.WithTimeout(tabCtx, stopTimeout)
	defer cancel()
	if err := chromedp.Run(ctx, page.StopScreencast()); err != nil {
		logger.Debug("stop screencast: %v", err)
	}

	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.pending.Wait()
	logger.Debug("recorded %d frames to %s", r.frames.Load(), r.dir)
}
