// Package executor interprets flow scenarios against a browser session and
// aggregates their results.
package executor

import (
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

// Defaults applied by RunnerConfig.withDefaults.
const (
	DefaultBaseURL = "http://localhost:3000"
	DefaultTimeout = 10 * time.Second
)

// DefaultViewport is the session window size when none is configured.
var DefaultViewport = core.Viewport{Width: 1920, Height: 1080}

// RunnerConfig configures scenario execution. It is passed by value into
// every runner; nothing in this package reads global defaults.
type RunnerConfig struct {
	BaseURL string        // Prefix for navigate URLs that do not start with "http"
	Timeout time.Duration // Default bound for every browser wait

	ScreenshotDir string
	VideoDir      string
	RecordVideo   bool

	Viewport core.Viewport
	Headless bool
	ExecPath string // Browser binary; empty means auto-detect

	// ContinueOnError keeps running a scenario's steps after a failure.
	ContinueOnError bool

	// Env values are expanded as ${NAME} in step parameters.
	Env map[string]string

	// Live progress callbacks
	OnScenarioStart func(idx, total int, storyID, name string)
	OnStepComplete  func(idx int, desc string, passed bool, durationMs int64, err string)
	OnScenarioEnd   func(name string, passed bool, durationMs int64)
}

// DefaultRunnerConfig returns the configuration used when nothing is set.
func DefaultRunnerConfig() RunnerConfig {
	art := core.DefaultArtifactConfig()
	return RunnerConfig{
		BaseURL:       DefaultBaseURL,
		Timeout:       DefaultTimeout,
		ScreenshotDir: art.ScreenshotDir,
		VideoDir:      art.VideoDir,
		RecordVideo:   art.RecordVideo,
		Viewport:      DefaultViewport,
		Headless:      true,
	}
}

// withDefaults fills zero fields from DefaultRunnerConfig. Booleans are
// taken as given.
func (c RunnerConfig) withDefaults() RunnerConfig {
	def := DefaultRunnerConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.ScreenshotDir == "" {
		c.ScreenshotDir = def.ScreenshotDir
	}
	if c.VideoDir == "" {
		c.VideoDir = def.VideoDir
	}
	if c.Viewport.Width <= 0 || c.Viewport.Height <= 0 {
		c.Viewport = def.Viewport
	}
	return c
}

func (c RunnerConfig) artifacts() core.ArtifactConfig {
	return core.ArtifactConfig{
		ScreenshotDir: c.ScreenshotDir,
		VideoDir:      c.VideoDir,
		RecordVideo:   c.RecordVideo,
	}
}

func (c RunnerConfig) dispatcher() *Dispatcher {
	return &Dispatcher{
		BaseURL:       c.BaseURL,
		Timeout:       c.Timeout,
		ScreenshotDir: c.ScreenshotDir,
	}
}
