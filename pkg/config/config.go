// Package config handles workspace configuration for flowtest.
package config

import (
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/executor"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// DefaultResultsPath is where suite results are written when nothing else
// is configured.
const DefaultResultsPath = ".claude/logs/flow-test-results.json"

// Config represents the workspace configuration (flowtest.yaml).
type Config struct {
	// Target
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"` // Default step timeout in ms

	// Artifacts
	ScreenshotDir string `yaml:"screenshotDir"`
	VideoDir      string `yaml:"videoDir"`
	RecordVideo   *bool  `yaml:"recordVideo"`
	ResultsPath   string `yaml:"resultsPath"`
	ReportDir     string `yaml:"reportDir"`
	History       string `yaml:"history"` // SQLite database path

	// Browser
	Driver     string         `yaml:"driver"` // chrome or mock
	ChromePath string         `yaml:"chromePath"`
	Headless   *bool          `yaml:"headless"`
	Viewport   *core.Viewport `yaml:"viewport"`

	// Execution settings
	ContinueOnError *bool             `yaml:"continueOnError"`
	Env             map[string]string `yaml:"env"` // Variables for ${NAME} expansion
}

// Load loads configuration from a file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided config file
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromDir looks for flowtest.yaml or flowtest.yml in the directory.
func LoadFromDir(dir string) (*Config, error) {
	for _, name := range []string{"flowtest.yaml", "flowtest.yml"} {
		configPath := filepath.Join(dir, name)
		if _, err := os.Stat(configPath); err == nil {
			return Load(configPath)
		}
	}

	// No config file found, return empty config
	return &Config{}, nil
}

// ResultsFile returns the configured results path or the default.
func (c *Config) ResultsFile() string {
	if c.ResultsPath != "" {
		return c.ResultsPath
	}
	return DefaultResultsPath
}

// HistoryFile returns the configured history database or <home>/history.db.
func (c *Config) HistoryFile() string {
	if c.History != "" {
		return c.History
	}
	return GetHistoryPath()
}

// Overrides holds settings given explicitly on the command line. Zero
// values and nil pointers mean "not set".
type Overrides struct {
	BaseURL         string
	Timeout         time.Duration
	ScreenshotDir   string
	VideoDir        string
	RecordVideo     *bool
	Headless        *bool
	ContinueOnError *bool
	Env             map[string]string
}

// RunnerConfig resolves the execution settings for one run. Each value is
// taken from the first source that sets it: overrides, the requirements
// verification block (req may be nil), this config, then the defaults.
func (c *Config) RunnerConfig(req *flow.Requirements, o Overrides) executor.RunnerConfig {
	rc := executor.DefaultRunnerConfig()

	if c.BaseURL != "" {
		rc.BaseURL = c.BaseURL
	}
	if c.Timeout > 0 {
		rc.Timeout = time.Duration(c.Timeout) * time.Millisecond
	}
	if c.ScreenshotDir != "" {
		rc.ScreenshotDir = c.ScreenshotDir
	}
	if c.VideoDir != "" {
		rc.VideoDir = c.VideoDir
	}
	if c.RecordVideo != nil {
		rc.RecordVideo = *c.RecordVideo
	}
	if c.Headless != nil {
		rc.Headless = *c.Headless
	}
	if c.Viewport != nil && c.Viewport.Width > 0 && c.Viewport.Height > 0 {
		rc.Viewport = *c.Viewport
	}
	if c.ContinueOnError != nil {
		rc.ContinueOnError = *c.ContinueOnError
	}
	rc.ExecPath = c.ChromePath

	if req != nil {
		rc.BaseURL = req.BaseURL(rc.BaseURL)
		rc.ScreenshotDir = req.ScreenshotDir(rc.ScreenshotDir)
	}

	if o.BaseURL != "" {
		rc.BaseURL = o.BaseURL
	}
	if o.Timeout > 0 {
		rc.Timeout = o.Timeout
	}
	if o.ScreenshotDir != "" {
		rc.ScreenshotDir = o.ScreenshotDir
	}
	if o.VideoDir != "" {
		rc.VideoDir = o.VideoDir
	}
	if o.RecordVideo != nil {
		rc.RecordVideo = *o.RecordVideo
	}
	if o.Headless != nil {
		rc.Headless = *o.Headless
	}
	if o.ContinueOnError != nil {
		rc.ContinueOnError = *o.ContinueOnError
	}

	rc.Env = mergeEnv(c.Env, o.Env)
	return rc
}

// mergeEnv returns base overlaid with override, or nil when both are empty.
func mergeEnv(base, override map[string]string) map[string]string {
	if len(base) == 0 && len(override) == 0 {
		return nil
	}
	env := make(map[string]string, len(base)+len(override))
	for k, v := range base {
		env[k] = v
	}
	for k, v := range override {
		env[k] = v
	}
	return env
}
