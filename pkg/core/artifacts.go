// Package core provides the execution model types for flowtest.
package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeJSON = "application/json"
	ContentTypeWebM = "video/webm"
)

// ArtifactConfig controls where diagnostic artifacts are written.
type ArtifactConfig struct {
	ScreenshotDir string `yaml:"screenshotDir" json:"screenshotDir"`
	VideoDir      string `yaml:"videoDir" json:"videoDir"`
	RecordVideo   bool   `yaml:"recordVideo" json:"recordVideo"`
}

// DefaultArtifactConfig returns the default artifact locations.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		ScreenshotDir: ".claude/screenshots",
		VideoDir:      ".claude/videos",
		RecordVideo:   true,
	}
}

// VideoDirOrEmpty returns VideoDir when recording is enabled.
func (c ArtifactConfig) VideoDirOrEmpty() string {
	if !c.RecordVideo {
		return ""
	}
	return c.VideoDir
}

// StepScreenshotPath returns the path for an explicit screenshot step:
// <dir>/<name>.png, or <dir>/step-<index>.png when name is empty.
func StepScreenshotPath(dir, name string, index int) string {
	if name == "" {
		name = fmt.Sprintf("step-%d", index)
	}
	return filepath.Join(dir, SanitizeFileName(name)+".png")
}

// FailureScreenshotPath returns the path for a post-failure screenshot:
// <dir>/error-<scenario>-step-<index>-<unixms>.png.
func FailureScreenshotPath(dir, scenario string, index int, at time.Time) string {
	name := fmt.Sprintf("error-%s-step-%d-%d.png", SanitizeFileName(scenario), index, at.UnixMilli())
	return filepath.Join(dir, name)
}

// SanitizeFileName replaces characters that cannot appear in a file name.
func SanitizeFileName(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, name)
}
