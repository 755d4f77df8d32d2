package flow

// Scenario is a named, ordered sequence of steps targeting one user flow.
type Scenario struct {
	Name  string `json:"name" yaml:"name"`
	Steps []Step `json:"steps" yaml:"steps"`
}

// Story is a requirement entry that owns zero or more scenarios.
type Story struct {
	ID            string     `json:"id" yaml:"id"`
	Title         string     `json:"title,omitempty" yaml:"title,omitempty"`
	Passes        bool       `json:"passes,omitempty" yaml:"passes,omitempty"`
	TestScenarios []Scenario `json:"testScenarios,omitempty" yaml:"testScenarios,omitempty"`
}

// Verification holds the optional run settings of a requirements document.
type Verification struct {
	DevServerURL  string `json:"devServerUrl,omitempty" yaml:"devServerUrl,omitempty"`
	ScreenshotDir string `json:"screenshotDir,omitempty" yaml:"screenshotDir,omitempty"`
}

// Requirements is a parsed requirements document (prd.json).
type Requirements struct {
	SourcePath string `json:"-" yaml:"-"`

	Project      string        `json:"project,omitempty" yaml:"project,omitempty"`
	Feature      string        `json:"feature,omitempty" yaml:"feature,omitempty"`
	UserStories  []Story       `json:"userStories" yaml:"userStories"`
	Verification *Verification `json:"verification,omitempty" yaml:"verification,omitempty"`
}

// BaseURL returns verification.devServerUrl, or fallback when unset.
func (r *Requirements) BaseURL(fallback string) string {
	if r.Verification != nil && r.Verification.DevServerURL != "" {
		return r.Verification.DevServerURL
	}
	return fallback
}

// ScreenshotDir returns verification.screenshotDir, or fallback when unset.
func (r *Requirements) ScreenshotDir(fallback string) string {
	if r.Verification != nil && r.Verification.ScreenshotDir != "" {
		return r.Verification.ScreenshotDir
	}
	return fallback
}

// ScenarioCount returns the number of scenarios across all stories.
func (r *Requirements) ScenarioCount() int {
	n := 0
	for _, s := range r.UserStories {
		n += len(s.TestScenarios)
	}
	return n
}

// FilterStories returns a copy of r keeping only stories whose ID is in ids.
// An empty ids keeps every story.
func (r *Requirements) FilterStories(ids []string) *Requirements {
	if len(ids) == 0 {
		return r
	}
	keep := make(map[string]bool, len(ids))
	for _, id := range ids {
		keep[id] = true
	}

	out := *r
	out.UserStories = nil
	for _, s := range r.UserStories {
		if keep[s.ID] {
			out.UserStories = append(out.UserStories, s)
		}
	}
	return &out
}
