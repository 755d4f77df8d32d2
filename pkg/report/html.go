package report

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

// HTMLConfig contains configuration for HTML report generation.
type HTMLConfig struct {
	OutputPath  string // Path to write the HTML file
	EmbedAssets bool   // Embed screenshots as base64 (makes file larger but portable)
	Title       string // Report title (default: "Flow Test Report")
	Project     string // Shown in the header when set
	Feature     string
	BaseURL     string
	Driver      string
}

// GenerateHTML renders suite as a static HTML page at cfg.OutputPath
// (default <DefaultReportDir>/report.html) and returns the path written.
func GenerateHTML(suite *core.SuiteResult, cfg HTMLConfig) (string, error) {
	// Set defaults
	if cfg.Title == "" {
		cfg.Title = "Flow Test Report"
	}
	if cfg.OutputPath == "" {
		cfg.OutputPath = filepath.Join(DefaultReportDir, "report.html")
	}

	data := buildHTMLData(suite, cfg, time.Now())

	html, err := renderHTML(data)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}

	if err := ensureDir(filepath.Dir(cfg.OutputPath)); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(cfg.OutputPath, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("write html: %w", err)
	}
	return cfg.OutputPath, nil
}

// HTMLData contains all data needed for the HTML template.
type HTMLData struct {
	Config        HTMLConfig
	GeneratedAt   string
	Total         int
	Passed        int
	Failed        int
	PassRate      float64
	TotalDuration string
	Screenshots   int
	Videos        int
	PieStyle      template.CSS
	Scenarios     []ScenarioHTMLData
}

// ScenarioHTMLData contains one scenario formatted for HTML.
type ScenarioHTMLData struct {
	StoryID     string
	Name        string
	StatusClass string
	DurationStr string
	DurationPct float64
	StepsPassed int
	StepsFailed int
	Steps       []StepHTMLData
	Errors      []core.StepError
	Screenshots []ScreenshotHTMLData
	Video       string
}

// StepHTMLData contains one step formatted for HTML.
type StepHTMLData struct {
	Index       int
	Action      string
	Target      string
	StatusClass string
	DurationStr string
	Error       string
	Category    string
}

// ScreenshotHTMLData is an image source (data URI or path) and caption.
type ScreenshotHTMLData struct {
	Src     template.URL
	Caption string
}

func buildHTMLData(suite *core.SuiteResult, cfg HTMLConfig, now time.Time) HTMLData {
	// Find max duration for percentage bars
	var maxDuration, totalDuration int64
	for _, sc := range suite.Scenarios {
		if sc.Duration > maxDuration {
			maxDuration = sc.Duration
		}
		totalDuration += sc.Duration
	}

	data := HTMLData{
		Config:        cfg,
		GeneratedAt:   now.Format("2006-01-02 15:04:05"),
		Total:         suite.TotalScenarios,
		Passed:        suite.Passed,
		Failed:        suite.Failed,
		PassRate:      suite.PassRate(),
		TotalDuration: formatDuration(&totalDuration),
		PieStyle:      pieStyle(suite),
	}

	for _, sc := range suite.Scenarios {
		sd := ScenarioHTMLData{
			StoryID:     sc.StoryID,
			Name:        sc.Scenario,
			StatusClass: statusClass(sc.Passed),
			DurationStr: formatDuration(&sc.Duration),
			Errors:      sc.Errors,
		}
		if maxDuration > 0 {
			sd.DurationPct = float64(sc.Duration) / float64(maxDuration) * 100
		}
		sd.StepsPassed, sd.StepsFailed = sc.StepCounts()

		for _, st := range sc.Steps {
			d := st.Duration
			sd.Steps = append(sd.Steps, StepHTMLData{
				Index:       st.Index,
				Action:      string(st.Action),
				Target:      stepTarget(st.Params),
				StatusClass: st.Status.String(),
				DurationStr: formatDuration(&d),
				Error:       st.Error,
				Category:    st.Category.String(),
			})
		}

		// Handle screenshots
		for _, shot := range sc.Screenshots {
			src := shot
			if cfg.EmbedAssets {
				if embedded := loadAsBase64(shot); embedded != "" {
					src = embedded
				}
			} else {
				src = relativeTo(filepath.Dir(cfg.OutputPath), shot)
			}
			//#nosec G203 -- paths and data URIs built from our own results
			sd.Screenshots = append(sd.Screenshots, ScreenshotHTMLData{Src: template.URL(src), Caption: filepath.Base(shot)})
			data.Screenshots++
		}
		if sc.Video != nil {
			sd.Video = *sc.Video
			data.Videos++
		}
		data.Scenarios = append(data.Scenarios, sd)
	}
	return data
}

// stepTarget picks the parameter that best identifies what a step acted on.
func stepTarget(params map[string]interface{}) string {
	for _, key := range []string{"selector", "url", "source", "key", "name", "script"} {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func statusClass(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

// pieStyle draws the pass/fail ratio as a conic gradient.
func pieStyle(suite *core.SuiteResult) template.CSS {
	if suite.TotalScenarios == 0 {
		return template.CSS("background: var(--pending)")
	}
	passedPct := float64(suite.Passed) / float64(suite.TotalScenarios) * 100
	return template.CSS(fmt.Sprintf(
		"background: conic-gradient(var(--passed) 0%% %.1f%%, var(--failed) %.1f%% 100%%)",
		passedPct, passedPct))
}

func relativeTo(base, path string) string {
	if rel, err := filepath.Rel(base, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return filepath.ToSlash(path)
}

func formatDuration(ms *int64) string {
	if ms == nil {
		return "-"
	}
	d := time.Duration(*ms) * time.Millisecond
	if d < time.Second {
		return fmt.Sprintf("%dms", *ms)
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
}

func loadAsBase64(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	ext := strings.ToLower(filepath.Ext(path))
	mimeType := "image/png"
	if ext == ".jpg" || ext == ".jpeg" {
		mimeType = "image/jpeg"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func renderHTML(data HTMLData) (string, error) {
	tmpl, err := template.New("report").Parse(htmlTemplate)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Config.Title}}</title>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f9fafb;
            --bg-tertiary: #f3f4f6;
            --text-primary: #000000;
            --text-secondary: rgb(75, 85, 99);
            --text-muted: rgb(107, 114, 128);
            --border-color: #e5e7eb;
            --passed: #22c55e;
            --passed-bg: rgba(34, 197, 94, 0.1);
            --failed: #ef4444;
            --failed-bg: rgba(239, 68, 68, 0.08);
            --pending: #6b7280;
            --accent: #06b6d4;
        }

        * { box-sizing: border-box; margin: 0; padding: 0; }

        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            background: var(--bg-primary);
            color: var(--text-primary);
            line-height: 1.5;
        }

        .header {
            background: var(--bg-secondary);
            border-bottom: 1px solid var(--border-color);
            padding: 16px 24px;
        }
        .header-title { font-size: 18px; font-weight: 600; }
        .header-title-sub { font-size: 12px; color: var(--text-muted); margin-left: 8px; }
        .header-meta { font-size: 13px; color: var(--text-secondary); margin-top: 4px; }

        .dashboard { display: flex; gap: 24px; align-items: center; margin-top: 16px; flex-wrap: wrap; }
        .pie-chart { width: 96px; height: 96px; border-radius: 50%; position: relative; }
        .pie-center {
            position: absolute; inset: 18px; border-radius: 50%;
            background: var(--bg-secondary); display: flex; align-items: center;
            justify-content: center; font-weight: 600;
        }
        .stat-card {
            background: var(--bg-primary); border: 1px solid var(--border-color);
            border-radius: 8px; padding: 12px 16px; min-width: 120px;
        }
        .stat-value { font-size: 22px; font-weight: 700; }
        .stat-value.passed { color: var(--passed); }
        .stat-value.failed { color: var(--failed); }
        .stat-label { font-size: 12px; color: var(--text-muted); }

        .main-container { padding: 16px 24px; }
        .filters { display: flex; gap: 8px; margin-bottom: 12px; }
        .filter-btn {
            border: 1px solid var(--border-color); background: var(--bg-primary);
            border-radius: 6px; padding: 4px 10px; cursor: pointer; font-size: 13px;
        }
        .filter-btn.active { border-color: var(--accent); color: var(--accent); }

        .flow-item { border: 1px solid var(--border-color); border-radius: 8px; margin-bottom: 8px; }
        .flow-item.failed { background: var(--failed-bg); }
        .flow-item summary {
            display: flex; align-items: center; gap: 10px; padding: 10px 14px;
            cursor: pointer; list-style: none;
        }
        .status-dot { width: 10px; height: 10px; border-radius: 50%; flex-shrink: 0; }
        .status-dot.passed { background: var(--passed); }
        .status-dot.failed { background: var(--failed); }
        .story-id { font-family: monospace; color: var(--text-muted); font-size: 12px; }
        .flow-name { font-weight: 500; flex: 1; }
        .flow-meta { display: flex; align-items: center; gap: 10px; font-size: 12px; color: var(--text-muted); }
        .duration-bar { width: 80px; height: 4px; background: var(--bg-tertiary); border-radius: 2px; }
        .duration-fill { height: 100%; background: var(--accent); border-radius: 2px; }

        .flow-detail { padding: 0 14px 14px; }
        .command-list { font-family: monospace; font-size: 13px; }
        .command { display: flex; gap: 10px; padding: 4px 0; border-bottom: 1px solid var(--border-color); }
        .command.passed .command-status { color: var(--passed); }
        .command.failed .command-status { color: var(--failed); }
        .command-index { color: var(--text-muted); width: 24px; text-align: right; }
        .command-type { font-weight: 600; }
        .command-target { color: var(--text-secondary); flex: 1; word-break: break-all; }
        .command-error { color: var(--failed); padding: 2px 0 6px 34px; font-size: 12px; }
        .error-category { color: var(--text-muted); }

        .screenshots-grid {
            display: grid; grid-template-columns: repeat(auto-fill, minmax(240px, 1fr));
            gap: 12px; margin-top: 12px;
        }
        .screenshot-card { border: 1px solid var(--border-color); border-radius: 6px; overflow: hidden; }
        .screenshot-card img { width: 100%; height: 160px; object-fit: cover; cursor: pointer; }
        .caption { font-size: 11px; color: var(--text-muted); padding: 4px 8px; word-break: break-all; }
        .video { font-size: 12px; color: var(--text-secondary); margin-top: 8px; }

        .image-modal {
            display: none; position: fixed; inset: 0; background: rgba(0, 0, 0, 0.9);
            justify-content: center; align-items: center; z-index: 1000;
        }
        .image-modal.active { display: flex; }
        .image-modal img { max-width: 95%; max-height: 95%; }
        .empty-state { color: var(--text-muted); padding: 24px; text-align: center; }
    </style>
</head>
<body>
    <div class="header">
        <div>
            <span class="header-title">{{.Config.Title}}</span>
            <span class="header-title-sub">{{.GeneratedAt}}</span>
        </div>
        {{if or .Config.Project .Config.BaseURL}}
        <div class="header-meta">
            {{if .Config.Project}}Project: <strong>{{.Config.Project}}</strong>{{end}}
            {{if .Config.Feature}} | Feature: <strong>{{.Config.Feature}}</strong>{{end}}
            {{if .Config.BaseURL}} | Base URL: {{.Config.BaseURL}}{{end}}
            {{if .Config.Driver}} | Driver: {{.Config.Driver}}{{end}}
        </div>
        {{end}}
        <div class="dashboard">
            <div class="pie-chart" style="{{.PieStyle}}">
                <div class="pie-center">{{printf "%.0f" .PassRate}}%</div>
            </div>
            <div class="stat-card">
                <div class="stat-value {{if eq .Failed 0}}passed{{else}}failed{{end}}">{{.Passed}}/{{.Total}}</div>
                <div class="stat-label">Scenarios passed</div>
            </div>
            <div class="stat-card">
                <div class="stat-value">{{.TotalDuration}}</div>
                <div class="stat-label">Total duration</div>
            </div>
            <div class="stat-card">
                <div class="stat-value">{{.Screenshots}}</div>
                <div class="stat-label">Screenshots</div>
            </div>
            <div class="stat-card">
                <div class="stat-value">{{.Videos}}</div>
                <div class="stat-label">Videos</div>
            </div>
        </div>
    </div>

    <div class="main-container">
        <div class="filters">
            <button class="filter-btn active" data-filter="all">All ({{.Total}})</button>
            <button class="filter-btn" data-filter="failed">Failed ({{.Failed}})</button>
            <button class="filter-btn" data-filter="passed">Passed ({{.Passed}})</button>
        </div>
        {{if not .Scenarios}}
        <div class="empty-state">No scenarios were run</div>
        {{end}}
        {{range .Scenarios}}
        <details class="flow-item {{.StatusClass}}" data-status="{{.StatusClass}}"{{if eq .StatusClass "failed"}} open{{end}}>
            <summary>
                <span class="status-dot {{.StatusClass}}"></span>
                {{if .StoryID}}<span class="story-id">{{.StoryID}}</span>{{end}}
                <span class="flow-name">{{.Name}}</span>
                <span class="flow-meta">
                    <span>{{.StepsPassed}}/{{len .Steps}} steps</span>
                    <span class="duration-bar"><span class="duration-fill" style="display:block; width: {{printf "%.1f" .DurationPct}}%"></span></span>
                    <span>{{.DurationStr}}</span>
                </span>
            </summary>
            <div class="flow-detail">
                <div class="command-list">
                    {{range .Steps}}
                    <div class="command {{.StatusClass}}">
                        <span class="command-index">{{.Index}}</span>
                        <span class="command-status">{{if eq .StatusClass "passed"}}&#10003;{{else}}&#10007;{{end}}</span>
                        <span class="command-type">{{.Action}}</span>
                        <span class="command-target">{{.Target}}</span>
                        <span>{{.DurationStr}}</span>
                    </div>
                    {{if .Error}}<div class="command-error">{{.Error}} <span class="error-category">[{{.Category}}]</span></div>{{end}}
                    {{end}}
                    {{range .Errors}}{{if eq .Step 0}}
                    <div class="command-error">{{.Action}}: {{.Error}}</div>
                    {{end}}{{end}}
                </div>
                {{if .Screenshots}}
                <div class="screenshots-grid">
                    {{range .Screenshots}}
                    <div class="screenshot-card">
                        <img src="{{.Src}}" alt="{{.Caption}}" onclick="openModal(this.src)">
                        <div class="caption">{{.Caption}}</div>
                    </div>
                    {{end}}
                </div>
                {{end}}
                {{if .Video}}<div class="video">Video: {{.Video}}</div>{{end}}
            </div>
        </details>
        {{end}}
    </div>

    <div class="image-modal" id="image-modal" onclick="closeModal()">
        <img id="modal-image" src="" alt="Screenshot">
    </div>

    <script>
        function openModal(src) {
            document.getElementById('modal-image').src = src;
            document.getElementById('image-modal').classList.add('active');
        }
        function closeModal() {
            document.getElementById('image-modal').classList.remove('active');
        }
        document.addEventListener('keydown', function (e) {
            if (e.key === 'Escape') closeModal();
        });
        document.querySelectorAll('.filter-btn').forEach(function (btn) {
            btn.addEventListener('click', function () {
                document.querySelectorAll('.filter-btn').forEach(function (b) { b.classList.remove('active'); });
                btn.classList.add('active');
                var filter = btn.dataset.filter;
                document.querySelectorAll('.flow-item').forEach(function (item) {
                    item.style.display = (filter === 'all' || item.dataset.status === filter) ? '' : 'none';
                });
            });
        });
    </script>
</body>
</html>
`
