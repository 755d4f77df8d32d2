// Package report writes suite results to disk and renders them as an HTML
// summary or Allure result files.
//
// Layout:
//   - flow-test-results.json: the SuiteResult, rewritten atomically
//   - <reportDir>/report.html: static HTML summary
//   - <reportDir>/allure-results/: one result file per scenario
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devicelab-dev/flowtest/pkg/core"
)

// DefaultReportDir is where HTML and Allure output go when not configured.
const DefaultReportDir = ".claude/reports"

// WriteResults writes suite as indented JSON to path, creating parent
// directories as needed.
func WriteResults(path string, suite *core.SuiteResult) error {
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create results dir: %w", err)
	}
	if err := atomicWriteJSON(path, suite); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	return nil
}

// ReadResults loads a results file written by WriteResults.
func ReadResults(path string) (*core.SuiteResult, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- user-provided results file
	if err != nil {
		return nil, err
	}
	suite := core.NewSuiteResult()
	if err := json.Unmarshal(data, suite); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return suite, nil
}

// atomicWriteJSON writes v to a temp file next to path and renames it into
// place, so readers never see a partial file.
func atomicWriteJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
