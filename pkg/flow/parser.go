package flow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseError represents a parsing error with location info.
type ParseError struct {
	Path    string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ParseRequirementsFile reads and parses a requirements document.
// Files ending in .yaml or .yml are decoded as YAML, everything else as JSON.
func ParseRequirementsFile(path string) (*Requirements, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided requirements file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseRequirements(data, path)
}

// ParseRequirements parses requirements document content.
func ParseRequirements(data []byte, sourcePath string) (*Requirements, error) {
	var req Requirements
	if err := decode(data, sourcePath, &req); err != nil {
		return nil, err
	}
	req.SourcePath = sourcePath

	for i, story := range req.UserStories {
		for j, sc := range story.TestScenarios {
			if sc.Name == "" {
				req.UserStories[i].TestScenarios[j].Name = fmt.Sprintf("%s-scenario-%d", story.ID, j+1)
			}
		}
	}
	return &req, nil
}

// ParseScenarioFile reads and parses a single scenario document.
func ParseScenarioFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path) //#nosec G304 -- path is user-provided scenario file
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseScenario(data, path)
}

// ParseScenario parses scenario document content.
func ParseScenario(data []byte, sourcePath string) (*Scenario, error) {
	var sc Scenario
	if err := decode(data, sourcePath, &sc); err != nil {
		return nil, err
	}
	if sc.Name == "" {
		base := filepath.Base(sourcePath)
		sc.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return &sc, nil
}

func decode(data []byte, sourcePath string, v interface{}) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return &ParseError{Path: sourcePath, Line: 1, Message: "empty document"}
	}

	if isYAML(sourcePath) {
		if err := yaml.Unmarshal(data, v); err != nil {
			return &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid YAML: %v", err)}
		}
		return nil
	}

	if err := json.Unmarshal(data, v); err != nil {
		pe := &ParseError{Path: sourcePath, Message: fmt.Sprintf("invalid JSON: %v", err)}
		if se, ok := err.(*json.SyntaxError); ok {
			pe.Line = lineOf(data, se.Offset)
		}
		return pe
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// lineOf converts a byte offset into a 1-based line number.
func lineOf(data []byte, offset int64) int {
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return bytes.Count(data[:offset], []byte("\n")) + 1
}
