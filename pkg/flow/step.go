// Package flow handles parsing and representation of flow test definitions.
package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ActionKind identifies the browser operation a step performs.
type ActionKind string

// Action kind constants.
const (
	// Navigation
	ActionNavigate          ActionKind = "navigate"
	ActionReload            ActionKind = "reload"
	ActionGoBack            ActionKind = "goBack"
	ActionGoForward         ActionKind = "goForward"
	ActionWaitForNavigation ActionKind = "waitForNavigation"
	ActionWaitForURL        ActionKind = "waitForURL"
	ActionWaitForLoadState  ActionKind = "waitForLoadState"

	// Element interaction
	ActionClick       ActionKind = "click"
	ActionDoubleClick ActionKind = "doubleClick"
	ActionType        ActionKind = "type"
	ActionFill        ActionKind = "fill"
	ActionClear       ActionKind = "clear"
	ActionHover       ActionKind = "hover"
	ActionSelect      ActionKind = "select"
	ActionCheck       ActionKind = "check"
	ActionUncheck     ActionKind = "uncheck"
	ActionFocus       ActionKind = "focus"
	ActionBlur        ActionKind = "blur"
	ActionUpload      ActionKind = "upload"
	ActionDrag        ActionKind = "drag"
	ActionScroll      ActionKind = "scroll"
	ActionWaitFor     ActionKind = "waitFor"

	// Keyboard
	ActionPress ActionKind = "press"

	// Assertions & media
	ActionAssert     ActionKind = "assert"
	ActionScreenshot ActionKind = "screenshot"

	// Other
	ActionWait     ActionKind = "wait"
	ActionEvaluate ActionKind = "evaluate"
)

// ActionKinds lists every action the dispatcher understands.
var ActionKinds = []ActionKind{
	ActionNavigate, ActionClick, ActionDoubleClick, ActionType, ActionFill,
	ActionClear, ActionPress, ActionWaitFor, ActionWaitForNavigation,
	ActionWaitForURL, ActionWaitForLoadState, ActionAssert, ActionScreenshot,
	ActionScroll, ActionHover, ActionSelect, ActionCheck, ActionUncheck,
	ActionFocus, ActionBlur, ActionUpload, ActionDrag, ActionWait,
	ActionEvaluate, ActionReload, ActionGoBack, ActionGoForward,
}

// IsKnown reports whether k is one of ActionKinds.
func (k ActionKind) IsKnown() bool {
	for _, known := range ActionKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Position is an absolute scroll target in CSS pixels.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// StringList accepts either a single string or a list of strings.
type StringList []string

// UnmarshalJSON decodes "a" or ["a", "b"].
func (l *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*l = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("expected string or list of strings: %w", err)
	}
	*l = list
	return nil
}

// UnmarshalYAML decodes a scalar or a sequence.
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Step is one declarative instruction: an action kind plus its parameters.
// Which parameters are meaningful depends on Action.
type Step struct {
	Action ActionKind `json:"action" yaml:"action"`

	Selector string  `json:"selector,omitempty" yaml:"selector,omitempty"`
	URL      string  `json:"url,omitempty" yaml:"url,omitempty"`
	Text     string  `json:"text,omitempty" yaml:"text,omitempty"`
	Value    *string `json:"value,omitempty" yaml:"value,omitempty"`
	Key      string  `json:"key,omitempty" yaml:"key,omitempty"`
	State    string  `json:"state,omitempty" yaml:"state,omitempty"`

	TimeoutMs int  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	DelayMs   *int `json:"delay,omitempty" yaml:"delay,omitempty"`

	// assert
	Contains      string  `json:"contains,omitempty" yaml:"contains,omitempty"`
	Visible       *bool   `json:"visible,omitempty" yaml:"visible,omitempty"`
	Count         *int    `json:"count,omitempty" yaml:"count,omitempty"`
	Attribute     string  `json:"attribute,omitempty" yaml:"attribute,omitempty"`
	ExpectedValue *string `json:"expectedValue,omitempty" yaml:"expectedValue,omitempty"`

	// screenshot
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	FullPage bool   `json:"fullPage,omitempty" yaml:"fullPage,omitempty"`

	// scroll
	Position  *Position `json:"position,omitempty" yaml:"position,omitempty"`
	Direction string    `json:"direction,omitempty" yaml:"direction,omitempty"`

	// upload, drag
	Files  StringList `json:"files,omitempty" yaml:"files,omitempty"`
	Source string     `json:"source,omitempty" yaml:"source,omitempty"`
	Target string     `json:"target,omitempty" yaml:"target,omitempty"`

	// wait, evaluate
	DurationMs int    `json:"duration,omitempty" yaml:"duration,omitempty"`
	Script     string `json:"script,omitempty" yaml:"script,omitempty"`

	// params holds the decoded document keys (minus action) when the step
	// was loaded from a file.
	params   map[string]interface{}
	paramErr error
}

// UnmarshalJSON decodes a step and keeps its raw parameters. A parameter of
// the wrong type does not fail the document; it is recorded and reported
// by ParamError.
func (s *Step) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	type plain Step
	var p plain
	var errs []string
	if err := json.Unmarshal(data, &p); err != nil {
		p = plain{}
		for _, key := range sortedKeys(raw) {
			field, _ := json.Marshal(map[string]json.RawMessage{key: fields[key]})
			// decoding allocates pointer fields even when the value is rejected
			var scratch plain
			if err := json.Unmarshal(field, &scratch); err != nil {
				errs = append(errs, jsonFieldError(key, err))
				continue
			}
			_ = json.Unmarshal(field, &p)
		}
	}

	delete(raw, "action")
	*s = Step(p)
	s.params = raw
	s.paramErr = joinParamErrors(errs)
	return nil
}

// UnmarshalYAML decodes a step and keeps its raw parameters. Parameter
// type errors are recorded like in UnmarshalJSON.
func (s *Step) UnmarshalYAML(node *yaml.Node) error {
	var raw map[string]interface{}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	type plain Step
	var p plain
	var errs []string
	if err := node.Decode(&p); err != nil {
		p = plain{}
		for i := 0; i+1 < len(node.Content); i += 2 {
			field := &yaml.Node{
				Kind:    yaml.MappingNode,
				Tag:     "!!map",
				Content: []*yaml.Node{node.Content[i], node.Content[i+1]},
			}
			var scratch plain
			if err := field.Decode(&scratch); err != nil {
				errs = append(errs, yamlFieldError(node.Content[i].Value, err))
				continue
			}
			_ = field.Decode(&p)
		}
	}

	delete(raw, "action")
	*s = Step(p)
	s.params = raw
	s.paramErr = joinParamErrors(errs)
	return nil
}

// ParamError reports parameters that could not be decoded into their typed
// fields, or nil.
func (s Step) ParamError() error {
	return s.paramErr
}

func jsonFieldError(key string, err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("%s: expected %s, got %s", key, typeErr.Type, typeErr.Value)
	}
	return fmt.Sprintf("%s: %v", key, err)
}

func yamlFieldError(key string, err error) string {
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) && len(typeErr.Errors) > 0 {
		return fmt.Sprintf("%s: %s", key, strings.Join(typeErr.Errors, "; "))
	}
	return fmt.Sprintf("%s: %v", key, err)
}

func joinParamErrors(errs []string) error {
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("invalid parameter %s", strings.Join(errs, ", "))
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Params returns the step's parameters without the action key.
// The returned map is a copy.
func (s Step) Params() map[string]interface{} {
	out := make(map[string]interface{})
	if s.params != nil {
		for k, v := range s.params {
			out[k] = v
		}
		return out
	}

	data, err := json.Marshal(s)
	if err != nil {
		return out
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return map[string]interface{}{}
	}
	delete(out, "action")
	return out
}

// target returns the most descriptive parameter for logs: the selector,
// URL or key, whichever is set first.
func (s Step) target() string {
	switch {
	case s.Selector != "":
		return s.Selector
	case s.URL != "":
		return s.URL
	case s.Key != "":
		return s.Key
	case s.Source != "":
		return s.Source + " -> " + s.Target
	}
	return ""
}

// Describe returns a human-readable description such as "click #submit".
func (s Step) Describe() string {
	if t := s.target(); t != "" {
		return strings.TrimSpace(string(s.Action) + " " + t)
	}
	return string(s.Action)
}

// StringPtr returns a pointer to v. Handy for building steps in code.
func StringPtr(v string) *string { return &v }

// BoolPtr returns a pointer to v.
func BoolPtr(v bool) *bool { return &v }

// IntPtr returns a pointer to v.
func IntPtr(v int) *int { return &v }
