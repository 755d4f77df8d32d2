package executor

import (
	"github.com/devicelab-dev/flowtest/pkg/flow"
	"github.com/devicelab-dev/flowtest/pkg/jsengine"
)

// ScriptEngine expands ${...} references in step parameters. Each scenario
// gets its own engine so no script state crosses scenario boundaries.
type ScriptEngine struct {
	js *jsengine.Engine
}

// NewScriptEngine creates an engine with vars defined as globals.
func NewScriptEngine(vars map[string]string) *ScriptEngine {
	se := &ScriptEngine{js: jsengine.New()}
	se.js.SetVariables(vars)
	return se
}

// ExpandVariables expands ${expr} syntax in text.
func (se *ScriptEngine) ExpandVariables(text string) string {
	return se.js.ExpandVariables(text)
}

// ExpandStep returns a copy of step with variables expanded in its string
// parameters. Scripts are left alone: ${...} there is page JavaScript.
func (se *ScriptEngine) ExpandStep(step flow.Step) flow.Step {
	s := step
	s.Selector = se.ExpandVariables(s.Selector)
	s.URL = se.ExpandVariables(s.URL)
	s.Text = se.ExpandVariables(s.Text)
	s.Key = se.ExpandVariables(s.Key)
	s.Contains = se.ExpandVariables(s.Contains)
	s.Attribute = se.ExpandVariables(s.Attribute)
	s.Name = se.ExpandVariables(s.Name)
	s.Source = se.ExpandVariables(s.Source)
	s.Target = se.ExpandVariables(s.Target)
	s.Value = se.expandPtr(s.Value)
	s.ExpectedValue = se.expandPtr(s.ExpectedValue)

	if len(step.Files) > 0 {
		s.Files = make(flow.StringList, len(step.Files))
		for i, f := range step.Files {
			s.Files[i] = se.ExpandVariables(f)
		}
	}
	return s
}

func (se *ScriptEngine) expandPtr(v *string) *string {
	if v == nil {
		return nil
	}
	expanded := se.ExpandVariables(*v)
	return &expanded
}
