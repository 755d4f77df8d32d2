package cli

import (
	"fmt"

	"github.com/devicelab-dev/flowtest/pkg/core"
	"github.com/devicelab-dev/flowtest/pkg/driver/chrome"
	"github.com/devicelab-dev/flowtest/pkg/driver/mock"
	"github.com/devicelab-dev/flowtest/pkg/flow"
)

// Driver names accepted by --driver.
const (
	driverChrome = "chrome"
	driverMock   = "mock"
)

// resolveDriverName picks the --driver flag, then the workspace config,
// then chrome.
func resolveDriverName(flag, configured string) string {
	if flag != "" {
		return flag
	}
	if configured != "" {
		return configured
	}
	return driverChrome
}

// newLauncher creates the launcher for a driver name. The mock driver runs
// against a page seeded from scenarios so every referenced element exists.
func newLauncher(name string, scenarios []flow.Scenario) (core.Launcher, error) {
	switch name {
	case driverChrome:
		return chrome.NewLauncher(), nil
	case driverMock:
		return mock.New(mock.Config{Setup: dryRunPage(scenarios)}), nil
	default:
		return nil, fmt.Errorf("unknown driver %q (want %s or %s)", name, driverChrome, driverMock)
	}
}

// dryRunPage returns a page setup that creates an element for every
// selector the scenarios touch, shaped so their assertions hold.
func dryRunPage(scenarios []flow.Scenario) func(p *mock.Page) {
	return func(p *mock.Page) {
		for _, sc := range scenarios {
			for _, step := range sc.Steps {
				seedStep(p, step)
			}
		}
	}
}

func seedStep(p *mock.Page, step flow.Step) {
	switch step.Action {
	case flow.ActionDrag:
		ensure(p, step.Source)
		ensure(p, step.Target)
	case flow.ActionWaitFor:
		switch core.ElementState(step.State) {
		case core.StateDetached:
		case core.StateHidden:
			el, _ := p.Element(step.Selector)
			el.Hidden = true
			p.Set(step.Selector, el)
		default:
			ensure(p, step.Selector)
		}
	case flow.ActionAssert:
		if step.Selector == "" {
			return
		}
		if step.Count != nil && *step.Count == 0 {
			return
		}
		el, _ := p.Element(step.Selector)
		if step.Contains != "" {
			el.Text = step.Contains
		}
		if step.Visible != nil {
			el.Hidden = !*step.Visible
		}
		if step.Count != nil {
			el.Count = *step.Count
		}
		if step.Value != nil {
			el.Value = *step.Value
		}
		if step.Attribute != "" {
			if el.Attrs == nil {
				el.Attrs = map[string]string{}
			}
			if step.ExpectedValue != nil {
				el.Attrs[step.Attribute] = *step.ExpectedValue
			} else {
				el.Attrs[step.Attribute] = ""
			}
		}
		p.Set(step.Selector, el)
	default:
		ensure(p, step.Selector)
	}
}

func ensure(p *mock.Page, selector string) {
	if selector == "" {
		return
	}
	if _, ok := p.Element(selector); !ok {
		p.Set(selector, mock.Element{})
	}
}
