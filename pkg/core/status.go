package core

import "fmt"

// StepStatus represents the execution status of a step
type StepStatus int

const (
	StatusPending StepStatus = iota // Created, not yet dispatched
	StatusRunning                   // Currently executing
	StatusPassed                    // Browser operation completed
	StatusFailed                    // Operation, assertion or lookup failed
)

// String returns the string representation of StepStatus
func (s StepStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusPassed:
		return "passed"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its string form in JSON output.
func (s StepStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a status written by MarshalText.
func (s *StepStatus) UnmarshalText(text []byte) error {
	switch string(text) {
	case "pending":
		*s = StatusPending
	case "running":
		*s = StatusRunning
	case "passed":
		*s = StatusPassed
	case "failed":
		*s = StatusFailed
	default:
		return fmt.Errorf("unknown step status %q", text)
	}
	return nil
}

// IsTerminal returns true if the status is a final state
func (s StepStatus) IsTerminal() bool {
	return s == StatusPassed || s == StatusFailed
}

// ErrorCategory classifies the type of error for better debugging and reporting
type ErrorCategory int

const (
	ErrCategoryNone          ErrorCategory = iota // No error
	ErrCategoryAction                             // Browser operation failed
	ErrCategoryAssertion                          // Expected condition did not hold
	ErrCategoryTimeout                            // Wait exceeded its timeout
	ErrCategoryUnknownAction                      // Step names an unrecognized action
	ErrCategoryConfig                             // Missing or invalid step parameter
	ErrCategoryCapture                            // Diagnostic screenshot could not be taken
	ErrCategorySession                            // Browser or session could not be acquired
)

// String returns the string representation of ErrorCategory
func (c ErrorCategory) String() string {
	switch c {
	case ErrCategoryNone:
		return "none"
	case ErrCategoryAction:
		return "action"
	case ErrCategoryAssertion:
		return "assertion"
	case ErrCategoryTimeout:
		return "timeout"
	case ErrCategoryUnknownAction:
		return "unknown_action"
	case ErrCategoryConfig:
		return "config"
	case ErrCategoryCapture:
		return "capture"
	case ErrCategorySession:
		return "session"
	default:
		return "unknown"
	}
}

// MarshalText encodes the category as its string form.
func (c ErrorCategory) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a category written by MarshalText.
func (c *ErrorCategory) UnmarshalText(text []byte) error {
	for cat := ErrCategoryNone; cat <= ErrCategorySession; cat++ {
		if cat.String() == string(text) {
			*c = cat
			return nil
		}
	}
	return fmt.Errorf("unknown error category %q", text)
}

// IsStepFailure reports whether errors of this category fail the step.
// Capture errors are diagnostics only.
func (c ErrorCategory) IsStepFailure() bool {
	switch c {
	case ErrCategoryAction, ErrCategoryAssertion, ErrCategoryTimeout,
		ErrCategoryUnknownAction, ErrCategoryConfig:
		return true
	default:
		return false
	}
}
