package errors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Payload errors
	ErrValidationFailed = errors.New("validation failed")

	// Automation errors
	ErrAutomationTimeout = errors.New("automation timeout")
	ErrElementNotFound   = errors.New("element not found")
	ErrSessionClosed     = errors.New("browser session closed")
	ErrSessionPoolFull   = errors.New("browser session pool exhausted")

	// Upstream errors
	ErrUpstreamRejected = errors.New("rejected by remote site")

	// Solver errors
	ErrSolverTerminal    = errors.New("captcha solver terminal error")
	ErrSolverUnavailable = errors.New("captcha solver unavailable")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")
	ErrTransactionInProgress = errors.New("transaction already in progress")

	// Reporting errors
	ErrReportRejected = errors.New("reporting api rejected notification")
)

// FieldError describes one violated constraint of an inbound payload.
type FieldError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError carries every field violation found in a payload.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidationFailed.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Path, f.Message))
	}
	return fmt.Sprintf("%s: %s", ErrValidationFailed, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a validation error for a single field.
func NewValidationError(path, code, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Path: path, Code: code, Message: message}}}
}

// UpstreamRejection is raised when the remote site answers with a non-200
// status or shows a business error banner.
type UpstreamRejection struct {
	Status  int
	Message string
	Context map[string]string
}

func (e *UpstreamRejection) Error() string {
	return fmt.Sprintf("upstream rejected with status %d: %s", e.Status, e.Message)
}

func (e *UpstreamRejection) Unwrap() error {
	return ErrUpstreamRejected
}

// AutomationTimeout is raised when a DOM marker never appeared in time.
type AutomationTimeout struct {
	Stage    string
	Selector string
	Err      error
}

func (e *AutomationTimeout) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: waiting for %q: %v", e.Stage, e.Selector, e.Err)
	}
	return fmt.Sprintf("%s: waiting for %q: timed out", e.Stage, e.Selector)
}

func (e *AutomationTimeout) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrAutomationTimeout}
	}
	return []error{ErrAutomationTimeout, e.Err}
}

// SolverTerminalError is raised when the captcha service reports a condition
// that no further attempt can fix.
type SolverTerminalError struct {
	Code string
}

func (e *SolverTerminalError) Error() string {
	return "2captcha error: " + e.Code
}

func (e *SolverTerminalError) Unwrap() error {
	return ErrSolverTerminal
}
