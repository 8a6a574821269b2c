package errors

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_Error(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Path: "otp", Code: "min", Message: "must be at least 5 characters"},
		{Path: "url", Code: "required", Message: "is required"},
	}}

	assert.Equal(t, "validation failed: otp: must be at least 5 characters; url: is required", err.Error())
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestValidationError_NoFields(t *testing.T) {
	err := &ValidationError{}
	assert.Equal(t, "validation failed", err.Error())
}

func TestNewValidationError(t *testing.T) {
	err := NewValidationError("service", "enum", "unknown service")

	assert.Len(t, err.Fields, 1)
	assert.Equal(t, "service", err.Fields[0].Path)
	assert.Equal(t, "enum", err.Fields[0].Code)
}

func TestUpstreamRejection(t *testing.T) {
	err := &UpstreamRejection{Status: 400, Message: "Invalid key"}

	assert.Equal(t, "upstream rejected with status 400: Invalid key", err.Error())
	assert.ErrorIs(t, err, ErrUpstreamRejected)

	var target *UpstreamRejection
	assert.True(t, errors.As(err, &target))
	assert.Equal(t, 400, target.Status)
}

func TestAutomationTimeout(t *testing.T) {
	t.Run("wraps cause", func(t *testing.T) {
		err := &AutomationTimeout{Stage: "wait", Selector: "#formprin", Err: context.DeadlineExceeded}

		assert.ErrorIs(t, err, ErrAutomationTimeout)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Contains(t, err.Error(), "#formprin")
	})

	t.Run("without cause", func(t *testing.T) {
		err := &AutomationTimeout{Stage: "wait", Selector: "#authForm"}

		assert.ErrorIs(t, err, ErrAutomationTimeout)
		assert.Equal(t, `wait: waiting for "#authForm": timed out`, err.Error())
	})
}

func TestSolverTerminalError(t *testing.T) {
	err := &SolverTerminalError{Code: "ERROR_ZERO_BALANCE"}

	assert.Equal(t, "2captcha error: ERROR_ZERO_BALANCE", err.Error())
	assert.ErrorIs(t, err, ErrSolverTerminal)
}

func TestErrorConstants(t *testing.T) {
	assert.NotNil(t, ErrValidationFailed)
	assert.NotNil(t, ErrAutomationTimeout)
	assert.NotNil(t, ErrElementNotFound)
	assert.NotNil(t, ErrSessionClosed)
	assert.NotNil(t, ErrSessionPoolFull)
	assert.NotNil(t, ErrUpstreamRejected)
	assert.NotNil(t, ErrSolverTerminal)
	assert.NotNil(t, ErrSolverUnavailable)
	assert.NotNil(t, ErrLockAcquisitionFailed)
	assert.NotNil(t, ErrLockNotHeld)
	assert.NotNil(t, ErrTransactionInProgress)
	assert.NotNil(t, ErrReportRejected)
}
