package transaction

import (
	"errors"
	"net/http"
	"strings"

	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
)

// Result is the single terminal value of a flow.
type Result struct {
	Success bool
	Status  int
	Message string
	URL     string
	File    string
	Fields  []domainErrors.FieldError
	Context map[string]string
}

// Succeeded reports a flow that reached its final page.
func Succeeded(url string) Result {
	return Result{Success: true, Status: http.StatusOK, URL: url}
}

// SucceededWithFile reports a success that also produced an artifact.
func SucceededWithFile(url, file string) Result {
	r := Succeeded(url)
	r.File = file
	return r
}

// Failed reports a terminal failure with the given status.
func Failed(status int, message string) Result {
	return Result{Status: status, Message: message}
}

// FromError maps the error taxonomy onto a failure result.
func FromError(err error) Result {
	if err == nil {
		return Failed(http.StatusInternalServerError, "Server error")
	}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		r := Failed(http.StatusUnprocessableEntity, domainErrors.ErrValidationFailed.Error())
		r.Fields = validationErr.Fields
		return r
	}

	var upstream *domainErrors.UpstreamRejection
	if errors.As(err, &upstream) {
		r := Failed(upstream.Status, upstream.Message)
		r.Context = upstream.Context
		return r
	}

	var solverErr *domainErrors.SolverTerminalError
	if errors.As(err, &solverErr) {
		return Failed(http.StatusInternalServerError, solverErr.Error())
	}

	if errors.Is(err, domainErrors.ErrTransactionInProgress) {
		return Failed(http.StatusConflict, domainErrors.ErrTransactionInProgress.Error())
	}
	if errors.Is(err, domainErrors.ErrSessionPoolFull) {
		return Failed(http.StatusServiceUnavailable, domainErrors.ErrSessionPoolFull.Error())
	}

	return Failed(http.StatusInternalServerError, err.Error())
}

// NormalizeDecimal turns a decimal comma into a dot so remote forms accept
// the amount. Applying it more than once yields the same value.
func NormalizeDecimal(v string) string {
	return strings.ReplaceAll(strings.TrimSpace(v), ",", ".")
}
