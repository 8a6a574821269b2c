// Package captcha models the answers of the external captcha solving service
// and maps every one of them to exactly one loop decision.
package captcha

import "slices"

// Code is a status string returned by the solver in the "request" field.
type Code string

const (
	CodeNotReady        Code = "CAPCHA_NOT_READY"
	CodeWrongUserKey    Code = "ERROR_WRONG_USER_KEY"
	CodeKeyDoesNotExist Code = "ERROR_KEY_DOES_NOT_EXIST"
	CodeZeroBalance     Code = "ERROR_ZERO_BALANCE"
	CodePageURL         Code = "ERROR_PAGEURL"
	CodeNoSlotAvailable Code = "ERROR_NO_SLOT_AVAILABLE"
	CodeBadParameters   Code = "ERROR_BAD_PARAMETERS"
	CodeTokenExpired    Code = "ERROR_TOKEN_EXPIRED"

	// CodeAttemptsExhausted is reported when the loop gave up without the
	// solver ever naming a reason.
	CodeAttemptsExhausted Code = "ERROR_ATTEMPTS_EXHAUSTED"
)

// Codes that end a submission attempt for good.
var terminalSubmitCodes = []Code{
	CodeWrongUserKey,
	CodeKeyDoesNotExist,
	CodeZeroBalance,
	CodePageURL,
	CodeNoSlotAvailable,
	CodeBadParameters,
}

// Codes that end a poll for good.
var terminalPollCodes = []Code{
	CodeWrongUserKey,
	CodeTokenExpired,
}

// Decision is what the resolution loop does next.
type Decision int

const (
	// DecisionRetry captures a fresh challenge and submits it again.
	DecisionRetry Decision = iota + 1
	// DecisionResend waits and polls the same submission again.
	DecisionResend
	// DecisionAbort stops the loop with the classified message.
	DecisionAbort
	// DecisionSucceed applies the solution.
	DecisionSucceed
)

func (d Decision) String() string {
	switch d {
	case DecisionRetry:
		return "retry"
	case DecisionResend:
		return "resend"
	case DecisionAbort:
		return "abort"
	case DecisionSucceed:
		return "succeed"
	default:
		return "unknown"
	}
}

// Response is the JSON body of both solver endpoints.
type Response struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// OK reports whether the solver accepted the call.
func (r Response) OK() bool {
	return r.Status == 1
}

// Code returns the status code carried by a rejected call.
func (r Response) Code() Code {
	return Code(r.Request)
}

// ClassifySubmission maps a submit answer. An accepted submission returns
// DecisionSucceed: the challenge is in the solver's hands and may be polled.
func ClassifySubmission(r Response) Decision {
	if r.OK() {
		return DecisionSucceed
	}
	if slices.Contains(terminalSubmitCodes, r.Code()) {
		return DecisionAbort
	}
	return DecisionRetry
}

// ClassifyPoll maps a poll answer. Unknown statuses are retried with a fresh
// challenge.
func ClassifyPoll(r Response) Decision {
	if r.OK() {
		return DecisionSucceed
	}
	switch {
	case r.Code() == CodeNotReady:
		return DecisionResend
	case slices.Contains(terminalPollCodes, r.Code()):
		return DecisionAbort
	default:
		return DecisionRetry
	}
}

// Challenge is one captured image and, once submitted, its solver id.
type Challenge struct {
	Image        []byte
	ArtifactPath string
	SubmissionID string
}

// Attempt tracks the progress of one resolution loop.
type Attempt struct {
	Captures    int
	Submissions int
	Polls       int
	LastCode    Code
}

// Exhausted reports whether max captures have been spent.
func (a Attempt) Exhausted(max int) bool {
	return max > 0 && a.Captures >= max
}
