package transaction

import (
	"net/http"

	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
)

// Envelope is the JSON body of every response, success or not.
type Envelope struct {
	Success  int                       `json:"success"`
	Error    int                       `json:"error"`
	Status   int                       `json:"status"`
	Message  string                    `json:"message,omitempty"`
	Messages []domainErrors.FieldError `json:"messages,omitempty"`
	URL      string                    `json:"url,omitempty"`
	File     string                    `json:"file,omitempty"`
}

// Envelope renders r. The HTTP status of the response is Envelope.Status.
func (r Result) Envelope() Envelope {
	if r.Success {
		return Envelope{Success: 1, Status: r.Status, URL: r.URL, File: r.File}
	}
	status := r.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Envelope{
		Error:    1,
		Status:   status,
		Message:  r.Message,
		Messages: r.Fields,
		URL:      r.Context["url"],
	}
}

// Forbidden is returned to callers failing the auth or IP check.
func Forbidden() Result {
	return Failed(http.StatusForbidden, "403 Forbidden")
}
