package controller

import (
	"context"
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
)

const maxBodyBytes = 1 << 20

// Dispatcher runs one transaction payload to its Result.
type Dispatcher interface {
	Dispatch(ctx context.Context, body []byte) transaction.Result
}

type TransactionController struct {
	dispatcher Dispatcher
	redirect   string
}

func NewTransactionController(dispatcher Dispatcher, defaultRedirect string) *TransactionController {
	return &TransactionController{dispatcher: dispatcher, redirect: defaultRedirect}
}

// Handle runs the transaction described by the JSON body.
func (c *TransactionController) Handle(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeResult(w, transaction.Failed(http.StatusRequestEntityTooLarge, "request body too large"))
			return
		}
		writeResult(w, transaction.FromError(domainErrors.NewValidationError("body", "read", err.Error())))
		return
	}

	writeResult(w, c.dispatcher.Dispatch(r.Context(), body))
}

// Redirect sends every non-POST caller to the public site.
func (c *TransactionController) Redirect(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		writeResult(w, transaction.Failed(http.StatusNotFound, "404 Not Found"))
		return
	}
	http.Redirect(w, r, c.redirect, http.StatusFound)
}
