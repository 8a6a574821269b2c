package flow

import (
	"context"
	"net/http"
	"strings"

	"github.com/slickpay/epayrobot/internal/application/resolution"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/stage"
)

// billQuery looks up a bill and solves the image captcha that guards the
// payment page. The reached payment URL is returned.
func (e *Engine) billQuery(ctx context.Context, d *stage.Driver, req transaction.BillQuery) (transaction.Result, error) {
	if err := d.Navigate(ctx, e.cfg.Services.BillAURL); err != nil {
		return transaction.Result{}, err
	}
	if err := d.WaitForMarker(ctx, billAForm); err != nil {
		return transaction.Result{}, err
	}

	fields := []struct{ selector, value string }{
		{billAInvoice, req.Invoice.String()},
		{billAAmount, transaction.NormalizeDecimal(req.Amount.String())},
		{billAKey, req.Key.String()},
	}
	for _, f := range fields {
		if err := d.FillField(ctx, f.selector, f.value); err != nil {
			return transaction.Result{}, err
		}
	}
	if err := d.ClickAndWait(ctx, billASubmit, stage.WaitNetworkIdle); err != nil {
		return transaction.Result{}, err
	}
	if err := d.WaitForMarker(ctx, billAForm); err != nil {
		return transaction.Result{}, err
	}
	if err := rejectOnBanner(ctx, d, billAErrorBanner, billAErrorBanner, false); err != nil {
		return transaction.Result{}, err
	}

	if err := d.WaitForMarker(ctx, billACaptchaImg); err != nil {
		return transaction.Result{}, err
	}
	reached, err := e.resolver.Resolve(ctx, d, resolution.Target{
		ImageSelector:  billACaptchaImg,
		AcceptSelector: billAAccept,
		AnswerSelector: billAAnswer,
		SubmitSelector: billAConfirm,
		ExpectedHost:   e.cfg.Services.BillANextHost,
	})
	if err != nil {
		return transaction.Result{}, err
	}
	return transaction.Succeeded(reached), nil
}

// codeConfirmation enters the four-part client code, solves the embedded
// reCAPTCHA and confirms.
func (e *Engine) codeConfirmation(ctx context.Context, d *stage.Driver, req transaction.CodeConfirmation) (transaction.Result, error) {
	if err := d.Navigate(ctx, e.cfg.Services.BillBURL); err != nil {
		return transaction.Result{}, err
	}
	if err := d.WaitForMarker(ctx, billBForm); err != nil {
		return transaction.Result{}, err
	}

	parts := req.Parts()
	if len(parts) != len(billBCodeFields) {
		return transaction.Result{}, domainErrors.NewValidationError("code", "fourpart", "must have four space separated parts")
	}
	for i, selector := range billBCodeFields {
		if err := d.FillField(ctx, selector, parts[i]); err != nil {
			return transaction.Result{}, err
		}
	}
	if err := d.ClickAndWait(ctx, billBSubmit, stage.WaitNetworkIdle); err != nil {
		return transaction.Result{}, err
	}
	if err := d.WaitForMarker(ctx, billBForm); err != nil {
		return transaction.Result{}, err
	}
	if err := rejectOnBanner(ctx, d, billBErrorBanner, billBErrorText, true); err != nil {
		return transaction.Result{}, err
	}

	if err := d.Page().SolveRecaptchas(ctx); err != nil {
		return transaction.Result{}, err
	}
	if err := d.ClickAndWait(ctx, billBCheckbox, stage.NoWait); err != nil {
		return transaction.Result{}, err
	}
	if err := d.ClickAndWait(ctx, billBConfirmButton, stage.WaitNavigation); err != nil {
		return transaction.Result{}, err
	}

	final, err := d.Location(ctx)
	if err != nil {
		return transaction.Result{}, err
	}
	return transaction.Succeeded(final.String()), nil
}

// rejectOnBanner turns a visible business error banner into a 400
// rejection carrying the banner text.
func rejectOnBanner(ctx context.Context, d *stage.Driver, banner, textSelector string, unwrap bool) error {
	if _, shown, err := d.ReadText(ctx, banner); err != nil || !shown {
		return err
	}
	text, _, err := d.ReadText(ctx, textSelector)
	if err != nil {
		return err
	}
	if unwrap {
		text = trimEnclosing(text)
	}
	return &domainErrors.UpstreamRejection{Status: http.StatusBadRequest, Message: strings.TrimSpace(text)}
}

// trimEnclosing drops the first and last character, which the code page
// wraps its messages in.
func trimEnclosing(s string) string {
	r := []rune(s)
	if len(r) < 2 {
		return s
	}
	return string(r[1 : len(r)-1])
}
