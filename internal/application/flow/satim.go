package flow

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/stage"
)

const expiredPaymentURL = "SATIM Url expired"

// cardPayment fills the card form and asks the bank to send the OTP. The
// returned URL is where the OTP confirmation resumes.
func (e *Engine) cardPayment(ctx context.Context, d *stage.Driver, req transaction.CardPayment) (transaction.Result, error) {
	if err := d.Navigate(ctx, req.URL); err != nil {
		var rejection *domainErrors.UpstreamRejection
		if errors.As(err, &rejection) && rejection.Status == http.StatusForbidden {
			rejection.Message = expiredPaymentURL
		}
		return transaction.Result{}, err
	}
	if err := d.WaitForMarker(ctx, cardForm); err != nil {
		return transaction.Result{}, err
	}

	fields := []struct{ selector, value string }{
		{cardPAN, req.PAN},
		{cardCVC, req.CVC},
		{cardMonth, req.Month},
		{cardYear, req.Year},
		{cardHolder, req.Holder},
	}
	for _, f := range fields {
		if err := d.FillField(ctx, f.selector, f.value); err != nil {
			return transaction.Result{}, err
		}
	}
	if err := d.ClickAndWait(ctx, cardSubmit, stage.WaitNetworkIdle); err != nil {
		return transaction.Result{}, err
	}

	if err := d.WaitForMarker(ctx, paymentTable); err != nil {
		return transaction.Result{}, err
	}
	resume, err := d.Location(ctx)
	if err != nil {
		return transaction.Result{}, err
	}

	if err := d.WaitForMarker(ctx, sendPasswordBtn); err != nil {
		return transaction.Result{}, err
	}
	if err := d.ClickAndWait(ctx, sendPasswordBtn, stage.WaitNetworkIdle); err != nil {
		return transaction.Result{}, err
	}
	return transaction.Succeeded(resume.String()), nil
}

// otpConfirmation submits the one-time password on the bank's auth page.
// A paid gas bill receipt is additionally printed and reported when the
// caller supplied the invoice id.
func (e *Engine) otpConfirmation(ctx context.Context, d *stage.Driver, req transaction.OTPConfirmation, logger zerolog.Logger) (transaction.Result, error) {
	if err := d.Navigate(ctx, req.URL); err != nil {
		return transaction.Result{}, err
	}
	if err := d.WaitForMarker(ctx, authForm); err != nil {
		return transaction.Result{}, err
	}

	loc, err := d.Location(ctx)
	if err != nil {
		return transaction.Result{}, err
	}
	input := otpMaskedInput
	if loc.Hostname() == e.cfg.Services.OTPVisibleHost {
		input = otpVisibleInput
	}

	if err := d.FillField(ctx, input, req.OTP); err != nil {
		return transaction.Result{}, err
	}
	if err := d.ClickAndWait(ctx, otpSubmit, stage.WaitNetworkIdle); err != nil {
		return transaction.Result{}, err
	}
	if err := pause(ctx, e.cfg.OTPDelay); err != nil {
		return transaction.Result{}, err
	}

	banner, shown, err := d.ReadText(ctx, otpErrorBanner)
	if err != nil {
		return transaction.Result{}, err
	}
	if shown {
		return transaction.Result{}, &domainErrors.UpstreamRejection{
			Status:  http.StatusBadRequest,
			Message: banner,
			Context: map[string]string{"url": req.URL},
		}
	}

	final, err := d.Location(ctx)
	if err != nil {
		return transaction.Result{}, err
	}
	invoiceID, ok := req.InvoiceID()
	if ok && final.Hostname() == e.cfg.Services.ReceiptHost {
		if file, ok := e.collectReceipt(ctx, d, invoiceID, logger); ok {
			return transaction.SucceededWithFile(final.String(), file), nil
		}
	}
	return transaction.Succeeded(final.String()), nil
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
