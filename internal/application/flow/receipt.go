package flow

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/stage"
	"github.com/slickpay/epayrobot/pkg/saga"
)

// collectReceipt prints the paid receipt and reports it. It never fails the
// flow: problems are logged and ok is false.
func (e *Engine) collectReceipt(ctx context.Context, d *stage.Driver, invoiceID string, logger zerolog.Logger) (file string, ok bool) {
	logo, shown, err := d.ReadText(ctx, receiptLogo)
	if err != nil || !shown || !strings.Contains(logo, receiptLogoKeyword) {
		return "", false
	}

	receipt, err := scrapeReceipt(ctx, d)
	if err != nil {
		logger.Error().Err(err).Str("invoice", invoiceID).Msg("failed to read receipt table")
		return "", false
	}

	pipeline := saga.New("receipt").
		AddStep(saga.Step{
			Name: "render-pdf",
			Execute: func(ctx context.Context) error {
				if err := d.Page().AddStyle(ctx, receiptHiddenStyle); err != nil {
					return err
				}
				pdf, err := d.Page().PrintPDF(ctx, stage.ReceiptPDF)
				if err != nil {
					return err
				}
				receipt.File, err = e.invoices.SaveInvoice(invoiceID, pdf)
				return err
			},
			Compensate: func(ctx context.Context) error {
				return e.invoices.RemoveInvoice(invoiceID)
			},
		}).
		AddStep(saga.Step{
			Name: "notify",
			Execute: func(ctx context.Context) error {
				return e.notifier.Notify(ctx, invoiceID, receipt)
			},
		})

	if err := pipeline.Execute(ctx); err != nil {
		logger.Error().Err(err).Str("invoice", invoiceID).Msg("receipt reporting failed")
		return "", false
	}
	logger.Info().Str("invoice", invoiceID).Msg("receipt reported")
	return receipt.File, true
}

func scrapeReceipt(ctx context.Context, d *stage.Driver) (transaction.Receipt, error) {
	var r transaction.Receipt
	cells := []struct {
		selector string
		dst      *string
	}{
		{cellOperation, &r.Operation},
		{cellTransaction, &r.Transaction},
		{cellAuth, &r.Auth},
		{cellInvoice, &r.Invoice},
		{cellAmount, &r.Amount},
		{cellEBB, &r.EBB},
		{cellDate, &r.Date},
	}
	for _, c := range cells {
		text, _, err := d.ReadText(ctx, c.selector)
		if err != nil {
			return transaction.Receipt{}, err
		}
		*c.dst = strings.TrimSpace(text)
	}
	return r, nil
}
