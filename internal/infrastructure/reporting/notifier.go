// Package reporting forwards scraped receipts to the internal reporting API.
package reporting

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/slickpay/epayrobot/pkg/retry"
)

const metaPath = "/api/puppeteer/meta/"

// DeadLetter parks notifications that could not be delivered.
type DeadLetter interface {
	PublishToDLQ(ctx context.Context, invoiceID string, reason string, payload []byte) error
}

// MessageSource is a consumer group over parked notifications.
type MessageSource interface {
	Read(ctx context.Context) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

type Notifier struct {
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	dlq        DeadLetter
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

// NewNotifier builds a notifier. dlq may be nil, in which case undelivered
// notifications are only reported to the caller.
func NewNotifier(cfg config.ReportingConfig, dlq DeadLetter, metrics *observability.Metrics, logger zerolog.Logger) *Notifier {
	n := &Notifier{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		dlq:        dlq,
		metrics:    metrics,
		logger:     logger.With().Str("component", "reporting").Logger(),
	}
	n.retry = retry.Config{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     cfg.RetryDelay * 8,
		OnRetry: func(attempt uint, err error) {
			n.logger.Warn().Err(err).Uint("attempt", attempt).Msg("reporting call failed, retrying")
		},
	}
	return n
}

// Notify posts the receipt metadata under the caller's invoiceID, which may
// differ from the invoice number printed on the receipt. When every attempt
// fails the payload is parked on the dead letter stream; only a failure to
// park is returned.
func (n *Notifier) Notify(ctx context.Context, invoiceID string, receipt transaction.Receipt) error {
	if strings.TrimSpace(invoiceID) == "" {
		return errors.New("notify: empty invoice id")
	}

	payload, err := json.Marshal(receipt)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}

	err = retry.Do(ctx, n.retry, func() error {
		return n.post(ctx, invoiceID, payload)
	})
	if err == nil {
		n.metrics.ReportNotifications.WithLabelValues("delivered").Inc()
		return nil
	}

	if n.dlq == nil {
		n.metrics.ReportNotifications.WithLabelValues("failed").Inc()
		return err
	}

	if dlqErr := n.dlq.PublishToDLQ(context.WithoutCancel(ctx), invoiceID, err.Error(), payload); dlqErr != nil {
		n.metrics.ReportNotifications.WithLabelValues("failed").Inc()
		return errors.Join(err, dlqErr)
	}

	n.metrics.ReportNotifications.WithLabelValues("parked").Inc()
	n.logger.Warn().Err(err).Str("invoice", invoiceID).Msg("receipt notification parked on dead letter stream")
	return nil
}

// ReplayDLQ re-sends parked notifications until the source is drained. A
// message is acknowledged only once the reporting API accepted it, or when
// it can never be accepted.
func (n *Notifier) ReplayDLQ(ctx context.Context, source MessageSource) (int, error) {
	delivered := 0
	for {
		messages, err := source.Read(ctx)
		if err != nil {
			return delivered, err
		}
		if len(messages) == 0 {
			return delivered, nil
		}

		for _, msg := range messages {
			invoice, _ := msg.Values["invoice_id"].(string)
			payload, _ := msg.Values["payload"].(string)

			err := retry.Do(ctx, n.retry, func() error {
				return n.post(ctx, invoice, []byte(payload))
			})
			switch {
			case err == nil:
				delivered++
			case errors.Is(err, domainErrors.ErrReportRejected):
				n.logger.Error().Err(err).Str("invoice", invoice).Msg("dropping rejected receipt notification")
			default:
				return delivered, fmt.Errorf("replay %s: %w", msg.ID, err)
			}

			if err := source.Ack(ctx, msg.ID); err != nil {
				return delivered, err
			}
		}
	}
}

func (n *Notifier) post(ctx context.Context, invoice string, payload []byte) error {
	target := n.baseURL + metaPath + url.PathEscape(invoice)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return retry.Permanent(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return retry.Permanent(fmt.Errorf("%w: status %d", domainErrors.ErrReportRejected, resp.StatusCode))
	default:
		return fmt.Errorf("reporting api answered %d", resp.StatusCode)
	}
}
