// Package flow holds the per-service state machines that drive a browser
// session from the first page to a single Result.
package flow

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/application/resolution"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/slickpay/epayrobot/internal/stage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/slickpay/epayrobot/internal/application/flow")

// CaptchaResolver solves the image challenge of the bill lookup page.
type CaptchaResolver interface {
	Resolve(ctx context.Context, d *stage.Driver, target resolution.Target) (string, error)
}

// InvoiceStore persists printed receipts.
type InvoiceStore interface {
	SaveInvoice(invoiceID string, pdf []byte) (string, error)
	RemoveInvoice(invoiceID string) error
}

// Notifier forwards scraped receipt metadata to the reporting API.
type Notifier interface {
	Notify(ctx context.Context, invoiceID string, receipt transaction.Receipt) error
}

type Config struct {
	Timeouts stage.Timeouts
	Services config.ServicesConfig
	OTPDelay time.Duration
}

// Engine runs one request end to end. Each Run owns its own session.
type Engine struct {
	launcher stage.Launcher
	resolver CaptchaResolver
	invoices InvoiceStore
	notifier Notifier
	cfg      Config
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

func NewEngine(
	launcher stage.Launcher,
	resolver CaptchaResolver,
	invoices InvoiceStore,
	notifier Notifier,
	cfg Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *Engine {
	return &Engine{
		launcher: launcher,
		resolver: resolver,
		invoices: invoices,
		notifier: notifier,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run executes the flow matching req and converts every outcome, including
// a panic, into a Result. The session is closed before Run returns.
func (e *Engine) Run(ctx context.Context, req transaction.Request) (res transaction.Result) {
	kind := req.Kind()
	logger := observability.WithFlow(e.logger, kind.String(), "", middleware.GetReqID(ctx))

	ctx, span := tracer.Start(ctx, "flow."+kind.String())
	start := time.Now()
	defer func() {
		e.metrics.FlowsTotal.WithLabelValues(kind.String(), strconv.Itoa(res.Status)).Inc()
		e.metrics.FlowDuration.WithLabelValues(kind.String()).Observe(time.Since(start).Seconds())
		span.SetAttributes(attribute.Int("flow.status", res.Status))
		if !res.Success {
			span.SetStatus(codes.Error, res.Message)
		}
		span.End()
	}()

	res, err := e.withSession(ctx, logger, func(d *stage.Driver) (transaction.Result, error) {
		switch r := req.(type) {
		case transaction.CardPayment:
			return e.cardPayment(ctx, d, r)
		case transaction.OTPConfirmation:
			return e.otpConfirmation(ctx, d, r, logger)
		case transaction.BillQuery:
			return e.billQuery(ctx, d, r)
		case transaction.CodeConfirmation:
			return e.codeConfirmation(ctx, d, r)
		default:
			return transaction.Result{}, fmt.Errorf("no flow for %s", kind)
		}
	})
	if err != nil {
		res = transaction.FromError(err)
	}
	logOutcome(logger, res, err)
	return res
}

// withSession opens a session, hands a driver to fn and closes the session
// exactly once whatever fn does.
func (e *Engine) withSession(ctx context.Context, logger zerolog.Logger, fn func(d *stage.Driver) (transaction.Result, error)) (res transaction.Result, err error) {
	session, err := e.launcher.Open(ctx)
	if err != nil {
		return transaction.Result{}, err
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("flow panicked: %v", r)
		}
		if cerr := session.Close(); cerr != nil {
			logger.Warn().Err(cerr).Msg("failed to close browser session")
		}
	}()

	return fn(stage.NewDriver(session, e.cfg.Timeouts, logger))
}

func logOutcome(logger zerolog.Logger, res transaction.Result, err error) {
	switch {
	case res.Success:
		logger.Info().Int("status", res.Status).Msg("flow succeeded")
	case res.Status >= http.StatusInternalServerError:
		logger.Error().Err(err).Int("status", res.Status).Msg("flow failed")
	default:
		logger.Warn().Int("status", res.Status).Str("message", res.Message).Msg("flow rejected")
	}
}
