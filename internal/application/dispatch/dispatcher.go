// Package dispatch turns an inbound payload into exactly one flow run and a
// single Result.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/domain/transaction"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
)

// Runner executes a validated request.
type Runner interface {
	Run(ctx context.Context, req transaction.Request) transaction.Result
}

// Locker guards a payment against concurrent duplicate submissions.
type Locker interface {
	Lock(ctx context.Context, key string) (func(context.Context) error, error)
}

type Config struct {
	FlowTimeout time.Duration
}

type Dispatcher struct {
	runner   Runner
	locker   Locker
	cfg      Config
	validate *validator.Validate
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// New builds a Dispatcher. locker may be nil, in which case duplicate
// submissions are not detected.
func New(runner Runner, locker Locker, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		runner:   runner,
		locker:   locker,
		cfg:      cfg,
		validate: newValidator(),
		metrics:  metrics,
		logger:   logger,
	}
}

// Dispatch decodes body, validates it and runs the selected flow. Invalid
// input never reaches a flow. The flow keeps running when ctx is cancelled
// by the caller, bounded by the configured flow timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) (res transaction.Result) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("dispatch panicked")
			res = transaction.FromError(fmt.Errorf("unexpected error: %v", r))
		}
	}()

	req, err := d.Decode(body)
	if err != nil {
		return transaction.FromError(err)
	}

	ctx = context.WithoutCancel(ctx)
	if d.cfg.FlowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.FlowTimeout)
		defer cancel()
	}

	if key, ok := lockKey(req); ok && d.locker != nil {
		release, err := d.locker.Lock(ctx, key)
		if err != nil {
			if errors.Is(err, domainErrors.ErrTransactionInProgress) {
				d.metrics.LockConflicts.Inc()
			}
			return transaction.FromError(err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				d.logger.Warn().Err(err).Msg("failed to release transaction lock")
			}
		}()
	}

	return d.runner.Run(ctx, req)
}

type route struct {
	Service *string `json:"service"`
	Action  *string `json:"action"`
}

// Decode selects the request variant named by service and action and
// validates the payload against it.
func (d *Dispatcher) Decode(body []byte) (transaction.Request, error) {
	var rt route
	if err := json.Unmarshal(body, &rt); err != nil {
		return nil, decodeError(err)
	}

	service, ok := transaction.ParseService(deref(rt.Service))
	if !ok {
		return nil, domainErrors.NewValidationError("service", "enum", "unknown service")
	}

	var (
		req transaction.Request
		err error
	)
	switch {
	case service == transaction.ServiceBillA:
		req, err = decodeAs[transaction.BillQuery](body)
	case service == transaction.ServiceBillB:
		req, err = decodeAs[transaction.CodeConfirmation](body)
	case transaction.Action(deref(rt.Action)) == transaction.ActionCard:
		req, err = decodeAs[transaction.CardPayment](body)
	case transaction.Action(deref(rt.Action)) == transaction.ActionOTP:
		req, err = decodeAs[transaction.OTPConfirmation](body)
	default:
		return nil, domainErrors.NewValidationError("action", "enum", "unknown action")
	}
	if err != nil {
		return nil, err
	}

	if err := d.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	return req, nil
}

func decodeAs[T transaction.Request](body []byte) (T, error) {
	var v T
	if err := json.Unmarshal(body, &v); err != nil {
		return v, decodeError(err)
	}
	return v, nil
}

func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return domainErrors.NewValidationError(typeErr.Field, "type", "must be a "+typeErr.Type.String())
	}
	return domainErrors.NewValidationError("body", "json", "invalid JSON: "+err.Error())
}

// lockKey names the payment a request acts on.
func lockKey(req transaction.Request) (string, bool) {
	switch r := req.(type) {
	case transaction.CardPayment:
		return r.URL, true
	case transaction.OTPConfirmation:
		return r.URL, true
	case transaction.BillQuery:
		return "bill:" + r.Invoice.String(), true
	default:
		return "", false
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
