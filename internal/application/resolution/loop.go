// Package resolution drives an image captcha to completion against the
// external solver.
package resolution

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/domain/captcha"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/slickpay/epayrobot/internal/stage"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const defaultMaxAttempts = 10

var tracer = otel.Tracer("github.com/slickpay/epayrobot/internal/application/resolution")

// Solver submits challenge images and polls for their answers.
type Solver interface {
	Submit(ctx context.Context, image []byte) (captcha.Response, error)
	Poll(ctx context.Context, id string) (captcha.Response, error)
}

// Artifacts stores the transient challenge screenshots.
type Artifacts interface {
	SaveScreenshot(img []byte) (string, error)
	Remove(path string) error
}

type Config struct {
	PollDelay       time.Duration
	NotReadyBackoff time.Duration
	SettleDelay     time.Duration
	// MaxAttempts bounds the number of captured challenges.
	MaxAttempts int
}

// Target locates the challenge and the answer form on the page.
type Target struct {
	ImageSelector  string
	AcceptSelector string // optional checkbox ticked before answering
	AnswerSelector string
	SubmitSelector string
	ExpectedHost   string
}

type Loop struct {
	solver    Solver
	artifacts Artifacts
	cfg       Config
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

func NewLoop(solver Solver, artifacts Artifacts, cfg Config, metrics *observability.Metrics, logger zerolog.Logger) *Loop {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Loop{
		solver:    solver,
		artifacts: artifacts,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
	}
}

// Resolve captures, submits and polls until the solved answer takes the page
// to target.ExpectedHost. It returns the reached URL.
//
// A solver terminal status ends the loop with a *SolverTerminalError. Stage
// failures end it with the stage error. An answer that does not move the
// page to the expected host is treated as wrong and a fresh challenge is
// captured.
func (l *Loop) Resolve(ctx context.Context, d *stage.Driver, target Target) (reached string, err error) {
	ctx, span := tracer.Start(ctx, "captcha.resolve")
	var attempt captcha.Attempt
	defer func() {
		span.SetAttributes(
			attribute.Int("captcha.captures", attempt.Captures),
			attribute.Int("captcha.submissions", attempt.Submissions),
			attribute.Int("captcha.polls", attempt.Polls),
		)
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	for !attempt.Exhausted(l.cfg.MaxAttempts) {
		decision, answer, err := l.attemptOnce(ctx, d, target, &attempt)
		if err != nil {
			if errors.Is(err, domainErrors.ErrSolverUnavailable) || ctx.Err() != nil || !isSolverCall(err) {
				return "", err
			}
			l.logger.Warn().Err(err).Int("capture", attempt.Captures).Msg("solver call failed, capturing a new challenge")
			continue
		}

		switch decision {
		case captcha.DecisionAbort:
			return "", &domainErrors.SolverTerminalError{Code: string(attempt.LastCode)}
		case captcha.DecisionRetry:
			l.logger.Debug().Str("code", string(attempt.LastCode)).Msg("retrying with a new challenge")
		case captcha.DecisionSucceed:
			reached, ok, err := l.apply(ctx, d, target, answer)
			if err != nil {
				return "", err
			}
			if ok {
				return reached, nil
			}
			l.logger.Debug().Str("reached", reached).Msg("answer rejected by page, capturing a new challenge")
		}
	}

	code := attempt.LastCode
	if code == "" || code == captcha.CodeNotReady {
		code = captcha.CodeAttemptsExhausted
	}
	return "", &domainErrors.SolverTerminalError{Code: string(code)}
}

// solverCallError marks a transport failure talking to the solver, as
// opposed to a page failure.
type solverCallError struct{ err error }

func (e *solverCallError) Error() string { return e.err.Error() }
func (e *solverCallError) Unwrap() error { return e.err }

func isSolverCall(err error) bool {
	var sc *solverCallError
	return errors.As(err, &sc)
}

// attemptOnce runs one challenge from capture to a decision other than
// resend. The screenshot artifact is removed before it returns.
func (l *Loop) attemptOnce(ctx context.Context, d *stage.Driver, target Target, attempt *captcha.Attempt) (captcha.Decision, string, error) {
	img, err := d.CaptureScreenshot(ctx, target.ImageSelector)
	if err != nil {
		return 0, "", err
	}
	attempt.Captures++

	// The artifact is never read back. It only exists on disk while the
	// challenge is in flight, so a crashed process leaves the image behind
	// next to the logged path.
	path, err := l.artifacts.SaveScreenshot(img)
	if err != nil {
		return 0, "", err
	}
	challenge := captcha.Challenge{Image: img, ArtifactPath: path}
	logger := l.logger.With().Int("capture", attempt.Captures).Str("artifact", path).Logger()
	defer func() {
		if err := l.artifacts.Remove(challenge.ArtifactPath); err != nil {
			logger.Warn().Err(err).Msg("failed to remove challenge artifact")
		}
	}()

	resp, err := l.solver.Submit(ctx, challenge.Image)
	if err != nil {
		return 0, "", &solverCallError{err}
	}
	attempt.Submissions++

	decision := captcha.ClassifySubmission(resp)
	l.metrics.CaptchaDecisions.WithLabelValues("submit", decision.String()).Inc()
	if decision != captcha.DecisionSucceed {
		attempt.LastCode = resp.Code()
		logger.Debug().Str("code", string(attempt.LastCode)).Msg("submission refused")
		return decision, "", nil
	}

	challenge.SubmissionID = resp.Request
	logger = logger.With().Str("submission", challenge.SubmissionID).Logger()
	wait := l.cfg.PollDelay
	for {
		if err := sleep(ctx, wait); err != nil {
			return 0, "", err
		}

		resp, err := l.solver.Poll(ctx, challenge.SubmissionID)
		if err != nil {
			return 0, "", &solverCallError{err}
		}
		attempt.Polls++

		decision := captcha.ClassifyPoll(resp)
		l.metrics.CaptchaDecisions.WithLabelValues("poll", decision.String()).Inc()

		switch decision {
		case captcha.DecisionSucceed:
			return decision, resp.Request, nil
		case captcha.DecisionResend:
			attempt.LastCode = captcha.CodeNotReady
			wait = l.cfg.NotReadyBackoff
		default:
			attempt.LastCode = resp.Code()
			logger.Debug().Str("code", string(attempt.LastCode)).Int("polls", attempt.Polls).Msg("poll ended without an answer")
			return decision, "", nil
		}
	}
}

// apply types the answer and reports whether the page moved to the
// expected host.
func (l *Loop) apply(ctx context.Context, d *stage.Driver, target Target, answer string) (string, bool, error) {
	if target.AcceptSelector != "" {
		if err := d.ClickAndWait(ctx, target.AcceptSelector, stage.NoWait); err != nil {
			return "", false, err
		}
	}
	if err := d.FillField(ctx, target.AnswerSelector, answer); err != nil {
		return "", false, err
	}
	if err := d.ClickAndWait(ctx, target.SubmitSelector, stage.NoWait); err != nil {
		return "", false, err
	}
	if err := sleep(ctx, l.cfg.SettleDelay); err != nil {
		return "", false, err
	}

	u, err := d.Location(ctx)
	if err != nil {
		return "", false, err
	}
	return u.String(), u.Hostname() == target.ExpectedHost, nil
}

func sleep(ctx context.Context, d time.Duration) error {
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
