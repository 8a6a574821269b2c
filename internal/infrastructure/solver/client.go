// Package solver talks to the 2captcha HTTP API.
package solver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/domain/captcha"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/sony/gobreaker/v2"
)

const breakerName = "2captcha"

// Client submits challenges and polls for their answers. Transport failures
// and 5xx answers trip the circuit breaker; solver status codes do not.
type Client struct {
	apiKey          string
	baseURL         string
	minLen          int
	maxLen          int
	pollDelay       time.Duration
	notReadyBackoff time.Duration
	httpClient      *http.Client
	breaker         *gobreaker.CircuitBreaker[captcha.Response]
	metrics         *observability.Metrics
	logger          zerolog.Logger
}

func NewClient(cfg config.CaptchaConfig, metrics *observability.Metrics, logger zerolog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	threshold := cfg.CircuitBreakerThreshold
	if threshold == 0 {
		threshold = 5
	}

	c := &Client{
		apiKey:          cfg.APIKey,
		baseURL:         strings.TrimRight(cfg.BaseURL, "/"),
		minLen:          cfg.MinLen,
		maxLen:          cfg.MaxLen,
		pollDelay:       cfg.PollDelay,
		notReadyBackoff: cfg.NotReadyBackoff,
		httpClient:      &http.Client{Timeout: timeout},
		metrics:         metrics,
		logger:          logger.With().Str("component", "solver").Logger(),
	}

	c.breaker = gobreaker.NewCircuitBreaker[captcha.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cfg.CircuitBreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Warn().Str("breaker", name).Stringer("from", from).Stringer("to", to).Msg("circuit breaker state changed")
			c.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	return c
}

// Submit uploads a PNG challenge as base64.
func (c *Client) Submit(ctx context.Context, image []byte) (captcha.Response, error) {
	form := url.Values{
		"key":    {c.apiKey},
		"method": {"base64"},
		"body":   {base64.StdEncoding.EncodeToString(image)},
		"json":   {"1"},
	}
	if c.minLen > 0 {
		form.Set("min_len", strconv.Itoa(c.minLen))
	}
	if c.maxLen > 0 {
		form.Set("max_len", strconv.Itoa(c.maxLen))
	}
	return c.call(ctx, "submit", http.MethodPost, c.baseURL+"/in.php", form)
}

// Poll asks for the answer to a previous submission.
func (c *Client) Poll(ctx context.Context, id string) (captcha.Response, error) {
	query := url.Values{
		"key":    {c.apiKey},
		"action": {"get"},
		"id":     {id},
		"json":   {"1"},
	}
	return c.call(ctx, "poll", http.MethodGet, c.baseURL+"/res.php?"+query.Encode(), nil)
}

// SolveRecaptcha submits a reCAPTCHA v2 widget and waits for its token.
// Unrecognized poll statuses end the attempt; the caller decides whether to
// try the widget again.
func (c *Client) SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	form := url.Values{
		"key":       {c.apiKey},
		"method":    {"userrecaptcha"},
		"googlekey": {siteKey},
		"pageurl":   {pageURL},
		"json":      {"1"},
	}
	resp, err := c.call(ctx, "submit", http.MethodPost, c.baseURL+"/in.php", form)
	if err != nil {
		return "", err
	}
	if captcha.ClassifySubmission(resp) != captcha.DecisionSucceed {
		return "", &domainErrors.SolverTerminalError{Code: resp.Request}
	}

	id := resp.Request
	wait := c.pollDelay
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}

		resp, err := c.Poll(ctx, id)
		if err != nil {
			return "", err
		}
		switch captcha.ClassifyPoll(resp) {
		case captcha.DecisionSucceed:
			return resp.Request, nil
		case captcha.DecisionResend:
			wait = c.notReadyBackoff
		default:
			return "", &domainErrors.SolverTerminalError{Code: resp.Request}
		}
	}
}

func (c *Client) call(ctx context.Context, endpoint, method, target string, form url.Values) (captcha.Response, error) {
	resp, err := c.breaker.Execute(func() (captcha.Response, error) {
		return c.do(ctx, method, target, form)
	})
	if err != nil {
		c.metrics.SolverRequests.WithLabelValues(endpoint, "error").Inc()
		c.metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "failure").Inc()
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return captcha.Response{}, fmt.Errorf("%w: %v", domainErrors.ErrSolverUnavailable, err)
		}
		return captcha.Response{}, fmt.Errorf("2captcha %s: %w", endpoint, err)
	}

	c.metrics.CircuitBreakerRequests.WithLabelValues(breakerName, "success").Inc()
	result := "ok"
	if !resp.OK() {
		result = resp.Request
	}
	c.metrics.SolverRequests.WithLabelValues(endpoint, result).Inc()
	c.logger.Debug().Str("endpoint", endpoint).Int("status", resp.Status).Str("code", result).Msg("solver answered")

	return resp, nil
}

func (c *Client) do(ctx context.Context, method, target string, form url.Values) (captcha.Response, error) {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return captcha.Response{}, fmt.Errorf("build request: %w", err)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return captcha.Response{}, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= http.StatusInternalServerError {
		return captcha.Response{}, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	var resp captcha.Response
	if err := json.NewDecoder(io.LimitReader(httpResp.Body, 1<<20)).Decode(&resp); err != nil {
		return captcha.Response{}, fmt.Errorf("decode response: %w", err)
	}
	return resp, nil
}
