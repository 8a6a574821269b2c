package stage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
)

// Timeouts bounds each primitive.
type Timeouts struct {
	Navigation time.Duration
	Stage      time.Duration
}

// Driver runs primitives against one Page, each under its own timeout.
type Driver struct {
	page     Page
	timeouts Timeouts
	logger   zerolog.Logger
}

func NewDriver(page Page, timeouts Timeouts, logger zerolog.Logger) *Driver {
	return &Driver{page: page, timeouts: timeouts, logger: logger}
}

// Page exposes the underlying page for capabilities with no driver wrapper.
func (d *Driver) Page() Page {
	return d.page
}

// Navigate loads target and requires a 200 document. Any other status is an
// UpstreamRejection carrying the page title.
func (d *Driver) Navigate(ctx context.Context, target string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Navigation)
	defer cancel()

	d.logger.Debug().Str("stage", "navigate").Msg("loading page")

	status, err := d.page.Navigate(ctx, target)
	if err != nil {
		return d.classify(ctx, "navigate", "", err)
	}
	if status == http.StatusOK {
		return nil
	}

	title, err := d.page.Title(ctx)
	if err != nil {
		title = http.StatusText(status)
	}
	return &domainErrors.UpstreamRejection{Status: status, Message: title}
}

// WaitForMarker blocks until selector is visible. Any failure, including the
// page closing underneath, is reported as an AutomationTimeout.
func (d *Driver) WaitForMarker(ctx context.Context, selector string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Stage)
	defer cancel()

	if err := d.page.WaitVisible(ctx, selector); err != nil {
		return &domainErrors.AutomationTimeout{Stage: "wait", Selector: selector, Err: err}
	}
	return nil
}

// FillField types value as given.
func (d *Driver) FillField(ctx context.Context, selector, value string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Stage)
	defer cancel()

	if err := d.page.Type(ctx, selector, value); err != nil {
		return d.classify(ctx, "fill", selector, err)
	}
	return nil
}

func (d *Driver) ClickAndWait(ctx context.Context, selector string, mode WaitMode) error {
	timeout := d.timeouts.Stage
	if mode == WaitNavigation {
		timeout = d.timeouts.Navigation
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	d.logger.Debug().Str("stage", "click").Str("selector", selector).Stringer("wait", mode).Msg("clicking")

	if err := d.page.Click(ctx, selector, mode); err != nil {
		return d.classify(ctx, "click", selector, err)
	}
	return nil
}

// ReadText returns the inner text of selector. Absence is not
// an error: ok is false.
func (d *Driver) ReadText(ctx context.Context, selector string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Stage)
	defer cancel()

	text, ok, err := d.page.Text(ctx, selector)
	if err != nil {
		return "", false, d.classify(ctx, "read", selector, err)
	}
	return text, ok, nil
}

func (d *Driver) CaptureScreenshot(ctx context.Context, selector string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Stage)
	defer cancel()

	img, err := d.page.Screenshot(ctx, selector)
	if err != nil {
		return nil, d.classify(ctx, "screenshot", selector, err)
	}
	return img, nil
}

// Location returns the parsed URL of the current document.
func (d *Driver) Location(ctx context.Context) (*url.URL, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeouts.Stage)
	defer cancel()

	raw, err := d.page.Location(ctx)
	if err != nil {
		return nil, d.classify(ctx, "location", "", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	return u, nil
}

func (d *Driver) classify(ctx context.Context, stageName, selector string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &domainErrors.AutomationTimeout{Stage: stageName, Selector: selector, Err: err}
	}
	if selector == "" {
		return fmt.Errorf("%s: %w", stageName, err)
	}
	return fmt.Errorf("%s %q: %w", stageName, selector, err)
}
