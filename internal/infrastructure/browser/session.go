package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	domainErrors "github.com/slickpay/epayrobot/internal/domain/errors"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/slickpay/epayrobot/internal/stage"
)

const idleWindow = 500 * time.Millisecond

const siteKeysJS = `() => Array.from(document.querySelectorAll('[data-sitekey]'))
	.map(el => el.getAttribute('data-sitekey'))
	.filter(Boolean)`

const injectTokenJS = `(key, token) => {
	document.querySelectorAll('textarea[name="g-recaptcha-response"], #g-recaptcha-response').forEach(el => {
		el.style.display = 'block';
		el.value = token;
	});
	const widget = document.querySelector('[data-sitekey="' + key + '"]');
	const callback = widget && widget.getAttribute('data-callback');
	if (callback && typeof window[callback] === 'function') {
		window[callback](token);
	}
}`

// Session owns one browser process and its page.
type Session struct {
	browser *rod.Browser
	page    *rod.Page
	proc    *launcher.Launcher
	solver  RecaptchaSolver
	release func()
	metrics *observability.Metrics
	logger  zerolog.Logger

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error
}

var _ stage.Session = (*Session)(nil)

func (s *Session) bind(ctx context.Context) (*rod.Page, error) {
	if s.closed.Load() {
		return nil, domainErrors.ErrSessionClosed
	}
	return s.page.Context(ctx), nil
}

func (s *Session) Navigate(ctx context.Context, url string) (int, error) {
	p, err := s.bind(ctx)
	if err != nil {
		return 0, err
	}
	if err := (proto.NetworkEnable{}).Call(p); err != nil {
		return 0, fmt.Errorf("enable network: %w", err)
	}

	var status int
	wait := p.EachEvent(func(e *proto.NetworkResponseReceived) bool {
		if e.Type == proto.NetworkResourceTypeDocument && e.FrameID == s.page.FrameID && e.Response != nil {
			status = e.Response.Status
			return true
		}
		return false
	})

	if err := p.Navigate(url); err != nil {
		return 0, err
	}
	wait()
	if status == 0 {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New("no document response received")
	}

	if err := p.WaitLoad(); err != nil {
		return status, err
	}
	return status, nil
}

func (s *Session) WaitVisible(ctx context.Context, selector string) error {
	p, err := s.bind(ctx)
	if err != nil {
		return err
	}
	el, err := p.Element(selector)
	if err != nil {
		return err
	}
	return el.WaitVisible()
}

func (s *Session) Type(ctx context.Context, selector, value string) error {
	p, err := s.bind(ctx)
	if err != nil {
		return err
	}
	el, err := p.Element(selector)
	if err != nil {
		return err
	}
	return el.Input(value)
}

func (s *Session) Click(ctx context.Context, selector string, mode stage.WaitMode) error {
	p, err := s.bind(ctx)
	if err != nil {
		return err
	}
	el, err := p.Element(selector)
	if err != nil {
		return err
	}

	switch mode {
	case stage.WaitNavigation:
		wait := p.WaitNavigation(proto.PageLifecycleEventNameLoad)
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		wait()
	case stage.WaitNetworkIdle:
		wait := p.WaitRequestIdle(idleWindow, nil, nil, nil)
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
		wait()
	default:
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			return err
		}
	}
	return ctx.Err()
}

func (s *Session) Text(ctx context.Context, selector string) (string, bool, error) {
	p, err := s.bind(ctx)
	if err != nil {
		return "", false, err
	}
	has, el, err := p.Has(selector)
	if err != nil || !has {
		return "", false, err
	}
	text, err := el.Text()
	if err != nil {
		return "", false, err
	}
	return text, true, nil
}

func (s *Session) Screenshot(ctx context.Context, selector string) ([]byte, error) {
	p, err := s.bind(ctx)
	if err != nil {
		return nil, err
	}
	el, err := p.Element(selector)
	if err != nil {
		return nil, err
	}
	return el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
}

func (s *Session) Location(ctx context.Context) (string, error) {
	p, err := s.bind(ctx)
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *Session) Title(ctx context.Context) (string, error) {
	p, err := s.bind(ctx)
	if err != nil {
		return "", err
	}
	info, err := p.Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *Session) AddStyle(ctx context.Context, css string) error {
	p, err := s.bind(ctx)
	if err != nil {
		return err
	}
	return p.AddStyleTag("", css)
}

func (s *Session) PrintPDF(ctx context.Context, opts stage.PDFOptions) ([]byte, error) {
	p, err := s.bind(ctx)
	if err != nil {
		return nil, err
	}
	r, err := p.PDF(&proto.PagePrintToPDF{
		PrintBackground: opts.PrintBackground,
		PaperWidth:      inches(opts.PaperWidth),
		PaperHeight:     inches(opts.PaperHeight),
		MarginTop:       inches(opts.MarginTop),
		MarginRight:     inches(opts.MarginRight),
		MarginBottom:    inches(opts.MarginBottom),
		MarginLeft:      inches(opts.MarginLeft),
	})
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// SolveRecaptchas asks the solver for a token per widget on the page and
// injects it where the widget expects the response.
func (s *Session) SolveRecaptchas(ctx context.Context) error {
	p, err := s.bind(ctx)
	if err != nil {
		return err
	}
	info, err := p.Info()
	if err != nil {
		return err
	}
	res, err := p.Eval(siteKeysJS)
	if err != nil {
		return fmt.Errorf("find recaptcha widgets: %w", err)
	}

	keys := res.Value.Arr()
	if len(keys) == 0 {
		return fmt.Errorf("recaptcha widget: %w", domainErrors.ErrElementNotFound)
	}
	for _, k := range keys {
		key := k.Str()
		token, err := s.solver.SolveRecaptcha(ctx, key, info.URL)
		if err != nil {
			return err
		}
		if _, err := p.Eval(injectTokenJS, key, token); err != nil {
			return fmt.Errorf("inject recaptcha token: %w", err)
		}
		s.logger.Debug().Str("sitekey", key).Msg("recaptcha token injected")
	}
	return nil
}

// Close shuts the browser down and frees the pool slot. It does not depend
// on any request context and only acts once.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		if s.browser != nil {
			s.closeErr = s.browser.Close()
		}
		if s.proc != nil {
			s.proc.Kill()
			s.proc.Cleanup()
		}
		if s.page != nil {
			s.metrics.ActiveSessions.Dec()
		}
		s.release()
		s.logger.Debug().Err(s.closeErr).Msg("browser session closed")
	})
	return s.closeErr
}

func inches(v float64) *float64 {
	if v == 0 {
		return nil
	}
	return &v
}
