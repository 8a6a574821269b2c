// Package browser runs each flow in its own headless Chrome driven by rod.
package browser

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	"github.com/slickpay/epayrobot/internal/stage"
)

// RecaptchaSolver returns a token for an embedded reCAPTCHA widget.
type RecaptchaSolver interface {
	SolveRecaptcha(ctx context.Context, siteKey, pageURL string) (string, error)
}

type Launcher struct {
	cfg     config.BrowserConfig
	pool    *pool
	solver  RecaptchaSolver
	metrics *observability.Metrics
	logger  zerolog.Logger
}

func NewLauncher(cfg config.BrowserConfig, solver RecaptchaSolver, metrics *observability.Metrics, logger zerolog.Logger) *Launcher {
	return &Launcher{
		cfg:     cfg,
		pool:    newPool(cfg.MaxSessions, cfg.NavigationTimeout),
		solver:  solver,
		metrics: metrics,
		logger:  logger.With().Str("component", "browser").Logger(),
	}
}

// Open starts a fresh browser process with a single blank page. ctx bounds
// the launch only; the session outlives it until Close.
func (l *Launcher) Open(ctx context.Context) (stage.Session, error) {
	release, err := l.pool.acquire(ctx)
	if err != nil {
		return nil, err
	}

	proc := l.newProcess()
	controlURL, err := proc.Context(ctx).Launch()
	if err != nil {
		release()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		proc.Kill()
		proc.Cleanup()
		release()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	s := &Session{
		browser: b,
		proc:    proc,
		solver:  l.solver,
		release: release,
		metrics: l.metrics,
		logger:  l.logger,
	}

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("open page: %w", err)
	}
	s.page = page

	if ua := l.cfg.UserAgent; ua != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: ua}); err != nil {
			s.Close()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}

	l.metrics.ActiveSessions.Inc()
	l.logger.Debug().Msg("browser session opened")
	return s, nil
}

func (l *Launcher) newProcess() *launcher.Launcher {
	proc := launcher.New().Headless(l.cfg.Headless)
	if l.cfg.Bin != "" {
		proc = proc.Bin(l.cfg.Bin)
	}
	if l.cfg.Proxy != "" {
		proc = proc.Proxy(l.cfg.Proxy)
	}
	for _, raw := range l.cfg.Flags {
		name, val, hasVal := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if hasVal {
			proc = proc.Set(flags.Flag(name), val)
		} else {
			proc = proc.Set(flags.Flag(name))
		}
	}
	return proc
}
