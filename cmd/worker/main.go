package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/bootstrap"
	infraRedis "github.com/slickpay/epayrobot/internal/infrastructure/redis"
	"github.com/slickpay/epayrobot/internal/infrastructure/reporting"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "epayrobot-worker", "epayrobot_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close(context.Background())

	if app.Redis == nil {
		app.Logger.Fatal().Msg("Worker requires redis to be enabled")
	}

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.ReportDLQStream,
		infraRedis.ReplayGroup,
		app.Config.InstanceID,
		50,
		2*time.Second,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group (may already exist)")
	}

	// Replayed notifications that fail again are left pending, not re-parked.
	notifier := reporting.NewNotifier(app.Config.Reporting, nil, app.Metrics, app.Logger)

	app.Logger.Info().
		Str("stream", infraRedis.ReportDLQStream).
		Str("group", infraRedis.ReplayGroup).
		Str("consumer", app.Config.InstanceID).
		Dur("interval", app.Config.Reporting.ReplayInterval).
		Msg("Worker started, replaying parked receipt notifications...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runReplayer(gCtx, app.Logger, notifier, consumer, app.Config.Reporting.ReplayInterval)
	})

	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}

func runReplayer(
	ctx context.Context,
	logger zerolog.Logger,
	notifier *reporting.Notifier,
	consumer *infraRedis.StreamConsumer,
	interval time.Duration,
) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		delivered, err := notifier.ReplayDLQ(ctx, consumer)
		switch {
		case err != nil && ctx.Err() == nil:
			logger.Error().Err(err).Int("delivered", delivered).Msg("Replay pass failed")
		case delivered > 0:
			logger.Info().Int("delivered", delivered).Msg("Replayed receipt notifications")
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
