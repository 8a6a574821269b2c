package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	infraRedis "github.com/slickpay/epayrobot/internal/infrastructure/redis"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Metrics *observability.Metrics
	// Redis is nil unless cfg.Redis.Enabled.
	Redis *redis.Client

	tracer *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Str("instance", cfg.InstanceID).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	app.Metrics = observability.NewMetrics(metricsNamespace, nil)

	if cfg.Redis.Enabled {
		client, err := infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			app.Close(ctx)
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		app.Redis = client
		logger.Info().Str("addr", cfg.Redis.RedisAddr()).Msg("Connected to Redis")
	}

	return app, nil
}

// Close flushes pending spans and releases the Redis connection.
func (a *App) Close(ctx context.Context) {
	if a.tracer != nil {
		if err := observability.Shutdown(ctx, a.tracer); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to flush traces")
		}
	}
	if a.Redis != nil {
		a.Redis.Close()
	}
}
