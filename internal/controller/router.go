package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/slickpay/epayrobot/internal/infrastructure/config"
	"github.com/slickpay/epayrobot/internal/infrastructure/observability"
	customMW "github.com/slickpay/epayrobot/internal/middleware"
)

type RouterDeps struct {
	Dispatcher   Dispatcher
	RedisClient  *redis.Client
	Invoices     http.Handler
	InvoicesPath string
	Metrics      *observability.Metrics
	Server       config.ServerConfig
	Auth         config.AuthConfig
	Logger       zerolog.Logger
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(customMW.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", deps.Auth.Header},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	healthH := NewHealthController(deps.RedisClient)
	txnH := NewTransactionController(deps.Dispatcher, deps.Server.DefaultRedirect)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", promhttp.Handler())

	if deps.Invoices != nil {
		r.Handle(deps.InvoicesPath+"/*", http.StripPrefix(deps.InvoicesPath, deps.Invoices))
	}

	r.With(
		customMW.RateLimit(deps.Server.RateLimit),
		customMW.RequireSecret(deps.Auth, deps.Logger),
	).Post("/", txnH.Handle)

	r.MethodNotAllowed(txnH.Redirect)
	r.NotFound(txnH.Redirect)

	return r
}
