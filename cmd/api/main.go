package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slickpay/epayrobot/internal/application/dispatch"
	"github.com/slickpay/epayrobot/internal/application/flow"
	"github.com/slickpay/epayrobot/internal/application/resolution"
	"github.com/slickpay/epayrobot/internal/bootstrap"
	"github.com/slickpay/epayrobot/internal/controller"
	"github.com/slickpay/epayrobot/internal/infrastructure/artifacts"
	"github.com/slickpay/epayrobot/internal/infrastructure/browser"
	infraRedis "github.com/slickpay/epayrobot/internal/infrastructure/redis"
	"github.com/slickpay/epayrobot/internal/infrastructure/reporting"
	"github.com/slickpay/epayrobot/internal/infrastructure/solver"
	"github.com/slickpay/epayrobot/internal/stage"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "epayrobot",
		Short:   "Browser-driven payment automation service",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(replayCmd())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	}
}

func replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay-reports",
		Short: "Re-send receipt notifications parked on the dead-letter stream",
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayReports(cmd.Context())
		},
	}
}

func serve(ctx context.Context) error {
	app, err := bootstrap.New(ctx, "epayrobot-api", "epayrobot")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close(context.Background())

	cfg := app.Config

	// --- Infrastructure ---
	store, err := artifacts.NewStore(afero.NewOsFs(), cfg.Artifacts, cfg.Server.PublicURL)
	if err != nil {
		return fmt.Errorf("artifacts: %w", err)
	}
	solverClient := solver.NewClient(cfg.Captcha, app.Metrics, app.Logger)
	launcher := browser.NewLauncher(cfg.Browser, solverClient, app.Metrics, app.Logger)

	var (
		deadLetter reporting.DeadLetter
		locker     dispatch.Locker
	)
	if app.Redis != nil {
		deadLetter = infraRedis.NewStreamProducer(app.Redis)
		locker = infraRedis.NewTransactionLocker(app.Redis, cfg.Redis.LockTTL, app.Logger)
	}
	notifier := reporting.NewNotifier(cfg.Reporting, deadLetter, app.Metrics, app.Logger)

	// --- Application services ---
	loop := resolution.NewLoop(solverClient, store, resolution.Config{
		PollDelay:       cfg.Captcha.PollDelay,
		NotReadyBackoff: cfg.Captcha.NotReadyBackoff,
		SettleDelay:     cfg.Captcha.SettleDelay,
		MaxAttempts:     cfg.Captcha.MaxAttempts,
	}, app.Metrics, app.Logger)

	engine := flow.NewEngine(launcher, loop, store, notifier, flow.Config{
		Timeouts: stage.Timeouts{
			Navigation: cfg.Browser.NavigationTimeout,
			Stage:      cfg.Browser.StageTimeout,
		},
		Services: cfg.Services,
		OTPDelay: cfg.Automation.OTPDelay,
	}, app.Metrics, app.Logger)

	dispatcher := dispatch.New(engine, locker, dispatch.Config{
		FlowTimeout: cfg.Automation.FlowTimeout,
	}, app.Metrics, app.Logger)

	// --- Build router ---
	router := controller.NewRouter(controller.RouterDeps{
		Dispatcher:   dispatcher,
		RedisClient:  app.Redis,
		Invoices:     store.InvoiceHandler(),
		InvoicesPath: store.InvoicesPath(),
		Metrics:      app.Metrics,
		Server:       cfg.Server,
		Auth:         cfg.Auth,
		Logger:       app.Logger,
	})

	// --- HTTP server ---
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		app.Logger.Info().Str("addr", srv.Addr).Str("version", Version).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		app.Logger.Info().Msg("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	app.Logger.Info().Msg("Server exited")
	return nil
}

func replayReports(ctx context.Context) error {
	app, err := bootstrap.New(ctx, "epayrobot-replay", "epayrobot_replay")
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	defer app.Close(context.Background())

	if app.Redis == nil {
		return errors.New("replay-reports requires redis to be enabled")
	}

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.ReportDLQStream,
		infraRedis.ReplayGroup,
		app.Config.InstanceID,
		50,
		time.Second,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		return err
	}

	notifier := reporting.NewNotifier(app.Config.Reporting, nil, app.Metrics, app.Logger)
	delivered, err := notifier.ReplayDLQ(ctx, consumer)
	app.Logger.Info().Int("delivered", delivered).Msg("Replay finished")
	return err
}
