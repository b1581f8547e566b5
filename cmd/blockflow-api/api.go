// Package main provides the Blockflow API server.
package main

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/dukex/blockflow/pkg/background"
	"github.com/dukex/blockflow/pkg/maintenance"
	"github.com/dukex/blockflow/pkg/metrics"
	"github.com/dukex/blockflow/pkg/permissions"
	"github.com/dukex/blockflow/pkg/persistence"
	"github.com/dukex/blockflow/pkg/realtime"
	"github.com/dukex/blockflow/pkg/services"
	"github.com/dukex/blockflow/pkg/web"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/adaptor"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

type API struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	cache       permissions.Cache
	sweeper     maintenance.Sweeper
	sink        realtime.Sink
	retention   time.Duration

	metrics *metrics.Metrics
	runner  *background.Runner
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	cache permissions.Cache,
	sweeper maintenance.Sweeper,
	sink realtime.Sink,
	retention time.Duration,
) *API {
	return &API{
		logger:      logger,
		persistence: persistence,
		cache:       cache,
		sweeper:     sweeper,
		sink:        sink,
		retention:   retention,
		metrics:     metrics.New(),
		runner:      background.NewRunner(logger, background.DefaultTimeout),
	}
}

func (a *API) App() (*fiber.App, *services.Checkpoints) {
	gate := permissions.NewGate(a.logger, a.persistence.Workspaces(), a.cache, a.metrics)
	notifier := realtime.NewDispatcher(a.logger, a.sink, a.runner, a.metrics)
	checkpoints := services.NewCheckpoints(a.logger, a.persistence, gate, notifier, a.metrics)

	handlers := web.NewAPIHandlers(
		a.logger,
		services.NewWorkflow(a.persistence, gate),
		services.NewSync(a.logger, a.persistence, gate, notifier, a.runner, a.metrics),
		services.NewDuplicator(a.logger, a.persistence, gate, a.metrics),
		services.NewAutoLayout(a.logger, a.persistence, gate, notifier, a.metrics),
		checkpoints,
		services.NewWorkspaces(a.logger, a.persistence, gate),
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))
	app.Use(web.RecordMetrics(a.metrics))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Blockflow API")
	})

	app.Get("/health", handlers.HealthCheck)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(a.metrics.Registry(), promhttp.HandlerOpts{})))

	handlers.Mount(app)

	return app, checkpoints
}

// Start serves until ctx is cancelled, then drains in-flight requests and background work.
func (a *API) Start(ctx context.Context, port int) error {
	app, checkpoints := a.App()

	scheduler := maintenance.New(a.logger, a.sweeper, checkpoints, a.retention)
	if err := scheduler.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "API listening", "port", port)

		return app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
	})

	g.Go(func() error {
		<-gctx.Done()

		a.logger.InfoContext(ctx, "Shutting down API")

		return app.Shutdown()
	})

	err := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), background.DefaultTimeout)
	defer cancel()

	if stopErr := scheduler.Stop(shutdownCtx); stopErr != nil {
		a.logger.WarnContext(shutdownCtx, "Maintenance jobs did not stop", "error", stopErr)
	}

	if waitErr := a.runner.Wait(shutdownCtx); waitErr != nil {
		a.logger.WarnContext(shutdownCtx, "Background work did not finish", "error", waitErr)
	}

	return err
}
