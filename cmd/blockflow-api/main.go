package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/blockflow/pkg/cmd"
	"github.com/dukex/blockflow/pkg/log"
	"github.com/dukex/blockflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort            = 9091
	defaultCacheTTL        = 60 * time.Second
	defaultCacheMaxEntries = 1000
)

func main() {
	command := &cli.Command{
		Name:                  "blockflow-api",
		Usage:                 "Serve workflow sync, duplication, layout and checkpoints",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL (file://path or postgres://...)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "realtime-provider",
				Usage:   "Where change notifications go (none, http, kafka, gochannel)",
				Value:   "none",
				Sources: cli.EnvVars("REALTIME_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "realtime-url",
				Usage:   "Socket server base URL, or Kafka brokers for the kafka provider",
				Sources: cli.EnvVars("REALTIME_URL"),
			},
			&cli.StringFlag{
				Name:    "cache-provider",
				Usage:   "Permission cache (memory, redis)",
				Value:   "memory",
				Sources: cli.EnvVars("CACHE_PROVIDER"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis connection URL for the redis cache provider",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Usage:   "How long a resolved permission is cached",
				Value:   defaultCacheTTL,
				Sources: cli.EnvVars("CACHE_TTL"),
			},
			&cli.IntFlag{
				Name:  "cache-max-entries",
				Usage: "Upper bound of the in-memory permission cache",
				Value: defaultCacheMaxEntries,
			},
			&cli.DurationFlag{
				Name:    "checkpoint-retention",
				Usage:   "Delete checkpoints older than this; 0 keeps them forever",
				Sources: cli.EnvVars("CHECKPOINT_RETENTION"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := command.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	levelErr := log.Setup(command.String("log-level"))

	logger := log.WithModule("api")

	if levelErr != nil {
		logger.WarnContext(ctx, "Falling back to info logging", "error", levelErr)
	}

	logger.InfoContext(ctx, "Initializing Blockflow API")

	if command.Bool("tracing") {
		shutdown, err := otelhelper.Setup(ctx, "blockflow-api")
		if err != nil {
			return fmt.Errorf("failed to initialize tracing: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
			}
		}()
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	cache, sweeper, closeCache, err := cmd.NewPermissionCache(ctx, logger, cmd.CacheConfig{
		Provider:   command.String("cache-provider"),
		RedisURL:   command.String("redis-url"),
		TTL:        command.Duration("cache-ttl"),
		MaxEntries: command.Int("cache-max-entries"),
	})
	if err != nil {
		return err
	}

	defer func() {
		if err := closeCache(); err != nil {
			logger.ErrorContext(ctx, "Failed to close permission cache", "error", err)
		}
	}()

	sink, closeSink, err := cmd.NewRealtimeSink(command.String("realtime-provider"), command.String("realtime-url"), logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := closeSink.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close realtime sink", "error", err)
		}
	}()

	api := NewAPI(logger, persistence, cache, sweeper, sink, command.Duration("checkpoint-retention"))

	return api.Start(ctx, command.Int("port"))
}
