package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-settlement/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-settlement/internal/cron"
	"github.com/angelmondragon/packfinderz-settlement/internal/engine"
	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/metrics"
	"github.com/angelmondragon/packfinderz-settlement/pkg/migrate"
	"github.com/angelmondragon/packfinderz-settlement/pkg/outbox"
	"github.com/angelmondragon/packfinderz-settlement/pkg/redis"
)

const outboxRetentionEvery = 24 * time.Hour

func main() {
	cfg, logg, err := bootstrap.Load("cron-worker")
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := bootstrap.SignalContext(cfg, logg)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer bootstrap.CloseWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer bootstrap.CloseWith(ctx, logg, "redis", redisClient.Close)

	eng, err := engine.New(ctx, engine.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Registry: prometheus.DefaultRegisterer,
	})
	if err != nil {
		return err
	}

	registry, err := buildRegistry(cfg, logg, dbClient, eng)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locks:    cron.RedisLocks(redisClient, cfg.App.Env),
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return err
	}

	logg.Info(ctx, "starting cron worker")
	return service.Run(ctx)
}

// buildRegistry schedules every settlement job at its configured cadence.
func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, eng *engine.Engine) (*cron.Registry, error) {
	renewals, retry, expiry, err := cron.NewSubscriptionJobs(cron.SubscriptionJobsParams{
		Logger:        logg,
		Subscriptions: eng.Subscriptions,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:       logg,
		DB:           dbClient,
		Repository:   outbox.NewRepository(dbClient.DB()),
		Retention:    cfg.Outbox.Retention,
		BatchSize:    cfg.Outbox.PurgeBatchSize,
		DeadAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	registry := cron.NewRegistry()
	registry.Register(renewals, cfg.Renewal.Interval)
	registry.Register(retry, cfg.Renewal.RetryInterval)
	registry.Register(expiry, cfg.Renewal.ExpiryInterval)
	registry.Register(retention, outboxRetentionEvery)
	return registry, nil
}
