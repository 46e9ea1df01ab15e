package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/packfinderz-settlement/api/routes"
	"github.com/angelmondragon/packfinderz-settlement/internal/bootstrap"
	"github.com/angelmondragon/packfinderz-settlement/internal/engine"
	"github.com/angelmondragon/packfinderz-settlement/internal/webhooks"
	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/db"
	"github.com/angelmondragon/packfinderz-settlement/pkg/idempotency"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/migrate"
	"github.com/angelmondragon/packfinderz-settlement/pkg/redis"
)

func main() {
	cfg, logg, err := bootstrap.Load("api")
	if err != nil {
		os.Exit(1)
	}
	ctx, stop := bootstrap.SignalContext(cfg, logg)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down")
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

	guard, err := idempotency.NewGuard(redisClient, cfg.Webhooks.IdempotencyTTL)
	if err != nil {
		return err
	}
	webhookService, err := webhooks.NewService(webhooks.ServiceParams{
		Settlement: eng.Settlement,
		Providers:  eng.Providers,
		Guard:      guard,
		Audit:      eng.Audit,
		Metrics:    eng.Metrics,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:        cfg,
			Logger:        logg,
			DB:            dbClient,
			Redis:         redisClient,
			Payments:      eng.Settlement,
			Subscriptions: eng.Subscriptions,
			Webhooks:      webhookService,
		}),
	}
	return serve(logg.WithField(ctx, "addr", server.Addr), logg, server, cfg.App.ShutdownGrace)
}

// serve blocks until ctx is cancelled, then drains in-flight requests for up to grace.
func serve(ctx context.Context, logg *logger.Logger, server *http.Server, grace time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), grace)
	defer cancel()
	logg.Info(ctx, "draining api server")
	return server.Shutdown(shutdownCtx)
}
