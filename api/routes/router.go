package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/packfinderz-settlement/api/controllers"
	paymentcontrollers "github.com/angelmondragon/packfinderz-settlement/api/controllers/payments"
	subscriptioncontrollers "github.com/angelmondragon/packfinderz-settlement/api/controllers/subscriptions"
	webhookcontrollers "github.com/angelmondragon/packfinderz-settlement/api/controllers/webhooks"
	"github.com/angelmondragon/packfinderz-settlement/api/middleware"
	"github.com/angelmondragon/packfinderz-settlement/pkg/config"
	"github.com/angelmondragon/packfinderz-settlement/pkg/enums"
	"github.com/angelmondragon/packfinderz-settlement/pkg/logger"
	"github.com/angelmondragon/packfinderz-settlement/pkg/redis"
)

// redisStore is what the idempotency and rate-limit middleware need from Redis.
type redisStore interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type RouterParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            controllers.Pinger
	Redis         redisStore
	Payments      paymentcontrollers.Service
	Subscriptions subscriptioncontrollers.Service
	Webhooks      webhookcontrollers.Handler
	// Metrics serves /metrics; defaults to the global prometheus registry.
	Metrics http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    p.DB,
			"redis": p.Redis,
		}))
	})

	// Provider callbacks authenticate by signature, not bearer token.
	r.Post("/api/v1/webhooks/{method}", webhookcontrollers.Provider(p.Webhooks, logg))

	paymentLimit := middleware.NewRateLimitPolicy(
		"payments",
		cfg.RateLimit.Window,
		cfg.RateLimit.IPLimit,
		cfg.RateLimit.UserLimit,
	)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, logg))

		limited := r.With(middleware.RateLimit(paymentLimit, p.Redis, logg))

		limited.Post("/api/v1/payments", paymentcontrollers.Initiate(p.Payments, logg))
		r.Get("/api/v1/payments/{transactionId}", paymentcontrollers.Get(p.Payments, logg))
		r.Post("/api/v1/payments/{transactionId}/refund", paymentcontrollers.Refund(p.Payments, logg))

		limited.Post("/api/v1/subscriptions", subscriptioncontrollers.Purchase(p.Subscriptions, logg))
		r.Post("/api/v1/subscriptions/{subscriptionId}/cancel", subscriptioncontrollers.Cancel(p.Subscriptions, logg))

		r.With(middleware.RequireRole(enums.ActorRoleAdmin, logg)).
			Post("/api/admin/v1/payments/{transactionId}/complete", paymentcontrollers.AdminComplete(p.Payments, logg))
	})

	return r
}
