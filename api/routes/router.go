package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/tipjar-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/tipjar-backend/api/controllers/webhooks"
	"github.com/angelmondragon/tipjar-backend/api/middleware"
	"github.com/angelmondragon/tipjar-backend/internal/accounts"
	"github.com/angelmondragon/tipjar-backend/internal/creators"
	"github.com/angelmondragon/tipjar-backend/internal/dashboard"
	"github.com/angelmondragon/tipjar-backend/internal/donations"
	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
	"github.com/angelmondragon/tipjar-backend/pkg/redis"
)

type signingSecretSource interface {
	SigningSecret() string
}

// redisStore is the slice of the Redis client the HTTP surface touches:
// readiness, checkout throttling and Idempotency-Key records.
type redisStore interface {
	redis.Pinger
	middleware.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// Deps carries everything the HTTP surface needs. Nil services answer 500.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       db.Pinger
	Redis    redisStore
	Gatherer prometheus.Gatherer

	Donations      donations.Service
	Dashboard      dashboard.Service
	Accounts       accounts.Service
	Creators       creators.Service
	StripeWebhooks webhookcontrollers.StripeWebhookService
	Stripe         signingSecretSource
	WebhookMetrics *metrics.WebhookMetrics
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins()),
	)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	checks := controllers.ReadinessChecks{}
	if deps.DB != nil {
		checks["db"] = deps.DB
	}
	if deps.Redis != nil {
		checks["redis"] = deps.Redis
	}
	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg.App.Env))
		r.Get("/ready", controllers.HealthReady(cfg.App.Env, checks, logg))
	})

	checkoutPolicy := middleware.NewRateLimitPolicy(
		"checkout",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
	)

	idempotent := middleware.Idempotency(deps.Redis, middleware.IdempotencyPolicy{
		TTL:        cfg.Idempotency.TTL,
		PendingTTL: cfg.Idempotency.PendingTTL,
	}, logg)

	r.Route("/api/public/v1", func(r chi.Router) {
		r.With(middleware.RateLimit(checkoutPolicy, deps.Redis, logg), idempotent).
			Post("/donations/checkout", controllers.DonationCheckout(deps.Donations, logg))
		r.Get("/creators/{username}", controllers.CreatorProfile(deps.Creators, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(deps.StripeWebhooks, deps.Stripe, deps.WebhookMetrics, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.JWT, logg))

			r.Route("/me", func(r chi.Router) {
				r.Get("/", controllers.Me(deps.Creators, logg))
				r.Patch("/name", controllers.UpdateName(deps.Creators, logg))
				r.Patch("/bio", controllers.UpdateBio(deps.Creators, logg))
				r.Put("/username", controllers.UpdateUsername(deps.Creators, logg))
			})

			r.Route("/dashboard", func(r chi.Router) {
				r.Get("/donations", controllers.DashboardDonations(deps.Dashboard, logg))
				r.Get("/donations/all", controllers.DashboardAllDonations(deps.Dashboard, logg))
				r.Get("/stats", controllers.DashboardStats(deps.Dashboard, logg))
				r.Get("/stripe-login", controllers.DashboardStripeLogin(deps.Dashboard, logg))
			})

			r.Route("/stripe/accounts", func(r chi.Router) {
				r.With(idempotent).Post("/", controllers.CreateStripeAccount(deps.Accounts, logg))
				r.Get("/onboarding-link", controllers.StripeOnboardingLink(deps.Accounts, logg))
			})
		})
	})

	return r
}
