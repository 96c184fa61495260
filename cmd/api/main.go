package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tipjar-backend/api"
	"github.com/angelmondragon/tipjar-backend/api/routes"
	"github.com/angelmondragon/tipjar-backend/internal/accounts"
	"github.com/angelmondragon/tipjar-backend/internal/creators"
	"github.com/angelmondragon/tipjar-backend/internal/dashboard"
	"github.com/angelmondragon/tipjar-backend/internal/donations"
	stripewebhooks "github.com/angelmondragon/tipjar-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
	"github.com/angelmondragon/tipjar-backend/pkg/migrate"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
	"github.com/angelmondragon/tipjar-backend/pkg/redis"
	"github.com/angelmondragon/tipjar-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Env:         cfg.App.Env,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logg *logger.Logger) (err error) {
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, dbClient.Close()) }()

	if err := migrate.MaybeRunDev(bootCtx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, redisClient.Close()) }()

	stripeClient, err := stripe.NewClient(bootCtx, cfg.Stripe, logg)
	if err != nil {
		return err
	}
	gateway := stripe.NewGateway(stripeClient)

	feeRate, err := cfg.Donations.Rate()
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	webhookMetrics := metrics.NewWebhookMetrics(registry)

	conn := dbClient.DB()
	donationRepo := donations.NewRepository(conn)

	donationService, err := donations.NewService(donations.ServiceParams{
		Store:    donationRepo,
		Gateway:  gateway,
		Logger:   logg,
		Metrics:  metrics.NewDonationMetrics(registry),
		BaseURL:  cfg.App.BaseURL(),
		FeeRate:  feeRate,
		MinPrice: cfg.Donations.MinPriceCents,
	})
	if err != nil {
		return err
	}

	dashboardService, err := dashboard.NewService(dashboard.ServiceParams{
		Repo:   dashboard.NewRepository(conn),
		Stripe: gateway,
		Logger: logg,
	})
	if err != nil {
		return err
	}

	accountService, err := accounts.NewService(accounts.ServiceParams{
		Repo:    accounts.NewRepository(conn),
		Stripe:  gateway,
		Logger:  logg,
		BaseURL: cfg.App.BaseURL(),
	})
	if err != nil {
		return err
	}

	creatorService, err := creators.NewService(creators.NewRepository(conn), logg)
	if err != nil {
		return err
	}

	inbox := stripewebhooks.NewInboxRepository(conn)
	reconciler, err := stripewebhooks.NewReconciler(stripewebhooks.ReconcilerParams{
		Payments:  gateway,
		Donations: donationRepo,
		Tx:        dbClient,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	processor, err := stripewebhooks.NewProcessor(stripewebhooks.ProcessorParams{
		Inbox:       inbox,
		Reconciler:  reconciler,
		Logger:      logg,
		Metrics:     webhookMetrics,
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BatchSize:   cfg.Webhook.BatchSize,
	})
	if err != nil {
		return err
	}
	webhookService, err := stripewebhooks.NewService(stripewebhooks.ServiceParams{
		Inbox:     inbox,
		Processor: processor,
		Logger:    logg,
		Metrics:   webhookMetrics,
		Inline:    cfg.Webhook.InlineProcessing,
	})
	if err != nil {
		return err
	}

	handler := routes.NewRouter(routes.Deps{
		Config:         cfg,
		Logger:         logg,
		DB:             dbClient,
		Redis:          redisClient,
		Gatherer:       registry,
		Donations:      donationService,
		Dashboard:      dashboardService,
		Accounts:       accountService,
		Creators:       creatorService,
		StripeWebhooks: webhookService,
		Stripe:         stripeClient,
		WebhookMetrics: webhookMetrics,
	})

	srv := api.NewServer(cfg, handler)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":           srv.Addr,
		"stripeEnv":      stripeClient.Environment(),
		"inlineWebhooks": cfg.Webhook.InlineProcessing,
	})
	logg.Info(ctx, "starting api server")

	if err := api.Serve(ctx, srv, logg); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "api server shut down gracefully")
	return nil
}
