package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/tipjar-backend/internal/donations"
	stripewebhooks "github.com/angelmondragon/tipjar-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
	"github.com/angelmondragon/tipjar-backend/pkg/migrate"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
	"github.com/angelmondragon/tipjar-backend/pkg/stripe"
)

const serviceKind = "worker"

func main() {
	logg := logger.New(logger.Options{ServiceName: serviceKind})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind

	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Env:         cfg.App.Env,
	})

	if err := run(cfg, logg); err != nil {
		logg.Error(context.Background(), "worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

// run drains the Stripe webhook inbox. The API stores events and answers
// Stripe quickly; this process does the reconciliation.
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

	stripeClient, err := stripe.NewClient(bootCtx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	conn := dbClient.DB()
	reconciler, err := stripewebhooks.NewReconciler(stripewebhooks.ReconcilerParams{
		Payments:  stripe.NewGateway(stripeClient),
		Donations: donations.NewRepository(conn),
		Tx:        dbClient,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:    logg,
	})
	if err != nil {
		return err
	}
	processor, err := stripewebhooks.NewProcessor(stripewebhooks.ProcessorParams{
		Inbox:       stripewebhooks.NewInboxRepository(conn),
		Reconciler:  reconciler,
		Logger:      logg,
		Metrics:     metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
		MaxAttempts: cfg.Webhook.MaxAttempts,
		BatchSize:   cfg.Webhook.BatchSize,
	})
	if err != nil {
		return err
	}
	service, err := NewService(ServiceParams{
		Logger:       logg,
		DB:           dbClient,
		Processor:    processor,
		PollInterval: cfg.Webhook.PollInterval,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"instance":    instanceID(),
	})
	logg.Info(ctx, "starting worker")
	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "worker shutting down gracefully")
	return nil
}

func instanceID() string {
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	return "worker-0"
}
