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

	"github.com/angelmondragon/tipjar-backend/internal/cron"
	"github.com/angelmondragon/tipjar-backend/internal/donations"
	stripewebhooks "github.com/angelmondragon/tipjar-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/tipjar-backend/pkg/config"
	"github.com/angelmondragon/tipjar-backend/pkg/db"
	"github.com/angelmondragon/tipjar-backend/pkg/logger"
	"github.com/angelmondragon/tipjar-backend/pkg/metrics"
	"github.com/angelmondragon/tipjar-backend/pkg/migrate"
	"github.com/angelmondragon/tipjar-backend/pkg/outbox"
	"github.com/angelmondragon/tipjar-backend/pkg/redis"
)

const serviceKind = "cron-worker"

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
		logg.Error(context.Background(), "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
}

// run ticks the job registry under a Redis lease so only one replica runs
// jobs at a time.
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

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+lockEnv(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}
	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
		// a job must finish well before another replica can take the lock
		JobTimeout: cfg.Cron.LockTTL / 2,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"serviceKind": cfg.Service.Kind,
		"interval":    cfg.Cron.Interval.String(),
		"jobs":        len(registry.Jobs()),
	})
	logg.Info(ctx, "starting cron worker")
	go func() {
		if err := metrics.Serve(ctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
	return nil
}

func lockEnv(env string) string {
	if env == "" {
		return "local"
	}
	return env
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)

	expiry, err := cron.NewPendingDonationExpiryJob(cron.PendingDonationExpiryJobParams{
		Logger:    logg,
		DB:        dbClient,
		Donations: donations.NewRepository(conn),
		Outbox:    outbox.NewService(outboxRepo, logg),
		TTL:       cfg.Donations.PendingTTL,
	})
	if err != nil {
		return nil, err
	}
	inboxRetention, err := cron.NewWebhookInboxRetentionJob(logg, stripewebhooks.NewInboxRepository(conn), cfg.Webhook.RetentionDays)
	if err != nil {
		return nil, err
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(logg, outboxRepo, cfg.Outbox.RetentionDays)
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(expiry, inboxRetention, outboxRetention)
}
