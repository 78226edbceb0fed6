package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/donation-ledger/internal/cron"
	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/db"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/metrics"
	"github.com/angelmondragon/donation-ledger/pkg/migrate"
	"github.com/angelmondragon/donation-ledger/pkg/redis"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const lockKeyFormat = "cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.FromConfig("cron-worker", cfg.App))

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClients, err := pkgstripe.NewClients(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create stripe clients", err)
		os.Exit(1)
	}

	syncService, err := donations.NewService(donations.ServiceParams{
		Repo:         donations.NewRepository(dbClient.DB(), cfg.Sync.UpsertChunkSize),
		Tx:           dbClient,
		Providers:    donations.StripeProviders(stripeClients),
		Logger:       logg,
		Metrics:      metrics.NewSyncMetrics(prometheus.DefaultRegisterer),
		LookbackDays: cfg.Sync.LookbackDays,
		BatchLimit:   cfg.Sync.BatchLimit,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create donation sync service", err)
		os.Exit(1)
	}

	modes, err := parseModes(cfg.Cron.Modes)
	if err != nil {
		logg.Error(context.Background(), "invalid cron modes", err)
		os.Exit(1)
	}
	syncJob, err := cron.NewDonationSyncJob(cron.DonationSyncJobParams{
		Logger: logg,
		Syncer: syncService,
		Modes:  modes,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create donation sync job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockName(cfg.App.Env)), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := cron.NewRegistry(syncJob)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metricsCollector,
		Schedule:   cfg.Cron.Schedule,
		RunOnStart: cfg.Cron.RunOnStart,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"schedule":    cfg.Cron.Schedule,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func parseModes(raw []string) ([]enums.StripeMode, error) {
	out := make([]enums.StripeMode, 0, len(raw))
	for _, value := range raw {
		mode, err := enums.ParseStripeMode(value)
		if err != nil {
			return nil, err
		}
		out = append(out, mode)
	}
	return out, nil
}

func lockName(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
