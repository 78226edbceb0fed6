package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	webhookcontrollers "github.com/angelmondragon/donation-ledger/api/controllers/webhooks"
	"github.com/angelmondragon/donation-ledger/api/routes"
	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/internal/shipping"
	"github.com/angelmondragon/donation-ledger/internal/snapshot"
	stripewebhook "github.com/angelmondragon/donation-ledger/internal/webhooks/stripe"
	"github.com/angelmondragon/donation-ledger/pkg/auth"
	"github.com/angelmondragon/donation-ledger/pkg/carriers"
	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/db"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/metrics"
	"github.com/angelmondragon/donation-ledger/pkg/migrate"
	"github.com/angelmondragon/donation-ledger/pkg/redis"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

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

	logg = logger.New(logger.FromConfig("api", cfg.App))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClients, err := pkgstripe.NewClients(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	donationsRepo := donations.NewRepository(dbClient.DB(), cfg.Sync.UpsertChunkSize)
	providers := donations.StripeProviders(stripeClients)
	syncService, err := donations.NewService(donations.ServiceParams{
		Repo:         donationsRepo,
		Tx:           dbClient,
		Providers:    providers,
		Logger:       logg,
		Metrics:      metrics.NewSyncMetrics(registry),
		LookbackDays: cfg.Sync.LookbackDays,
		BatchLimit:   cfg.Sync.BatchLimit,
	})
	if err != nil {
		return err
	}

	snapshotService, err := snapshot.NewService(snapshot.ServiceParams{
		Reader:    donationsRepo,
		Providers: providers,
		Logger:    logg,
	})
	if err != nil {
		return err
	}

	shippingService, err := shipping.NewService(shipping.ServiceParams{
		Repo:      shipping.NewRepository(dbClient.DB()),
		Cache:     redisClient,
		Providers: rateProviders(cfg.Shipping, logg),
		Origin: carriers.Address{
			PostalCode: cfg.Shipping.OriginPostal,
			Country:    cfg.Shipping.OriginCountry,
		},
		QuoteTTL: cfg.Shipping.QuoteTTL,
		Logger:   logg,
	})
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Syncer:        syncService,
		Customers:     stripewebhook.StripeCustomers(stripeClients),
		Logger:        logg,
		ResyncEnabled: cfg.Features.WebhookResync,
	})
	if err != nil {
		return err
	}
	eventGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Sync.IdempotencyTTL, stripewebhook.DefaultClaimTTL)
	if err != nil {
		return err
	}
	authority, err := auth.NewAuthority(cfg.JWT)
	if err != nil {
		return err
	}

	addr := ":" + port(cfg)
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(logCtx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(cfg, logg, dbClient, redisClient, routes.Services{
			Sync:      syncService,
			Snapshot:  snapshotService,
			Reader:    donationsRepo,
			Shipping:  shippingService,
			Webhooks:  webhookService,
			Verifiers: webhookcontrollers.StripeVerifiers(stripeClients),
			Events:    eventGuard,
			Tokens:    authority,
			Gatherer:  registry,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func port(cfg *config.Config) string {
	if p := os.Getenv("PORT"); p != "" {
		return p
	}
	return cfg.App.Port
}

// rateProviders builds a client for each carrier with a configured key.
func rateProviders(cfg config.ShippingConfig, logg *logger.Logger) []carriers.RateProvider {
	var out []carriers.RateProvider
	if cfg.EasyPostAPIKey != "" {
		if p, err := carriers.NewEasyPost(cfg.EasyPostAPIKey, carriers.WithBaseURL(cfg.EasyPostBaseURL)); err != nil {
			logg.Error(context.Background(), "easypost client disabled", err)
		} else {
			out = append(out, p)
		}
	}
	if cfg.ShippoAPIKey != "" {
		if p, err := carriers.NewShippo(cfg.ShippoAPIKey, carriers.WithBaseURL(cfg.ShippoBaseURL)); err != nil {
			logg.Error(context.Background(), "shippo client disabled", err)
		} else {
			out = append(out, p)
		}
	}
	return out
}
