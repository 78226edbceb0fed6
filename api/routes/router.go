package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/donation-ledger/api/controllers"
	donationcontrollers "github.com/angelmondragon/donation-ledger/api/controllers/donations"
	shippingcontrollers "github.com/angelmondragon/donation-ledger/api/controllers/shipping"
	webhookcontrollers "github.com/angelmondragon/donation-ledger/api/controllers/webhooks"
	"github.com/angelmondragon/donation-ledger/api/middleware"
	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/db"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/redis"
)

// Store is the redis surface the HTTP layer needs.
type Store interface {
	redis.IdempotencyStore
	redis.Pinger
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
	RateLimitKey(scope string, parts ...string) string
}

// Services groups the handlers' backing services.
type Services struct {
	Sync      donationcontrollers.SyncService
	Snapshot  donationcontrollers.SnapshotService
	Reader    donationcontrollers.Reader
	Shipping  shippingcontrollers.Calculator
	Webhooks  webhookcontrollers.StripeWebhookService
	Verifiers webhookcontrollers.VerifierFunc
	Events    webhookcontrollers.EventGuard
	Tokens    middleware.TokenVerifier
	Gatherer  prometheus.Gatherer
}

const (
	syncReplayTTL     = time.Hour
	shippingReplayTTL = 15 * time.Minute
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store Store,
	svcs Services,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	syncPolicy := middleware.RateLimitPolicy{
		Name:      "sync",
		Window:    cfg.Limits.SyncWindow,
		PerCaller: cfg.Limits.SyncCallerLimit,
		PerEmail:  cfg.Limits.SyncEmailLimit,
	}
	authenticated := []func(http.Handler) http.Handler{
		middleware.Auth(svcs.Tokens, logg),
		middleware.RequireRole(logg, enums.CallerRoleService, enums.CallerRoleAdmin),
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, store))
	})

	gatherer := svcs.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/functions/v1", func(r chi.Router) {
		r.Use(authenticated...)

		r.With(middleware.RateLimit(syncPolicy, store, logg), middleware.Idempotent(store, logg, syncReplayTTL)).
			Post("/sync-donation-history", donationcontrollers.SyncDonationHistory(svcs.Sync, logg))
		r.Post("/donation-mapping-snapshot", donationcontrollers.DonationMappingSnapshot(svcs.Snapshot, logg))
		r.With(middleware.Idempotent(store, logg, shippingReplayTTL)).
			Post("/calculate-shipping", shippingcontrollers.CalculateShipping(svcs.Shipping, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe/{mode}", webhookcontrollers.StripeWebhook(svcs.Webhooks, svcs.Verifiers, svcs.Events, logg))

		r.Route("/donations", func(r chi.Router) {
			r.Use(authenticated...)
			r.Get("/transactions", donationcontrollers.ListTransactions(svcs.Reader, logg))
			r.Get("/sync-status", donationcontrollers.SyncStatus(svcs.Reader, logg))
		})
	})

	return r
}
