package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/internal/snapshot"
	"github.com/angelmondragon/donation-ledger/pkg/auth"
	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/db"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/migrate"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

var Version = "dev"

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(bootstrap).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// bootstrap connects to postgres and, unless only the schema is needed,
// Stripe the same way the api does. Token minting skips both.
func bootstrap(ctx context.Context, n needs, migrationsDir string) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if n == needsConfig {
		authority, err := auth.NewAuthority(cfg.JWT)
		if err != nil {
			return nil, err
		}
		return &app{tokens: authority}, nil
	}
	logg := logger.New(logger.FromConfig("ledgerctl", cfg.App))

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return nil, err
	}
	if n == needsDatabase {
		return schemaApp(dbClient, migrationsDir)
	}

	stripeClients, err := pkgstripe.NewClients(ctx, cfg.Stripe, logg)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	repo := donations.NewRepository(dbClient.DB(), cfg.Sync.UpsertChunkSize)
	providers := donations.StripeProviders(stripeClients)
	syncService, err := donations.NewService(donations.ServiceParams{
		Repo:         repo,
		Tx:           dbClient,
		Providers:    providers,
		Logger:       logg,
		LookbackDays: cfg.Sync.LookbackDays,
		BatchLimit:   cfg.Sync.BatchLimit,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	snapshotService, err := snapshot.NewService(snapshot.ServiceParams{
		Reader:    repo,
		Providers: providers,
		Logger:    logg,
	})
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}

	return &app{
		snapshots: snapshotService,
		syncer:    syncService,
		close:     dbClient.Close,
	}, nil
}

func schemaApp(dbClient *db.Client, dir string) (*app, error) {
	sqlDB, err := dbClient.DB().DB()
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	fsys, err := migrate.Source(dir)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	runner, err := migrate.NewRunner(sqlDB, fsys)
	if err != nil {
		_ = dbClient.Close()
		return nil, err
	}
	return &app{migrator: runner, close: dbClient.Close}, nil
}
