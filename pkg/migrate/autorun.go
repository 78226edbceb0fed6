package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/db"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
)

// MaybeRunDev applies the embedded schema on start-up in dev when
// LEDGER_AUTO_MIGRATE is set. Other environments migrate with ledgerctl.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.Features.AutoMigrate {
		return nil
	}
	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	fsys, err := Source("")
	if err != nil {
		return err
	}
	runner, err := NewRunner(sqlDB, fsys)
	if err != nil {
		return err
	}

	ctx = logg.WithField(ctx, "env", cfg.App.Env)
	done, err := runner.Up(ctx)
	for _, m := range done {
		logg.Info(logg.WithFields(ctx, map[string]any{
			"version":     m.Version,
			"file":        m.File,
			"duration_ms": m.Duration.Milliseconds(),
		}), "migration applied")
	}
	if err != nil {
		return err
	}
	logg.Info(logg.WithField(ctx, "applied", len(done)), "schema up to date")
	return nil
}
