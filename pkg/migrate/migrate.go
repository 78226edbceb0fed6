package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/lock"
)

// EmbeddedDir is the directory name inside Migrations.
const EmbeddedDir = "migrations"

// Migrations ships the ledger schema inside every binary.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// Applied describes one migration that ran.
type Applied struct {
	Version   int64         `json:"version"`
	File      string        `json:"file"`
	Direction string        `json:"direction"`
	Duration  time.Duration `json:"duration"`
}

// Status is one migration's state in the target database.
type Status struct {
	Version   int64     `json:"version"`
	File      string    `json:"file"`
	Applied   bool      `json:"applied"`
	AppliedAt time.Time `json:"applied_at,omitempty"`
}

// Runner applies migrations through a goose provider. Runs are serialized
// across processes with a Postgres advisory lock. The caller owns the *sql.DB.
type Runner struct {
	provider *goose.Provider
}

// Source returns the embedded schema, or the SQL files in dir when set.
func Source(dir string) (fs.FS, error) {
	if dir != "" {
		return os.DirFS(dir), nil
	}
	return fs.Sub(Migrations, EmbeddedDir)
}

// NewRunner builds a runner over fsys (see Source).
func NewRunner(db *sql.DB, fsys fs.FS) (*Runner, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	locker, err := lock.NewPostgresSessionLocker()
	if err != nil {
		return nil, fmt.Errorf("migration locker: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys, goose.WithSessionLocker(locker))
	if err != nil {
		return nil, fmt.Errorf("goose provider: %w", err)
	}
	return &Runner{provider: provider}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) ([]Applied, error) {
	res, err := r.provider.Up(ctx)
	if err != nil {
		return applied(res), fmt.Errorf("migrate up: %w", err)
	}
	return applied(res), nil
}

// Down rolls back the latest applied migration.
func (r *Runner) Down(ctx context.Context) ([]Applied, error) {
	res, err := r.provider.Down(ctx)
	if err != nil {
		return nil, fmt.Errorf("migrate down: %w", err)
	}
	return applied([]*goose.MigrationResult{res}), nil
}

// To moves the schema up or down until version is the latest applied one.
func (r *Runner) To(ctx context.Context, version int64) ([]Applied, error) {
	current, err := r.provider.GetDBVersion(ctx)
	if err != nil {
		return nil, fmt.Errorf("read schema version: %w", err)
	}
	var res []*goose.MigrationResult
	switch {
	case version == current:
		return nil, nil
	case version > current:
		res, err = r.provider.UpTo(ctx, version)
	default:
		res, err = r.provider.DownTo(ctx, version)
	}
	if err != nil {
		return applied(res), fmt.Errorf("migrate to %d: %w", version, err)
	}
	return applied(res), nil
}

// Status lists every known migration in version order.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	rows, err := r.provider.Status(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration status: %w", err)
	}
	out := make([]Status, 0, len(rows))
	for _, row := range rows {
		out = append(out, Status{
			Version:   row.Source.Version,
			File:      path.Base(row.Source.Path),
			Applied:   row.State == goose.StateApplied,
			AppliedAt: row.AppliedAt,
		})
	}
	return out, nil
}

func applied(results []*goose.MigrationResult) []Applied {
	out := make([]Applied, 0, len(results))
	for _, res := range results {
		if res == nil || res.Source == nil {
			continue
		}
		out = append(out, Applied{
			Version:   res.Source.Version,
			File:      path.Base(res.Source.Path),
			Direction: res.Direction,
			Duration:  res.Duration,
		})
	}
	return out
}
