package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/internal/snapshot"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/migrate"
)

type snapshotBuilder interface {
	Build(ctx context.Context, req snapshot.Request) (*snapshot.Snapshot, error)
}

type customerSyncer interface {
	SyncCustomer(ctx context.Context, req donations.SyncRequest) (*donations.SyncResult, error)
}

type migrator interface {
	Up(ctx context.Context) ([]migrate.Applied, error)
	Down(ctx context.Context) ([]migrate.Applied, error)
	To(ctx context.Context, version int64) ([]migrate.Applied, error)
	Status(ctx context.Context) ([]migrate.Status, error)
}

type tokenIssuer interface {
	Issue(subject string, role enums.CallerRole, ttl time.Duration) (string, error)
}

type app struct {
	snapshots snapshotBuilder
	syncer    customerSyncer
	migrator  migrator
	tokens    tokenIssuer
	close     func() error
}

// needs tells bootstrap how much to wire. Schema commands only need postgres
// and token minting only needs config.
type needs int

const (
	needsServices needs = iota
	needsDatabase
	needsConfig
)

type bootstrapFunc func(ctx context.Context, n needs, migrationsDir string) (*app, error)

func newRootCmd(boot bootstrapFunc) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tools for the donation ledger",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(snapshotCmd(boot))
	rootCmd.AddCommand(syncCmd(boot))
	rootCmd.AddCommand(migrateCmd(boot))
	rootCmd.AddCommand(tokenCmd(boot))
	return rootCmd
}

func snapshotCmd(boot bootstrapFunc) *cobra.Command {
	var req snapshot.Request
	var mode string
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Print the donation mapping snapshot for one donor and day",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := enums.ParseStripeMode(mode)
			if err != nil {
				return err
			}
			req.Mode = parsed
			if _, _, err := snapshot.DayWindow(req.Date, timezoneOrUTC(req.Timezone)); err != nil {
				return describe(err)
			}

			a, err := boot(cmd.Context(), needsServices, "")
			if err != nil {
				return err
			}
			defer a.shutdown()

			snap, err := a.snapshots.Build(cmd.Context(), req)
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), snap)
		},
	}
	cmd.Flags().StringVarP(&req.Email, "email", "e", "", "Donor email")
	cmd.Flags().StringVarP(&req.Date, "date", "d", "", "Calendar day (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&mode, "mode", "m", "live", "Stripe mode (test, live)")
	cmd.Flags().StringVar(&req.Timezone, "timezone", "UTC", "IANA timezone for the day window")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func syncCmd(boot bootstrapFunc) *cobra.Command {
	var email, mode string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Resync one donor's Stripe history into the ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := enums.ParseStripeMode(mode)
			if err != nil {
				return err
			}
			a, err := boot(cmd.Context(), needsServices, "")
			if err != nil {
				return err
			}
			defer a.shutdown()

			res, err := a.syncer.SyncCustomer(cmd.Context(), donations.SyncRequest{Email: email, Mode: parsed})
			if err != nil {
				return describe(err)
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVarP(&email, "email", "e", "", "Donor email")
	cmd.Flags().StringVarP(&mode, "mode", "m", "live", "Stripe mode (test, live)")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func migrateCmd(boot bootstrapFunc) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Inspect or change the ledger schema",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "", "Directory of SQL migrations (default: the embedded schema)")

	withRunner := func(fn func(ctx context.Context, m migrator) (any, error)) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			a, err := boot(cmd.Context(), needsDatabase, dir)
			if err != nil {
				return err
			}
			defer a.shutdown()
			out, err := fn(cmd.Context(), a.migrator)
			if out != nil {
				if perr := printJSON(cmd.OutOrStdout(), out); perr != nil && err == nil {
					err = perr
				}
			}
			return err
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: withRunner(func(ctx context.Context, m migrator) (any, error) {
			return m.Up(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: withRunner(func(ctx context.Context, m migrator) (any, error) {
			return m.Down(ctx)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		RunE: withRunner(func(ctx context.Context, m migrator) (any, error) {
			return m.Status(ctx)
		}),
	})
	toCmd := &cobra.Command{
		Use:   "to VERSION",
		Short: "Migrate up or down to VERSION (YYYYMMDDHHMMSS)",
		Args:  cobra.ExactArgs(1),
	}
	toCmd.RunE = func(c *cobra.Command, args []string) error {
		version, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || len(args[0]) != 14 {
			return fmt.Errorf("version must be YYYYMMDDHHMMSS, got %q", args[0])
		}
		return withRunner(func(ctx context.Context, m migrator) (any, error) {
			return m.To(ctx, version)
		})(c, args)
	}
	cmd.AddCommand(toCmd)
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Check migration file names and goose annotations without a database",
		RunE: func(cmd *cobra.Command, args []string) error {
			fsys, err := migrate.Source(dir)
			if err != nil {
				return err
			}
			if err := migrate.ValidateFS(fsys); err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), "migrations ok")
			return err
		},
	})
	return cmd
}

func tokenCmd(boot bootstrapFunc) *cobra.Command {
	var subject, role string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for an edge function or operator",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := enums.CallerRole(strings.ToLower(strings.TrimSpace(role)))
			if !parsed.IsValid() {
				return fmt.Errorf("role must be %s or %s, got %q", enums.CallerRoleService, enums.CallerRoleAdmin, role)
			}
			if strings.TrimSpace(subject) == "" {
				return errors.New("subject is required")
			}
			a, err := boot(cmd.Context(), needsConfig, "")
			if err != nil {
				return err
			}
			defer a.shutdown()

			token, err := a.tokens.Issue(strings.TrimSpace(subject), parsed, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Token subject, e.g. the calling function's name")
	cmd.Flags().StringVarP(&role, "role", "r", string(enums.CallerRoleService), "Caller role (service_role, admin)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "Token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func (a *app) shutdown() {
	if a.close != nil {
		_ = a.close()
	}
}

func timezoneOrUTC(tz string) string {
	if tz == "" {
		return "UTC"
	}
	return tz
}

// describe keeps the cause chain that Error() drops.
func describe(err error) error {
	if pkgerrors.As(err) == nil {
		return err
	}
	return errors.New(pkgerrors.Describe(err))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
