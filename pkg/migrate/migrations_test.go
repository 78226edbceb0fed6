package migrate_test

import (
	"io/fs"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/angelmondragon/donation-ledger/pkg/migrate"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	fsys, err := migrate.Source("")
	if err != nil {
		t.Fatalf("source: %v", err)
	}
	if err := migrate.ValidateFS(fsys); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestTransactionsMigrationContainsUpsertKey(t *testing.T) {
	content := readMigration(t, "*_create_donation_stripe_transactions.sql")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS donation_stripe_transactions",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_dst_external_mode ON donation_stripe_transactions (external_key, stripe_mode)",
		"CHECK (source_type IN ('invoice', 'charge', 'payment_intent', 'checkout_session'))",
		"DROP TABLE IF EXISTS donation_stripe_transactions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestSyncCachesMigrationContainsUniqueKeys(t *testing.T) {
	content := readMigration(t, "*_create_sync_caches.sql")
	checks := []string{
		"ux_asc_subscription_mode ON active_subscriptions_cache (stripe_subscription_id, stripe_mode)",
		"ux_dss_email_mode ON donation_sync_status (email, stripe_mode)",
		"CHECK (status IN ('running', 'succeeded', 'failed'))",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestValidateFSRejectsBrokenFiles(t *testing.T) {
	good := "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose StatementEnd\n\n-- +goose Down\nSELECT 1;\n"
	cases := map[string]fstest.MapFS{
		"name must be": {
			"20260301_short.sql": {Data: []byte(good)},
		},
		"already used by": {
			"20260301090000_a.sql": {Data: []byte(good)},
			"20260301090000_b.sql": {Data: []byte(good)},
		},
		"Down": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\nSELECT 1;\n")},
		},
		"unterminated StatementBegin": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n-- +goose StatementBegin\nSELECT 1;\n")},
		},
		"left open before Down": {
			"20260301090000_a.sql": {Data: []byte("-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n-- +goose StatementEnd\n")},
		},
	}
	for want, fsys := range cases {
		err := migrate.ValidateFS(fsys)
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("expected error containing %q, got %v", want, err)
		}
	}

	ok := fstest.MapFS{"20260301090000_add_index.sql": {Data: []byte(good)}, "README.md": {Data: []byte("x")}}
	if err := migrate.ValidateFS(ok); err != nil {
		t.Fatalf("well-formed migration rejected: %v", err)
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := fs.Glob(migrate.Migrations, migrate.EmbeddedDir+"/"+pattern)
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration matching %s", pattern)
	}
	data, err := fs.ReadFile(migrate.Migrations, matches[0])
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	return string(data)
}
