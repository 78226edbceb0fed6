package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/internal/snapshot"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/migrate"
)

type fakeBuilder struct {
	req snapshot.Request
	err error
}

func (f *fakeBuilder) Build(ctx context.Context, req snapshot.Request) (*snapshot.Snapshot, error) {
	f.req = req
	if f.err != nil {
		return nil, f.err
	}
	return &snapshot.Snapshot{Email: req.Email, Date: req.Date, Mode: req.Mode, Timezone: req.Timezone}, nil
}

type fakeSyncer struct {
	req donations.SyncRequest
}

func (f *fakeSyncer) SyncCustomer(ctx context.Context, req donations.SyncRequest) (*donations.SyncResult, error) {
	f.req = req
	return &donations.SyncResult{Email: req.Email, Mode: req.Mode, TransactionsSynced: 2}, nil
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(func(context.Context, needs, string) (*app, error) {
		if a == nil {
			t.Fatalf("bootstrap should not run")
		}
		return a, nil
	})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSnapshotCommandPrintsJSON(t *testing.T) {
	builder := &fakeBuilder{}
	closed := false
	a := &app{snapshots: builder, close: func() error { closed = true; return nil }}

	out, err := run(t, a, "snapshot", "--email", "ana@example.org", "--date", "2026-03-10", "--mode", "test", "--timezone", "America/Chicago")
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if builder.req.Mode != enums.StripeModeTest || builder.req.Timezone != "America/Chicago" {
		t.Fatalf("unexpected request %+v", builder.req)
	}
	if !closed {
		t.Fatalf("expected app to be closed")
	}
	var snap snapshot.Snapshot
	if err := json.Unmarshal([]byte(out), &snap); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	if snap.Email != "ana@example.org" {
		t.Fatalf("unexpected email %q", snap.Email)
	}
}

func TestSnapshotCommandRejectsBadDateBeforeConnecting(t *testing.T) {
	_, err := run(t, nil, "snapshot", "--email", "ana@example.org", "--date", "10/03/2026")
	if err == nil || !strings.Contains(err.Error(), "YYYY-MM-DD") {
		t.Fatalf("expected date validation error, got %v", err)
	}
}

func TestSnapshotCommandRequiresEmail(t *testing.T) {
	if _, err := run(t, &app{snapshots: &fakeBuilder{}}, "snapshot", "--date", "2026-03-10"); err == nil {
		t.Fatalf("expected missing flag error")
	}
}

func TestSnapshotCommandKeepsCauseChain(t *testing.T) {
	builder := &fakeBuilder{err: pkgerrors.Wrap(pkgerrors.CodeDependency, errors.New("stripe 502"), "list invoices")}
	_, err := run(t, &app{snapshots: builder}, "snapshot", "--email", "ana@example.org", "--date", "2026-03-10")
	if err == nil || !strings.Contains(err.Error(), "stripe 502") {
		t.Fatalf("expected cause in error, got %v", err)
	}
}

func TestSyncCommand(t *testing.T) {
	syncer := &fakeSyncer{}
	out, err := run(t, &app{syncer: syncer}, "sync", "-e", "ana@example.org", "-m", "LIVE")
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if syncer.req.Mode != enums.StripeModeLive || syncer.req.Email != "ana@example.org" {
		t.Fatalf("unexpected request %+v", syncer.req)
	}
	if !strings.Contains(out, `"transactions_synced": 2`) {
		t.Fatalf("unexpected output %s", out)
	}
}

type fakeMigrator struct {
	to       int64
	upCalled bool
}

func (f *fakeMigrator) Up(ctx context.Context) ([]migrate.Applied, error) {
	f.upCalled = true
	return []migrate.Applied{{Version: 20260301090000, File: "20260301090000_create_donation_inputs.sql", Direction: "up"}}, nil
}

func (f *fakeMigrator) Down(ctx context.Context) ([]migrate.Applied, error) {
	return nil, nil
}

func (f *fakeMigrator) To(ctx context.Context, version int64) ([]migrate.Applied, error) {
	f.to = version
	return nil, nil
}

func (f *fakeMigrator) Status(ctx context.Context) ([]migrate.Status, error) {
	return []migrate.Status{{Version: 20260301090000, File: "20260301090000_create_donation_inputs.sql", Applied: true}}, nil
}

func TestMigrateUpPrintsApplied(t *testing.T) {
	m := &fakeMigrator{}
	out, err := run(t, &app{migrator: m}, "migrate", "up")
	if err != nil {
		t.Fatalf("migrate up: %v", err)
	}
	if !m.upCalled || !strings.Contains(out, `"version": 20260301090000`) {
		t.Fatalf("unexpected output %s", out)
	}
}

func TestMigrateToParsesVersion(t *testing.T) {
	m := &fakeMigrator{}
	if _, err := run(t, &app{migrator: m}, "migrate", "to", "20260301090100"); err != nil {
		t.Fatalf("migrate to: %v", err)
	}
	if m.to != 20260301090100 {
		t.Fatalf("unexpected target %d", m.to)
	}
	if _, err := run(t, nil, "migrate", "to", "42"); err == nil {
		t.Fatalf("expected short version to be rejected before connecting")
	}
}

func TestMigrateValidateRunsOffline(t *testing.T) {
	out, err := run(t, nil, "migrate", "validate")
	if err != nil {
		t.Fatalf("validate embedded schema: %v", err)
	}
	if !strings.Contains(out, "migrations ok") {
		t.Fatalf("unexpected output %q", out)
	}
}

type fakeIssuer struct {
	subject string
	role    enums.CallerRole
	ttl     time.Duration
}

func (f *fakeIssuer) Issue(subject string, role enums.CallerRole, ttl time.Duration) (string, error) {
	f.subject, f.role, f.ttl = subject, role, ttl
	return "signed.jwt.token", nil
}

func TestTokenCommandPrintsToken(t *testing.T) {
	issuer := &fakeIssuer{}
	out, err := run(t, &app{tokens: issuer}, "token", "--subject", "sync-donation-history", "--role", "ADMIN", "--ttl", "30m")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if strings.TrimSpace(out) != "signed.jwt.token" {
		t.Fatalf("unexpected output %q", out)
	}
	if issuer.subject != "sync-donation-history" || issuer.role != enums.CallerRoleAdmin || issuer.ttl != 30*time.Minute {
		t.Fatalf("unexpected issue call %+v", issuer)
	}
}

func TestTokenCommandRejectsUnknownRole(t *testing.T) {
	if _, err := run(t, nil, "token", "--subject", "x", "--role", "owner"); err == nil {
		t.Fatalf("expected unknown role to be rejected before bootstrap")
	}
}
