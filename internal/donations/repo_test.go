package donations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

func setupDonationsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{`
CREATE TABLE IF NOT EXISTS donations (
  id TEXT PRIMARY KEY,
  donor_email TEXT NOT NULL,
  stripe_customer_id TEXT,
  stripe_payment_intent_id TEXT,
  stripe_charge_id TEXT,
  stripe_invoice_id TEXT,
  stripe_checkout_session_id TEXT,
  amount_cents INTEGER NOT NULL,
  currency TEXT NOT NULL,
  stripe_mode TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS sponsorships (
  id TEXT PRIMARY KEY,
  sponsor_email TEXT NOT NULL,
  sponsored_name TEXT NOT NULL,
  stripe_subscription_id TEXT,
  stripe_customer_id TEXT,
  stripe_mode TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS sponsorship_receipts (
  id TEXT PRIMARY KEY,
  sponsorship_id TEXT,
  stripe_invoice_id TEXT,
  stripe_charge_id TEXT,
  receipt_number TEXT NOT NULL,
  issued_at DATETIME NOT NULL
);`, `
CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  stripe_payment_intent_id TEXT,
  stripe_checkout_session_id TEXT,
  customer_email TEXT NOT NULL,
  status TEXT NOT NULL,
  created_at DATETIME
);`, `
CREATE TABLE IF NOT EXISTS donation_stripe_transactions (
  id TEXT PRIMARY KEY,
  external_key TEXT NOT NULL,
  stripe_mode TEXT NOT NULL,
  stripe_invoice_id TEXT,
  stripe_charge_id TEXT,
  stripe_payment_intent_id TEXT,
  stripe_subscription_id TEXT,
  stripe_customer_id TEXT,
  stripe_checkout_session_id TEXT,
  customer_email TEXT NOT NULL,
  source_type TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  status TEXT NOT NULL,
  refunded_amount TEXT NOT NULL,
  transaction_created_at DATETIME NOT NULL,
  designation TEXT NOT NULL,
  designation_kind TEXT NOT NULL,
  sponsorship_id TEXT,
  metadata TEXT,
  donation_id TEXT,
  receipt_id TEXT,
  synced_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_dst_external_mode ON donation_stripe_transactions (external_key, stripe_mode);`, `
CREATE TABLE IF NOT EXISTS active_subscriptions_cache (
  id TEXT PRIMARY KEY,
  stripe_subscription_id TEXT NOT NULL,
  stripe_mode TEXT NOT NULL,
  stripe_customer_id TEXT NOT NULL,
  customer_email TEXT NOT NULL,
  status TEXT NOT NULL,
  amount TEXT NOT NULL,
  currency TEXT NOT NULL,
  interval TEXT,
  current_period_end DATETIME,
  designation TEXT NOT NULL,
  synced_at DATETIME NOT NULL,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_asc_subscription_mode ON active_subscriptions_cache (stripe_subscription_id, stripe_mode);`, `
CREATE TABLE IF NOT EXISTS donation_sync_status (
  id TEXT PRIMARY KEY,
  email TEXT NOT NULL,
  stripe_mode TEXT NOT NULL,
  status TEXT NOT NULL,
  error_message TEXT,
  transactions_synced INTEGER NOT NULL DEFAULT 0,
  last_started_at DATETIME,
  last_finished_at DATETIME,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_dss_email_mode ON donation_sync_status (email, stripe_mode);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func chargeRecord(chargeID string, cents int64, created time.Time) Transaction {
	return Transaction{
		Mode:          enums.StripeModeLive,
		SourceType:    enums.SourceTypeCharge,
		ChargeID:      chargeID,
		CustomerID:    "cus_1",
		CustomerEmail: "donor@example.org",
		AmountCents:   cents,
		Currency:      "USD",
		Created:       created,
		Designation:   General(),
		Metadata:      map[string]string{"campaign": "spring"},
	}
}

func TestRepositoryUpsertIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 1)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	syncedAt := created.Add(time.Hour)

	rows := []models.DonationStripeTransaction{
		toRow(chargeRecord("ch_1", 1000, created), syncedAt),
		toRow(chargeRecord("ch_2", 2500, created.Add(time.Minute)), syncedAt),
	}
	n, err := repo.UpsertTransactions(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	refunded := chargeRecord("ch_1", 1000, created)
	refunded.RefundedCents = 1000
	again := []models.DonationStripeTransaction{
		toRow(refunded, syncedAt.Add(time.Hour)),
		toRow(chargeRecord("ch_2", 2500, created.Add(time.Minute)), syncedAt.Add(time.Hour)),
	}
	_, err = repo.UpsertTransactions(ctx, again)
	require.NoError(t, err)

	var count int64
	require.NoError(t, db.Model(&models.DonationStripeTransaction{}).Count(&count).Error)
	assert.EqualValues(t, 2, count)

	var stored models.DonationStripeTransaction
	require.NoError(t, db.Where("external_key = ?", "ch_1").First(&stored).Error)
	assert.Equal(t, rows[0].ID, stored.ID)
	assert.Equal(t, enums.TransactionStatusRefunded, stored.Status)
	assert.Equal(t, "10", stored.RefundedAmount.String())
	assert.Equal(t, "spring", stored.Metadata["campaign"])
}

func TestRepositoryPromotesChargeKeyToInvoice(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 0)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	_, err := repo.UpsertTransactions(ctx, []models.DonationStripeTransaction{toRow(chargeRecord("ch_1", 1000, created), created)})
	require.NoError(t, err)

	invoice := chargeRecord("ch_1", 1000, created)
	invoice.SourceType = enums.SourceTypeInvoice
	invoice.InvoiceID = "in_1"
	rows := []models.DonationStripeTransaction{toRow(invoice, created.Add(time.Hour))}

	require.NoError(t, repo.PromoteChargeKeys(ctx, enums.StripeModeLive, rows))
	_, err = repo.UpsertTransactions(ctx, rows)
	require.NoError(t, err)

	var stored []models.DonationStripeTransaction
	require.NoError(t, db.Find(&stored).Error)
	require.Len(t, stored, 1)
	assert.Equal(t, "in_1", stored[0].ExternalKey)
	assert.Equal(t, enums.SourceTypeInvoice, stored[0].SourceType)
}

func TestRepositoryPromoteDropsStaleChargeRow(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 0)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	invoice := chargeRecord("ch_1", 1000, created)
	invoice.InvoiceID = "in_1"
	_, err := repo.UpsertTransactions(ctx, []models.DonationStripeTransaction{
		toRow(chargeRecord("ch_1", 1000, created), created),
		toRow(invoice, created),
	})
	require.NoError(t, err)

	rows := []models.DonationStripeTransaction{toRow(invoice, created)}
	require.NoError(t, repo.PromoteChargeKeys(ctx, enums.StripeModeLive, rows))

	var keys []string
	require.NoError(t, db.Model(&models.DonationStripeTransaction{}).Order("external_key").Pluck("external_key", &keys).Error)
	assert.Equal(t, []string{"in_1"}, keys)
}

func TestRepositoryModesAreSeparate(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 0)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	live := chargeRecord("ch_1", 1000, created)
	test := chargeRecord("ch_1", 1000, created)
	test.Mode = enums.StripeModeTest
	_, err := repo.UpsertTransactions(ctx, []models.DonationStripeTransaction{toRow(live, created), toRow(test, created)})
	require.NoError(t, err)

	rows, cursor, err := repo.ListTransactions(ctx, TransactionQuery{Email: "Donor@Example.org", Mode: enums.StripeModeTest, Limit: 10})
	require.NoError(t, err)
	assert.Nil(t, cursor)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.StripeModeTest, rows[0].StripeMode)
}

func TestRepositoryListTransactionsPages(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 0)
	created := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	var rows []models.DonationStripeTransaction
	for i := 0; i < 3; i++ {
		rows = append(rows, toRow(chargeRecord(fmt.Sprintf("ch_%d", i), 1000, created.Add(time.Duration(i)*time.Hour)), created))
	}
	_, err := repo.UpsertTransactions(ctx, rows)
	require.NoError(t, err)

	first, cursor, err := repo.ListTransactions(ctx, TransactionQuery{Mode: enums.StripeModeLive, Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.NotNil(t, cursor)
	assert.Equal(t, "ch_2", first[0].ExternalKey)
	assert.Equal(t, "ch_1", first[1].ExternalKey)

	second, cursor, err := repo.ListTransactions(ctx, TransactionQuery{Mode: enums.StripeModeLive, Limit: 2, Cursor: cursor})
	require.NoError(t, err)
	assert.Nil(t, cursor)
	require.Len(t, second, 1)
	assert.Equal(t, "ch_0", second[0].ExternalKey)
}

func TestRepositorySyncStatusLifecycle(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 0)
	started := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)

	require.NoError(t, repo.MarkSyncStarted(ctx, "donor@example.org", enums.StripeModeLive, started))
	msg := "stripe unavailable"
	require.NoError(t, repo.MarkSyncFinished(ctx, models.DonationSyncStatus{
		Email: "donor@example.org", StripeMode: enums.StripeModeLive, Status: enums.SyncStatusFailed,
		ErrorMessage: &msg, LastFinishedAt: &finished,
	}))
	require.NoError(t, repo.MarkSyncStarted(ctx, "donor@example.org", enums.StripeModeLive, finished))

	statuses, err := repo.ListSyncStatuses(ctx, enums.StripeModeLive, 10)
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, enums.SyncStatusRunning, statuses[0].Status)
	assert.Nil(t, statuses[0].ErrorMessage)
	require.NotNil(t, statuses[0].LastFinishedAt)
}

func TestRepositoryLookups(t *testing.T) {
	ctx := context.Background()
	db := setupDonationsTestDB(t)
	repo := NewRepository(db, 0)
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.Donation{ID: uuid.New(), DonorEmail: " Ana@Example.org ", AmountCents: 100, Currency: "usd", StripeMode: enums.StripeModeLive, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Donation{ID: uuid.New(), DonorEmail: "test@example.org", AmountCents: 100, Currency: "usd", StripeMode: enums.StripeModeTest, CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Sponsorship{ID: uuid.New(), SponsorEmail: "ana@example.org", SponsoredName: "Luis", StripeMode: enums.StripeModeLive, Status: "active", CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Sponsorship{ID: uuid.New(), SponsorEmail: "ben@example.org", SponsoredName: "Eva", StripeMode: enums.StripeModeLive, Status: "active", CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Order{ID: uuid.New(), StripePaymentIntentID: strPtr("pi_market"), CustomerEmail: "ana@example.org", Status: "paid", CreatedAt: now}).Error)
	require.NoError(t, db.Create(&models.Order{ID: uuid.New(), CustomerEmail: "ana@example.org", Status: "pending", CreatedAt: now}).Error)

	emails, err := repo.DistinctDonorEmails(ctx, enums.StripeModeLive, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.org", "ben@example.org"}, emails)

	intents, err := repo.MarketplacePaymentIntents(ctx)
	require.NoError(t, err)
	assert.Len(t, intents, 1)
	assert.Contains(t, intents, "pi_market")

	sponsorships, err := repo.ListSponsorships(ctx, enums.StripeModeLive)
	require.NoError(t, err)
	assert.Len(t, sponsorships, 2)
}
