package donations

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	"github.com/angelmondragon/donation-ledger/pkg/pagination"
)

const defaultUpsertChunk = 200

var transactionUpdateColumns = []string{
	"stripe_invoice_id",
	"stripe_charge_id",
	"stripe_payment_intent_id",
	"stripe_subscription_id",
	"stripe_customer_id",
	"stripe_checkout_session_id",
	"customer_email",
	"source_type",
	"amount",
	"currency",
	"status",
	"refunded_amount",
	"transaction_created_at",
	"designation",
	"designation_kind",
	"sponsorship_id",
	"metadata",
	"donation_id",
	"receipt_id",
	"synced_at",
	"updated_at",
}

var subscriptionUpdateColumns = []string{
	"stripe_customer_id",
	"customer_email",
	"status",
	"amount",
	"currency",
	"interval",
	"current_period_end",
	"designation",
	"synced_at",
	"updated_at",
}

// Repository persists reconciled donation data and reads the lookup tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	PromoteChargeKeys(ctx context.Context, mode enums.StripeMode, rows []models.DonationStripeTransaction) error
	UpsertTransactions(ctx context.Context, rows []models.DonationStripeTransaction) (int, error)
	UpsertActiveSubscriptions(ctx context.Context, rows []models.ActiveSubscription) error
	MarkSyncStarted(ctx context.Context, email string, mode enums.StripeMode, at time.Time) error
	MarkSyncFinished(ctx context.Context, status models.DonationSyncStatus) error
	ListSponsorships(ctx context.Context, mode enums.StripeMode) ([]models.Sponsorship, error)
	ListDonations(ctx context.Context, mode enums.StripeMode) ([]models.Donation, error)
	ListReceipts(ctx context.Context) ([]models.SponsorshipReceipt, error)
	MarketplacePaymentIntents(ctx context.Context) (map[string]struct{}, error)
	DistinctDonorEmails(ctx context.Context, mode enums.StripeMode, limit int) ([]string, error)
	ListTransactions(ctx context.Context, params TransactionQuery) ([]models.DonationStripeTransaction, *pagination.Cursor, error)
	TransactionsInWindow(ctx context.Context, email string, mode enums.StripeMode, since, until time.Time) ([]models.DonationStripeTransaction, error)
	ListSyncStatuses(ctx context.Context, mode enums.StripeMode, limit int) ([]models.DonationSyncStatus, error)
}

// TransactionQuery configures transaction list queries.
type TransactionQuery struct {
	Email  string
	Mode   enums.StripeMode
	Limit  int
	Cursor *pagination.Cursor
}

type repository struct {
	db        *gorm.DB
	chunkSize int
}

// NewRepository returns a donations repository bound to the provided database.
func NewRepository(db *gorm.DB, chunkSize int) Repository {
	if chunkSize <= 0 {
		chunkSize = defaultUpsertChunk
	}
	return &repository{db: db, chunkSize: chunkSize}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx, chunkSize: r.chunkSize}
}

// PromoteChargeKeys moves rows first stored under a charge id onto the invoice
// id that now covers them. If both rows exist the charge-keyed one is stale and
// is removed so the upsert that follows lands on a single row.
func (r *repository) PromoteChargeKeys(ctx context.Context, mode enums.StripeMode, rows []models.DonationStripeTransaction) error {
	invoiceByCharge := map[string]string{}
	for _, row := range rows {
		if row.StripeInvoiceID == nil || row.StripeChargeID == nil {
			continue
		}
		if *row.StripeChargeID == row.ExternalKey {
			continue
		}
		invoiceByCharge[*row.StripeChargeID] = row.ExternalKey
	}
	if len(invoiceByCharge) == 0 {
		return nil
	}

	chargeIDs := make([]string, 0, len(invoiceByCharge))
	invoiceIDs := make([]string, 0, len(invoiceByCharge))
	for ch, inv := range invoiceByCharge {
		chargeIDs = append(chargeIDs, ch)
		invoiceIDs = append(invoiceIDs, inv)
	}

	db := r.db.WithContext(ctx)
	var staleKeys []string
	if err := db.Model(&models.DonationStripeTransaction{}).
		Where("stripe_mode = ? AND external_key IN ?", mode, chargeIDs).
		Pluck("external_key", &staleKeys).Error; err != nil {
		return err
	}
	if len(staleKeys) == 0 {
		return nil
	}

	var existingInvoices []string
	if err := db.Model(&models.DonationStripeTransaction{}).
		Where("stripe_mode = ? AND external_key IN ?", mode, invoiceIDs).
		Pluck("external_key", &existingInvoices).Error; err != nil {
		return err
	}
	haveInvoice := make(map[string]bool, len(existingInvoices))
	for _, key := range existingInvoices {
		haveInvoice[key] = true
	}

	for _, chargeKey := range staleKeys {
		invoiceKey := invoiceByCharge[chargeKey]
		scope := db.Model(&models.DonationStripeTransaction{}).
			Where("stripe_mode = ? AND external_key = ?", mode, chargeKey)
		if haveInvoice[invoiceKey] {
			if err := scope.Delete(&models.DonationStripeTransaction{}).Error; err != nil {
				return err
			}
			continue
		}
		if err := scope.Update("external_key", invoiceKey).Error; err != nil {
			return err
		}
	}
	return nil
}

// UpsertTransactions writes rows with one INSERT ... ON CONFLICT per chunk.
func (r *repository) UpsertTransactions(ctx context.Context, rows []models.DonationStripeTransaction) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_key"}, {Name: "stripe_mode"}},
			DoUpdates: clause.AssignmentColumns(transactionUpdateColumns),
		}).
		CreateInBatches(&rows, r.chunkSize).Error
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}

func (r *repository) UpsertActiveSubscriptions(ctx context.Context, rows []models.ActiveSubscription) error {
	if len(rows) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "stripe_subscription_id"}, {Name: "stripe_mode"}},
			DoUpdates: clause.AssignmentColumns(subscriptionUpdateColumns),
		}).
		CreateInBatches(&rows, r.chunkSize).Error
}

// MarkSyncStarted flips the status row to running and clears the last error.
func (r *repository) MarkSyncStarted(ctx context.Context, email string, mode enums.StripeMode, at time.Time) error {
	row := models.DonationSyncStatus{
		ID:            uuid.New(),
		Email:         email,
		StripeMode:    mode,
		Status:        enums.SyncStatusRunning,
		LastStartedAt: &at,
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}, {Name: "stripe_mode"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "last_started_at", "updated_at"}),
		}).
		Create(&row).Error
}

// MarkSyncFinished records the outcome of a sync attempt.
func (r *repository) MarkSyncFinished(ctx context.Context, status models.DonationSyncStatus) error {
	if status.ID == uuid.Nil {
		status.ID = uuid.New()
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "email"}, {Name: "stripe_mode"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "error_message", "transactions_synced", "last_finished_at", "updated_at"}),
		}).
		Create(&status).Error
}

func (r *repository) ListSponsorships(ctx context.Context, mode enums.StripeMode) ([]models.Sponsorship, error) {
	var rows []models.Sponsorship
	if err := r.db.WithContext(ctx).
		Where("stripe_mode = ?", mode).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListDonations(ctx context.Context, mode enums.StripeMode) ([]models.Donation, error) {
	var rows []models.Donation
	if err := r.db.WithContext(ctx).
		Where("stripe_mode = ?", mode).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListReceipts(ctx context.Context) ([]models.SponsorshipReceipt, error) {
	var rows []models.SponsorshipReceipt
	if err := r.db.WithContext(ctx).
		Order("issued_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// MarketplacePaymentIntents returns the payment intents that paid for store orders.
func (r *repository) MarketplacePaymentIntents(ctx context.Context) (map[string]struct{}, error) {
	var ids []string
	if err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("stripe_payment_intent_id IS NOT NULL AND stripe_payment_intent_id <> ''").
		Distinct().
		Pluck("stripe_payment_intent_id", &ids).Error; err != nil {
		return nil, err
	}
	out := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// DistinctDonorEmails lists every donor and sponsor email known for the mode.
func (r *repository) DistinctDonorEmails(ctx context.Context, mode enums.StripeMode, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}
	var emails []string
	err := r.db.WithContext(ctx).Raw(`
SELECT DISTINCT lower(trim(e.email)) AS email
FROM (
  SELECT donor_email AS email FROM donations WHERE stripe_mode = ?
  UNION
  SELECT sponsor_email AS email FROM sponsorships WHERE stripe_mode = ?
) AS e
WHERE trim(e.email) <> ''
ORDER BY email
LIMIT ?`, mode, mode, limit).Scan(&emails).Error
	if err != nil {
		return nil, err
	}
	return emails, nil
}

func (r *repository) ListTransactions(ctx context.Context, params TransactionQuery) ([]models.DonationStripeTransaction, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	query := r.db.WithContext(ctx).
		Model(&models.DonationStripeTransaction{}).
		Where("stripe_mode = ?", params.Mode)
	if email := normalizeEmail(params.Email); email != "" {
		query = query.Where("customer_email = ?", email)
	}
	if params.Cursor != nil {
		query = query.Where("(transaction_created_at, id) < (?, ?)", params.Cursor.At, params.Cursor.ID)
	}

	var rows []models.DonationStripeTransaction
	if err := query.Order("transaction_created_at DESC, id DESC").Limit(pagination.FetchSize(limit)).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	rows, more := pagination.Trim(rows, limit)
	if !more {
		return rows, nil, nil
	}
	last := rows[len(rows)-1]
	return rows, pagination.After(last.TransactionCreatedAt, last.ID), nil
}

func (r *repository) TransactionsInWindow(ctx context.Context, email string, mode enums.StripeMode, since, until time.Time) ([]models.DonationStripeTransaction, error) {
	var rows []models.DonationStripeTransaction
	if err := r.db.WithContext(ctx).
		Where("customer_email = ? AND stripe_mode = ?", normalizeEmail(email), mode).
		Where("transaction_created_at >= ? AND transaction_created_at < ?", since.UTC(), until.UTC()).
		Order("transaction_created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListSyncStatuses(ctx context.Context, mode enums.StripeMode, limit int) ([]models.DonationSyncStatus, error) {
	limit = pagination.NormalizeLimit(limit)
	query := r.db.WithContext(ctx).Model(&models.DonationSyncStatus{})
	if strings.TrimSpace(string(mode)) != "" {
		query = query.Where("stripe_mode = ?", mode)
	}
	var rows []models.DonationSyncStatus
	if err := query.Order("updated_at DESC, email ASC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
