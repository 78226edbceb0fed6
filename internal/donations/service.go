package donations

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/donation-ledger/pkg/db"
	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	"github.com/angelmondragon/donation-ledger/pkg/metrics"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const (
	defaultLookbackDays = 365
	defaultBatchLimit   = 500
	maxErrorMessage     = 1000
)

// Provider is the slice of the Stripe client the sync needs.
type Provider interface {
	FindCustomers(ctx context.Context, email string) ([]pkgstripe.Customer, error)
	FetchBundle(ctx context.Context, customers []pkgstripe.Customer, w pkgstripe.Window) (pkgstripe.Bundle, error)
}

// ProviderFunc returns the Stripe provider configured for a mode.
type ProviderFunc func(mode enums.StripeMode) (Provider, error)

// StripeProviders adapts the per-mode client set.
func StripeProviders(clients *pkgstripe.Clients) ProviderFunc {
	return func(mode enums.StripeMode) (Provider, error) {
		client, err := clients.ForMode(mode)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams groups dependencies for the donation sync service.
type ServiceParams struct {
	Repo         Repository
	Tx           txRunner
	Providers    ProviderFunc
	Logger       *logger.Logger
	Metrics      *metrics.SyncMetrics
	LookbackDays int
	BatchLimit   int
	Now          func() time.Time
}

// Service syncs Stripe payment history into donation_stripe_transactions.
type Service struct {
	repo       Repository
	tx         txRunner
	providers  ProviderFunc
	logg       *logger.Logger
	metrics    *metrics.SyncMetrics
	lookback   time.Duration
	batchLimit int
	now        func() time.Time
}

// NewService builds a donation sync service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Tx == nil {
		return nil, errors.New("transaction runner is required")
	}
	if params.Providers == nil {
		return nil, errors.New("stripe providers are required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	lookbackDays := params.LookbackDays
	if lookbackDays <= 0 {
		lookbackDays = defaultLookbackDays
	}
	batchLimit := params.BatchLimit
	if batchLimit <= 0 {
		batchLimit = defaultBatchLimit
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:       params.Repo,
		tx:         params.Tx,
		providers:  params.Providers,
		logg:       params.Logger,
		metrics:    params.Metrics,
		lookback:   time.Duration(lookbackDays) * 24 * time.Hour,
		batchLimit: batchLimit,
		now:        now,
	}, nil
}

// SyncRequest selects one donor's history.
type SyncRequest struct {
	Email string
	Mode  enums.StripeMode
	Since *time.Time
	Until *time.Time
}

// SyncResult summarises one donor sync.
type SyncResult struct {
	Email                string           `json:"email"`
	Mode                 enums.StripeMode `json:"stripe_mode"`
	CustomersFound       int              `json:"customers_found"`
	TransactionsSynced   int              `json:"transactions_synced"`
	SubscriptionsSynced  int              `json:"subscriptions_synced"`
	SubscriptionsBilling int              `json:"subscriptions_billing"`
	WindowStart          time.Time        `json:"window_start"`
	WindowEnd            time.Time        `json:"window_end"`
	SyncedAt             time.Time        `json:"synced_at"`
}

// SyncCustomer pulls one donor's Stripe history and upserts the merged rows.
func (s *Service) SyncCustomer(ctx context.Context, req SyncRequest) (*SyncResult, error) {
	email := normalizeEmail(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	if !req.Mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe_mode must be test or live")
	}
	window, err := s.window(req.Since, req.Until)
	if err != nil {
		return nil, err
	}

	ctx = s.logg.WithEmail(s.logg.WithStripeMode(ctx, req.Mode.String()), email)
	started := s.now().UTC()
	if err := s.repo.MarkSyncStarted(ctx, email, req.Mode, started); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record sync start")
	}

	result, syncErr := s.syncCustomer(ctx, email, req.Mode, window)
	finished := s.now().UTC()

	status := models.DonationSyncStatus{
		Email:          email,
		StripeMode:     req.Mode,
		Status:         enums.SyncStatusSucceeded,
		LastFinishedAt: &finished,
	}
	if syncErr != nil {
		msg := truncate(pkgerrors.Describe(syncErr), maxErrorMessage)
		status.Status = enums.SyncStatusFailed
		status.ErrorMessage = &msg
	} else {
		status.TransactionsSynced = result.TransactionsSynced
	}
	if err := s.repo.MarkSyncFinished(ctx, status); err != nil {
		s.logg.Error(ctx, "failed to record sync status", err)
	}

	s.metrics.ObserveUser(req.Mode.String(), syncErr)
	if syncErr != nil {
		return nil, syncErr
	}
	s.metrics.AddTransactions(req.Mode.String(), result.TransactionsSynced)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"customers":     result.CustomersFound,
		"transactions":  result.TransactionsSynced,
		"subscriptions": result.SubscriptionsSynced,
		"billing":       result.SubscriptionsBilling,
	}), "donation history synced")
	return result, nil
}

func (s *Service) syncCustomer(ctx context.Context, email string, mode enums.StripeMode, window pkgstripe.Window) (*SyncResult, error) {
	provider, err := s.providers(mode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe client unavailable")
	}

	syncedAt := s.now().UTC()
	result := &SyncResult{
		Email:       email,
		Mode:        mode,
		WindowStart: window.Since,
		WindowEnd:   window.Until,
		SyncedAt:    syncedAt,
	}

	customers, err := provider.FindCustomers(ctx, email)
	if err != nil {
		return nil, err
	}
	result.CustomersFound = len(customers)
	if len(customers) == 0 {
		return result, nil
	}

	bundle, err := provider.FetchBundle(ctx, customers, window)
	if err != nil {
		return nil, err
	}

	inputs, err := s.loadInputs(ctx, mode, email)
	if err != nil {
		return nil, err
	}

	records := Merge(bundle, inputs)
	rows := make([]models.DonationStripeTransaction, 0, len(records))
	for _, rec := range records {
		rows = append(rows, toRow(rec, syncedAt))
	}
	subs := activeSubscriptions(bundle, mode, inputs.Designations, email, syncedAt)

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.PromoteChargeKeys(ctx, mode, rows); err != nil {
			return fmt.Errorf("promote charge keys: %w", err)
		}
		n, err := repo.UpsertTransactions(ctx, rows)
		if err != nil {
			return fmt.Errorf("upsert transactions: %w", err)
		}
		result.TransactionsSynced = n
		if err := repo.UpsertActiveSubscriptions(ctx, subs); err != nil {
			return fmt.Errorf("upsert subscriptions: %w", err)
		}
		result.SubscriptionsSynced = len(subs)
		for _, sub := range subs {
			if sub.Status.IsCurrent() {
				result.SubscriptionsBilling++
			}
		}
		return nil
	})
	if db.IsUniqueViolation(err, "") || db.IsRetryableTx(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "donation history changed during sync; retry")
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist donation history")
	}
	return result, nil
}

// loadInputs reads the per-run lookup tables. Nothing here outlives the call.
func (s *Service) loadInputs(ctx context.Context, mode enums.StripeMode, email string) (MergeInputs, error) {
	sponsorships, err := s.repo.ListSponsorships(ctx, mode)
	if err != nil {
		return MergeInputs{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load sponsorships")
	}
	donationRows, err := s.repo.ListDonations(ctx, mode)
	if err != nil {
		return MergeInputs{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load donations")
	}
	receipts, err := s.repo.ListReceipts(ctx)
	if err != nil {
		return MergeInputs{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load receipts")
	}
	excluded, err := s.repo.MarketplacePaymentIntents(ctx)
	if err != nil {
		return MergeInputs{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load marketplace payment intents")
	}
	return MergeInputs{
		Mode:                   mode,
		ExcludedPaymentIntents: excluded,
		Designations:           NewDesignationMap(sponsorships),
		Links:                  NewLinkIndex(donationRows, receipts),
		FallbackEmail:          email,
	}, nil
}

func (s *Service) window(since, until *time.Time) (pkgstripe.Window, error) {
	end := s.now().UTC()
	if until != nil && !until.IsZero() {
		end = until.UTC()
	}
	start := end.Add(-s.lookback)
	if since != nil && !since.IsZero() {
		start = since.UTC()
	}
	if !start.Before(end) {
		return pkgstripe.Window{}, pkgerrors.New(pkgerrors.CodeValidation, "since must be before until")
	}
	return pkgstripe.Window{Since: start, Until: end}, nil
}

// BatchRequest selects the donors for a batch run. Empty Emails means every
// known donor and sponsor for the mode.
type BatchRequest struct {
	Emails []string
	Mode   enums.StripeMode
	Since  *time.Time
	Until  *time.Time
}

// UserOutcome is one donor's result inside a batch.
type UserOutcome struct {
	Email              string `json:"email"`
	Succeeded          bool   `json:"succeeded"`
	TransactionsSynced int    `json:"transactions_synced"`
	Error              string `json:"error,omitempty"`
}

// BatchResult summarises a batch run.
type BatchResult struct {
	Mode               enums.StripeMode `json:"stripe_mode"`
	Users              []UserOutcome    `json:"users"`
	Succeeded          int              `json:"succeeded"`
	Failed             int              `json:"failed"`
	TransactionsSynced int              `json:"transactions_synced"`
}

// SyncBatch syncs donors one after another. A failure for one donor is
// recorded and the loop moves on; the returned error only aggregates them.
func (s *Service) SyncBatch(ctx context.Context, req BatchRequest) (*BatchResult, error) {
	if !req.Mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe_mode must be test or live")
	}
	emails, err := s.batchEmails(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &BatchResult{Mode: req.Mode, Users: make([]UserOutcome, 0, len(emails))}
	var errs error
	for _, email := range emails {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		res, err := s.SyncCustomer(ctx, SyncRequest{Email: email, Mode: req.Mode, Since: req.Since, Until: req.Until})
		if err != nil {
			result.Failed++
			result.Users = append(result.Users, UserOutcome{Email: email, Error: pkgerrors.Describe(err)})
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", email, err))
			s.logg.Error(s.logg.WithEmail(ctx, email), "donor sync failed", err)
			continue
		}
		result.Succeeded++
		result.TransactionsSynced += res.TransactionsSynced
		result.Users = append(result.Users, UserOutcome{Email: email, Succeeded: true, TransactionsSynced: res.TransactionsSynced})
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"stripe_mode":  req.Mode.String(),
		"succeeded":    result.Succeeded,
		"failed":       result.Failed,
		"transactions": result.TransactionsSynced,
	}), "donation batch sync finished")
	return result, errs
}

func (s *Service) batchEmails(ctx context.Context, req BatchRequest) ([]string, error) {
	if len(req.Emails) == 0 {
		emails, err := s.repo.DistinctDonorEmails(ctx, req.Mode, s.batchLimit)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list donor emails")
		}
		return emails, nil
	}
	seen := make(map[string]bool, len(req.Emails))
	out := make([]string, 0, len(req.Emails))
	for _, e := range req.Emails {
		email := normalizeEmail(e)
		if email == "" || seen[email] {
			continue
		}
		seen[email] = true
		out = append(out, email)
	}
	return out, nil
}

// truncate caps s at n bytes without splitting a rune. Postgres rejects
// invalid UTF-8 in text columns.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
