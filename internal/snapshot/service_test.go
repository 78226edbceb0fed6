package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

type stubReader struct {
	rows        []models.DonationStripeTransaction
	marketplace map[string]struct{}
	since       time.Time
	until       time.Time
}

func (r *stubReader) TransactionsInWindow(ctx context.Context, email string, mode enums.StripeMode, since, until time.Time) ([]models.DonationStripeTransaction, error) {
	r.since, r.until = since, until
	return r.rows, nil
}

func (r *stubReader) MarketplacePaymentIntents(ctx context.Context) (map[string]struct{}, error) {
	return r.marketplace, nil
}

type stubProvider struct {
	bundle pkgstripe.Bundle
	window pkgstripe.Window
}

func (p *stubProvider) FindCustomers(ctx context.Context, email string) ([]pkgstripe.Customer, error) {
	return p.bundle.Customers, nil
}

func (p *stubProvider) FetchBundle(ctx context.Context, customers []pkgstripe.Customer, w pkgstripe.Window) (pkgstripe.Bundle, error) {
	p.window = w
	return p.bundle, nil
}

func newSnapshotService(t *testing.T, reader Reader, provider *stubProvider) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Reader:    reader,
		Providers: func(enums.StripeMode) (donations.Provider, error) { return provider, nil },
		Logger:    logger.Nop(),
	})
	require.NoError(t, err)
	return svc
}

func TestDayWindowUsesTimezone(t *testing.T) {
	since, until, err := DayWindow("2026-03-10", "America/Chicago")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 10, 5, 0, 0, 0, time.UTC), since)
	assert.Equal(t, time.Date(2026, 3, 11, 5, 0, 0, 0, time.UTC), until)

	_, _, err = DayWindow("03/10/2026", "UTC")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, _, err = DayWindow("2026-03-10", "Mars/Olympus")
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestBuildClustersAndMapsRows(t *testing.T) {
	day := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	provider := &stubProvider{bundle: pkgstripe.Bundle{
		Customers: []pkgstripe.Customer{{ID: "cus_1", Email: "ana@example.org"}},
		Charges: []pkgstripe.Charge{
			{ID: "ch_a", CustomerID: "cus_1", PaymentIntentID: "pi_1", Status: "succeeded", Amount: 1000, Currency: "usd", Created: day},
			{ID: "ch_store", CustomerID: "cus_1", PaymentIntentID: "pi_store", Status: "succeeded", Amount: 4500, Currency: "usd", Created: day},
			{ID: "ch_order", CustomerID: "cus_1", Status: "succeeded", Amount: 900, Created: day, Metadata: map[string]string{"order_id": "ord_1"}},
		},
		PaymentIntents: []pkgstripe.PaymentIntent{
			{ID: "pi_1", CustomerID: "cus_1", LatestChargeID: "ch_a", Status: "succeeded", Amount: 1000, Created: day},
		},
		Invoices: []pkgstripe.Invoice{
			{ID: "in_1", CustomerID: "cus_1", PaymentIntentID: "pi_1", Status: "paid", AmountPaid: 1000, Created: day},
		},
	}}
	chargeID, intentID, invoiceID := "ch_a", "pi_1", "in_1"
	row := models.DonationStripeTransaction{
		ID:                    uuid.New(),
		ExternalKey:           "in_1",
		StripeMode:            enums.StripeModeLive,
		StripeChargeID:        &chargeID,
		StripePaymentIntentID: &intentID,
		StripeInvoiceID:       &invoiceID,
		Amount:                decimal.New(1000, -2),
		Currency:              "USD",
		Status:                enums.TransactionStatusSucceeded,
		Designation:           "General Support",
		TransactionCreatedAt:  day,
	}
	reader := &stubReader{rows: []models.DonationStripeTransaction{row}, marketplace: map[string]struct{}{"pi_store": {}}}
	svc := newSnapshotService(t, reader, provider)

	snap, err := svc.Build(context.Background(), Request{Email: "Ana@Example.org", Date: "2026-03-10", Mode: enums.StripeModeLive})
	require.NoError(t, err)

	assert.Equal(t, "UTC", snap.Timezone)
	assert.Equal(t, []string{"cus_1"}, snap.Customers)
	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), provider.window.Since)
	assert.Equal(t, reader.until, provider.window.Until)

	dbKey := "db:" + row.ID.String()
	require.Len(t, snap.Clusters, 1)
	assert.ElementsMatch(t, []string{"charge:ch_a", "payment_intent:pi_1", "invoice:in_1", dbKey}, snap.Clusters[0])

	require.Len(t, snap.Mapping, 1)
	assert.Equal(t, "10.00", snap.Mapping[0].Amount)
	assert.ElementsMatch(t, []string{"charge:ch_a", "payment_intent:pi_1", "invoice:in_1"}, snap.Mapping[0].StripeItems)

	reasons := map[string]string{}
	for _, it := range snap.Items {
		reasons[it.Key] = it.ExclusionReason
	}
	assert.Equal(t, reasonMarketplace, reasons["charge:ch_store"])
	assert.Equal(t, reasonOrderMetadata, reasons["charge:ch_order"])
	assert.Empty(t, reasons["charge:ch_a"])
}

func TestBuildValidatesRequest(t *testing.T) {
	svc := newSnapshotService(t, &stubReader{}, &stubProvider{})
	_, err := svc.Build(context.Background(), Request{Date: "2026-03-10", Mode: enums.StripeModeLive})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
	_, err = svc.Build(context.Background(), Request{Email: "a@example.org", Date: "2026-03-10", Mode: "prod"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestBuildWithoutCustomersSkipsStripeLists(t *testing.T) {
	provider := &stubProvider{}
	svc := newSnapshotService(t, &stubReader{}, provider)
	snap, err := svc.Build(context.Background(), Request{Email: "a@example.org", Date: "2026-03-10", Mode: enums.StripeModeTest, Timezone: "Europe/Madrid"})
	require.NoError(t, err)
	assert.True(t, provider.window.Since.IsZero())
	assert.Empty(t, snap.Items)
	assert.Empty(t, snap.Clusters)
}
