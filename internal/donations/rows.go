package donations

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

func toRow(rec Transaction, syncedAt time.Time) models.DonationStripeTransaction {
	meta := datatypes.JSONMap{}
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	return models.DonationStripeTransaction{
		ID:                      uuid.New(),
		ExternalKey:             rec.ExternalKey(),
		StripeMode:              rec.Mode,
		StripeInvoiceID:         optional(rec.InvoiceID),
		StripeChargeID:          optional(rec.ChargeID),
		StripePaymentIntentID:   optional(rec.PaymentIntentID),
		StripeSubscriptionID:    optional(rec.SubscriptionID),
		StripeCustomerID:        optional(rec.CustomerID),
		StripeCheckoutSessionID: optional(rec.CheckoutSessionID),
		CustomerEmail:           rec.CustomerEmail,
		SourceType:              rec.SourceType,
		Amount:                  rec.Amount(),
		Currency:                rec.Currency,
		Status:                  rec.Status(),
		RefundedAmount:          rec.RefundedAmount(),
		TransactionCreatedAt:    rec.Created.UTC(),
		Designation:             rec.Designation.Label(),
		DesignationKind:         rec.Designation.Kind,
		SponsorshipID:           rec.Designation.SponsorshipID,
		Metadata:                meta,
		DonationID:              rec.DonationID,
		ReceiptID:               rec.ReceiptID,
		SyncedAt:                syncedAt,
	}
}

// activeSubscriptions maps every listed subscription to a cache row, whatever
// its status, so cancellations overwrite the cached state.
func activeSubscriptions(bundle pkgstripe.Bundle, mode enums.StripeMode, designations DesignationMap, fallbackEmail string, syncedAt time.Time) []models.ActiveSubscription {
	emails := map[string]string{}
	for _, c := range bundle.Customers {
		emails[c.ID] = normalizeEmail(c.Email)
	}
	out := make([]models.ActiveSubscription, 0, len(bundle.Subscriptions))
	for _, sub := range bundle.Subscriptions {
		if sub.ID == "" {
			continue
		}
		email := emails[sub.CustomerID]
		if email == "" {
			email = normalizeEmail(fallbackEmail)
		}
		status, err := enums.ParseSubscriptionStatus(sub.Status)
		if err != nil {
			// keep states newer than this build rather than dropping the row
			status = enums.SubscriptionStatus(strings.ToLower(sub.Status))
		}
		currency := strings.ToUpper(sub.Currency)
		if currency == "" {
			currency = defaultCurrency
		}
		out = append(out, models.ActiveSubscription{
			ID:                   uuid.New(),
			StripeSubscriptionID: sub.ID,
			StripeMode:           mode,
			StripeCustomerID:     sub.CustomerID,
			CustomerEmail:        email,
			Status:               status,
			Amount:               decimal.New(sub.Amount, -2),
			Currency:             currency,
			Interval:             sub.Interval,
			CurrentPeriodEnd:     sub.CurrentPeriodEnd,
			Designation:          designations.Resolve(sub.ID, sub.CustomerID, sub.Metadata).Label(),
			SyncedAt:             syncedAt,
		})
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
