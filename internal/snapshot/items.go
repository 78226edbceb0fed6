package snapshot

import (
	"strings"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const (
	itemTypeDB = "db"

	reasonOrderMetadata = "order_id_metadata"
	reasonMarketplace   = "marketplace_payment_intent"
)

func stripeItems(bundle pkgstripe.Bundle, marketplace map[string]struct{}) []Item {
	var out []Item
	for _, inv := range bundle.Invoices {
		out = append(out, withExclusion(Item{
			Type:            string(enums.SourceTypeInvoice),
			ID:              inv.ID,
			Status:          inv.Status,
			AmountCents:     inv.AmountPaid,
			Currency:        strings.ToUpper(inv.Currency),
			Created:         inv.Created,
			CustomerID:      inv.CustomerID,
			InvoiceID:       inv.ID,
			ChargeID:        inv.ChargeID,
			PaymentIntentID: inv.PaymentIntentID,
			Metadata:        inv.Metadata,
		}, marketplace))
	}
	for _, ch := range bundle.Charges {
		out = append(out, withExclusion(Item{
			Type:            string(enums.SourceTypeCharge),
			ID:              ch.ID,
			Status:          ch.Status,
			AmountCents:     ch.Amount,
			Currency:        strings.ToUpper(ch.Currency),
			Created:         ch.Created,
			CustomerID:      ch.CustomerID,
			ChargeID:        ch.ID,
			PaymentIntentID: ch.PaymentIntentID,
			Metadata:        ch.Metadata,
		}, marketplace))
	}
	for _, pi := range bundle.PaymentIntents {
		out = append(out, withExclusion(Item{
			Type:            string(enums.SourceTypePaymentIntent),
			ID:              pi.ID,
			Status:          pi.Status,
			AmountCents:     pi.Amount,
			Currency:        strings.ToUpper(pi.Currency),
			Created:         pi.Created,
			CustomerID:      pi.CustomerID,
			ChargeID:        pi.LatestChargeID,
			PaymentIntentID: pi.ID,
			Metadata:        pi.Metadata,
		}, marketplace))
	}
	for _, s := range bundle.CheckoutSessions {
		out = append(out, withExclusion(Item{
			Type:            string(enums.SourceTypeCheckoutSession),
			ID:              s.ID,
			Status:          s.Status,
			AmountCents:     s.AmountTotal,
			Currency:        strings.ToUpper(s.Currency),
			Created:         s.Created,
			CustomerID:      s.CustomerID,
			InvoiceID:       s.InvoiceID,
			PaymentIntentID: s.PaymentIntentID,
			Metadata:        s.Metadata,
		}, marketplace))
	}
	return out
}

func withExclusion(it Item, marketplace map[string]struct{}) Item {
	it.Key = it.Type + ":" + it.ID
	it.OrderID = strings.TrimSpace(it.Metadata["order_id"])
	switch {
	case it.OrderID != "":
		it.Excluded = true
		it.ExclusionReason = reasonOrderMetadata
	case it.PaymentIntentID != "":
		if _, ok := marketplace[it.PaymentIntentID]; ok {
			it.Excluded = true
			it.ExclusionReason = reasonMarketplace
		}
	}
	return it
}

func rowItems(rows []models.DonationStripeTransaction) []Item {
	out := make([]Item, 0, len(rows))
	for _, row := range rows {
		meta := make(map[string]string, len(row.Metadata))
		for k, v := range row.Metadata {
			if s, ok := v.(string); ok {
				meta[k] = s
			}
		}
		out = append(out, Item{
			Key:             rowKey(row),
			Type:            itemTypeDB,
			ID:              row.ID.String(),
			Status:          string(row.Status),
			AmountCents:     row.Amount.Shift(2).IntPart(),
			Currency:        row.Currency,
			Created:         row.TransactionCreatedAt,
			CustomerID:      value(row.StripeCustomerID),
			InvoiceID:       value(row.StripeInvoiceID),
			ChargeID:        value(row.StripeChargeID),
			PaymentIntentID: value(row.StripePaymentIntentID),
			OrderID:         strings.TrimSpace(meta["order_id"]),
			Metadata:        meta,
		})
	}
	return out
}

func rowKey(row models.DonationStripeTransaction) string {
	return itemTypeDB + ":" + row.ID.String()
}

func value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
