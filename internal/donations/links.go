package donations

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
)

// heuristicWindow is how far apart a donation row and a Stripe payment may be
// created and still be matched by customer and amount.
const heuristicWindow = 48 * time.Hour

type donationRef struct {
	id      uuid.UUID
	cents   int64
	created time.Time
}

// LinkIndex maps Stripe ids to existing donation and receipt rows. It is built
// once per sync run from all rows and consumed by Link.
type LinkIndex struct {
	byPaymentIntent map[string]uuid.UUID
	byCharge        map[string]uuid.UUID
	byInvoice       map[string]uuid.UUID
	bySession       map[string]uuid.UUID
	byCustomer      map[string][]donationRef

	receiptsByInvoice map[string]uuid.UUID
	receiptsByCharge  map[string]uuid.UUID
}

// NewLinkIndex indexes donations and receipts by every Stripe id they carry.
func NewLinkIndex(donations []models.Donation, receipts []models.SponsorshipReceipt) *LinkIndex {
	ix := &LinkIndex{
		byPaymentIntent:   map[string]uuid.UUID{},
		byCharge:          map[string]uuid.UUID{},
		byInvoice:         map[string]uuid.UUID{},
		bySession:         map[string]uuid.UUID{},
		byCustomer:        map[string][]donationRef{},
		receiptsByInvoice: map[string]uuid.UUID{},
		receiptsByCharge:  map[string]uuid.UUID{},
	}
	for _, d := range donations {
		putFirst(ix.byPaymentIntent, deref(d.StripePaymentIntentID), d.ID)
		putFirst(ix.byCharge, deref(d.StripeChargeID), d.ID)
		putFirst(ix.byInvoice, deref(d.StripeInvoiceID), d.ID)
		putFirst(ix.bySession, deref(d.StripeCheckoutSessionID), d.ID)
		if cust := deref(d.StripeCustomerID); cust != "" {
			ix.byCustomer[cust] = append(ix.byCustomer[cust], donationRef{id: d.ID, cents: d.AmountCents, created: d.CreatedAt})
		}
	}
	for _, r := range receipts {
		putFirst(ix.receiptsByInvoice, deref(r.StripeInvoiceID), r.ID)
		putFirst(ix.receiptsByCharge, deref(r.StripeChargeID), r.ID)
	}
	return ix
}

// Link fills DonationID and ReceiptID. Exact id matches are applied to every
// record before the customer+amount heuristic runs, so a heuristic guess never
// takes a donation that another record matches exactly.
func (ix *LinkIndex) Link(records []Transaction) {
	if ix == nil {
		return
	}
	claimed := map[uuid.UUID]bool{}

	for i := range records {
		rec := &records[i]
		if id, ok := ix.exactDonation(*rec); ok && !claimed[id] {
			rec.DonationID = &id
			claimed[id] = true
		}
		if id, ok := ix.receipt(*rec); ok {
			rec.ReceiptID = &id
		}
	}

	for i := range records {
		rec := &records[i]
		if rec.DonationID != nil || rec.CustomerID == "" {
			continue
		}
		if id, ok := ix.closestDonation(*rec, claimed); ok {
			rec.DonationID = &id
			claimed[id] = true
		}
	}
}

func (ix *LinkIndex) exactDonation(rec Transaction) (uuid.UUID, bool) {
	lookups := []struct {
		index map[string]uuid.UUID
		key   string
	}{
		{ix.byPaymentIntent, rec.PaymentIntentID},
		{ix.byCharge, rec.ChargeID},
		{ix.byInvoice, rec.InvoiceID},
		{ix.bySession, rec.CheckoutSessionID},
	}
	for _, l := range lookups {
		if l.key == "" {
			continue
		}
		if id, ok := l.index[l.key]; ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (ix *LinkIndex) receipt(rec Transaction) (uuid.UUID, bool) {
	if rec.InvoiceID != "" {
		if id, ok := ix.receiptsByInvoice[rec.InvoiceID]; ok {
			return id, true
		}
	}
	if rec.ChargeID != "" {
		if id, ok := ix.receiptsByCharge[rec.ChargeID]; ok {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (ix *LinkIndex) closestDonation(rec Transaction, claimed map[uuid.UUID]bool) (uuid.UUID, bool) {
	var candidates []donationRef
	for _, ref := range ix.byCustomer[rec.CustomerID] {
		if claimed[ref.id] || ref.cents != rec.AmountCents {
			continue
		}
		if absDuration(ref.created.Sub(rec.Created)) > heuristicWindow {
			continue
		}
		candidates = append(candidates, ref)
	}
	if len(candidates) == 0 {
		return uuid.Nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		di := absDuration(candidates[i].created.Sub(rec.Created))
		dj := absDuration(candidates[j].created.Sub(rec.Created))
		if di != dj {
			return di < dj
		}
		return candidates[i].id.String() < candidates[j].id.String()
	})
	return candidates[0].id, true
}

func putFirst(index map[string]uuid.UUID, key string, id uuid.UUID) {
	if key == "" {
		return
	}
	if _, exists := index[key]; !exists {
		index[key] = id
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
