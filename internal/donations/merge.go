package donations

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const (
	orderIDKey            = "order_id"
	invoiceStatusPaid     = "paid"
	chargeStatusSucceeded = "succeeded"
	intentStatusSucceeded = "succeeded"
	sessionStatusComplete = "complete"
	sessionPaymentPaid    = "paid"
	defaultCurrency       = "USD"
)

// Transaction is one reconciled payment before it is written to the cache table.
type Transaction struct {
	Mode              enums.StripeMode
	SourceType        enums.SourceType
	InvoiceID         string
	ChargeID          string
	PaymentIntentID   string
	SubscriptionID    string
	CustomerID        string
	CheckoutSessionID string
	CustomerEmail     string
	AmountCents       int64
	RefundedCents     int64
	Currency          string
	Created           time.Time
	Designation       Designation
	Metadata          map[string]string
	DonationID        *uuid.UUID
	ReceiptID         *uuid.UUID
}

// ExternalKey is the invoice id when one exists, otherwise the charge id.
func (t Transaction) ExternalKey() string {
	if t.InvoiceID != "" {
		return t.InvoiceID
	}
	return t.ChargeID
}

// Amount converts minor units to major units.
func (t Transaction) Amount() decimal.Decimal {
	return decimal.New(t.AmountCents, -2)
}

// RefundedAmount converts refunded minor units to major units.
func (t Transaction) RefundedAmount() decimal.Decimal {
	return decimal.New(t.RefundedCents, -2)
}

// Status derives the stored status from the refunded amount.
func (t Transaction) Status() enums.TransactionStatus {
	switch {
	case t.RefundedCents <= 0:
		return enums.TransactionStatusSucceeded
	case t.RefundedCents >= t.AmountCents:
		return enums.TransactionStatusRefunded
	default:
		return enums.TransactionStatusPartiallyRefunded
	}
}

// MergeInputs carries the per-run lookups the merger needs. Everything here is
// built fresh for one sync call.
type MergeInputs struct {
	Mode                   enums.StripeMode
	ExcludedPaymentIntents map[string]struct{}
	Designations           DesignationMap
	Links                  *LinkIndex
	FallbackEmail          string
}

type merger struct {
	in     MergeInputs
	bundle pkgstripe.Bundle

	invoices map[string]*pkgstripe.Invoice
	charges  map[string]*pkgstripe.Charge
	intents  map[string]*pkgstripe.PaymentIntent
	emails   map[string]string

	intentToInvoice  map[string]string
	chargeToInvoice  map[string]string
	chargeByIntent   map[string]string
	sessionByIntent  map[string]*pkgstripe.CheckoutSession
	sessionByInvoice map[string]*pkgstripe.CheckoutSession

	coveredCharges map[string]bool
	coveredIntents map[string]bool
	coveredKeys    map[string]bool

	records []Transaction
	byKey   map[string]int
}

// Merge turns one donor's Stripe objects into transaction records.
//
// Invoices are taken first, then charges not covered by an invoice, then
// succeeded payment intents whose charge was not listed. Checkout sessions add
// metadata to those records and only stand alone when nothing else carries
// the payment. Marketplace purchases are dropped: any order_id on the invoice,
// charge or payment intent metadata, or a payment intent in the excluded set.
func Merge(bundle pkgstripe.Bundle, in MergeInputs) []Transaction {
	m := newMerger(bundle, in)
	m.mergeInvoices()
	m.mergeCharges()
	m.mergePaymentIntents()
	m.mergeCheckoutSessions()

	for i := range m.records {
		rec := &m.records[i]
		rec.Designation = in.Designations.Resolve(rec.SubscriptionID, rec.CustomerID, rec.Metadata)
	}
	in.Links.Link(m.records)
	return m.records
}

func newMerger(bundle pkgstripe.Bundle, in MergeInputs) *merger {
	m := &merger{
		in:               in,
		bundle:           bundle,
		invoices:         map[string]*pkgstripe.Invoice{},
		charges:          map[string]*pkgstripe.Charge{},
		intents:          map[string]*pkgstripe.PaymentIntent{},
		emails:           map[string]string{},
		intentToInvoice:  map[string]string{},
		chargeToInvoice:  map[string]string{},
		chargeByIntent:   map[string]string{},
		sessionByIntent:  map[string]*pkgstripe.CheckoutSession{},
		sessionByInvoice: map[string]*pkgstripe.CheckoutSession{},
		coveredCharges:   map[string]bool{},
		coveredIntents:   map[string]bool{},
		coveredKeys:      map[string]bool{},
		byKey:            map[string]int{},
	}
	for _, c := range bundle.Customers {
		if c.Email != "" {
			m.emails[c.ID] = normalizeEmail(c.Email)
		}
	}
	for i := range bundle.Invoices {
		inv := &bundle.Invoices[i]
		m.invoices[inv.ID] = inv
		if inv.PaymentIntentID != "" {
			m.intentToInvoice[inv.PaymentIntentID] = inv.ID
		}
		if inv.ChargeID != "" {
			m.chargeToInvoice[inv.ChargeID] = inv.ID
		}
	}
	for i := range bundle.Charges {
		ch := &bundle.Charges[i]
		m.charges[ch.ID] = ch
		if ch.PaymentIntentID != "" && ch.Status == chargeStatusSucceeded {
			m.chargeByIntent[ch.PaymentIntentID] = ch.ID
		}
	}
	for i := range bundle.PaymentIntents {
		pi := &bundle.PaymentIntents[i]
		m.intents[pi.ID] = pi
		if pi.LatestChargeID != "" {
			if _, ok := m.chargeByIntent[pi.ID]; !ok {
				m.chargeByIntent[pi.ID] = pi.LatestChargeID
			}
		}
	}
	for intentID, invoiceID := range m.intentToInvoice {
		if chargeID := m.chargeByIntent[intentID]; chargeID != "" {
			if _, ok := m.chargeToInvoice[chargeID]; !ok {
				m.chargeToInvoice[chargeID] = invoiceID
			}
		}
	}
	for i := range bundle.CheckoutSessions {
		s := &bundle.CheckoutSessions[i]
		if s.Status != sessionStatusComplete {
			continue
		}
		if s.PaymentIntentID != "" {
			m.sessionByIntent[s.PaymentIntentID] = s
		}
		if s.InvoiceID != "" {
			m.sessionByInvoice[s.InvoiceID] = s
		}
	}
	return m
}

func (m *merger) mergeInvoices() {
	for i := range m.bundle.Invoices {
		inv := &m.bundle.Invoices[i]
		if inv.Status != invoiceStatusPaid || inv.AmountPaid <= 0 {
			continue
		}
		chargeID := m.chargeFor(inv.ChargeID, inv.PaymentIntentID)
		ch := m.charges[chargeID]
		pi := m.intents[inv.PaymentIntentID]
		m.cover(chargeID, inv.PaymentIntentID, inv.ID)
		if m.excluded(inv, ch, pi, inv.PaymentIntentID) {
			continue
		}
		session := m.sessionFor(inv.PaymentIntentID, inv.ID)

		rec := Transaction{
			Mode:            m.in.Mode,
			SourceType:      enums.SourceTypeInvoice,
			InvoiceID:       inv.ID,
			ChargeID:        chargeID,
			PaymentIntentID: inv.PaymentIntentID,
			SubscriptionID:  inv.SubscriptionID,
			CustomerID:      inv.CustomerID,
			AmountCents:     inv.AmountPaid,
			Currency:        inv.Currency,
			Created:         inv.Created,
			Metadata:        mergeMetadata(sessionMetadata(session), intentMetadata(pi), chargeMetadata(ch), inv.Metadata),
		}
		if ch != nil {
			rec.RefundedCents = ch.AmountRefunded
		}
		rec.CustomerEmail = m.email(inv.CustomerID, inv.CustomerEmail, chargeEmail(ch), intentEmail(pi), sessionEmail(session))
		m.attachSession(&rec, session)
		m.add(rec)
	}
}

func (m *merger) mergeCharges() {
	for i := range m.bundle.Charges {
		ch := &m.bundle.Charges[i]
		if ch.Status != chargeStatusSucceeded {
			continue
		}
		if m.coveredCharges[ch.ID] || (ch.PaymentIntentID != "" && m.coveredIntents[ch.PaymentIntentID]) {
			continue
		}
		invoiceID := m.chargeToInvoice[ch.ID]
		if invoiceID == "" && ch.PaymentIntentID != "" {
			invoiceID = m.intentToInvoice[ch.PaymentIntentID]
		}
		inv := m.invoices[invoiceID]
		pi := m.intents[ch.PaymentIntentID]
		m.cover(ch.ID, ch.PaymentIntentID, "")
		if m.excluded(inv, ch, pi, ch.PaymentIntentID) {
			continue
		}
		session := m.sessionFor(ch.PaymentIntentID, invoiceID)

		rec := Transaction{
			Mode:            m.in.Mode,
			SourceType:      enums.SourceTypeCharge,
			InvoiceID:       invoiceID,
			ChargeID:        ch.ID,
			PaymentIntentID: ch.PaymentIntentID,
			CustomerID:      ch.CustomerID,
			AmountCents:     ch.Amount,
			RefundedCents:   ch.AmountRefunded,
			Currency:        ch.Currency,
			Created:         ch.Created,
			Metadata:        mergeMetadata(sessionMetadata(session), intentMetadata(pi), ch.Metadata, invoiceMetadata(inv)),
		}
		if inv != nil {
			rec.SubscriptionID = inv.SubscriptionID
			if rec.CustomerID == "" {
				rec.CustomerID = inv.CustomerID
			}
		}
		rec.CustomerEmail = m.email(rec.CustomerID, ch.Email, invoiceEmail(inv), intentEmail(pi), sessionEmail(session))
		m.attachSession(&rec, session)
		m.add(rec)
	}
}

func (m *merger) mergePaymentIntents() {
	for i := range m.bundle.PaymentIntents {
		pi := &m.bundle.PaymentIntents[i]
		if pi.Status != intentStatusSucceeded || pi.LatestChargeID == "" {
			continue
		}
		if m.coveredIntents[pi.ID] || m.coveredCharges[pi.LatestChargeID] {
			continue
		}
		invoiceID := m.intentToInvoice[pi.ID]
		inv := m.invoices[invoiceID]
		ch := m.charges[pi.LatestChargeID]
		m.cover(pi.LatestChargeID, pi.ID, "")
		if m.excluded(inv, ch, pi, pi.ID) {
			continue
		}
		session := m.sessionFor(pi.ID, invoiceID)

		rec := Transaction{
			Mode:            m.in.Mode,
			SourceType:      enums.SourceTypePaymentIntent,
			InvoiceID:       invoiceID,
			ChargeID:        pi.LatestChargeID,
			PaymentIntentID: pi.ID,
			CustomerID:      pi.CustomerID,
			AmountCents:     pi.Amount,
			Currency:        pi.Currency,
			Created:         pi.Created,
			Metadata:        mergeMetadata(sessionMetadata(session), pi.Metadata, chargeMetadata(ch), invoiceMetadata(inv)),
		}
		if ch != nil {
			rec.RefundedCents = ch.AmountRefunded
		}
		if inv != nil {
			rec.SubscriptionID = inv.SubscriptionID
		}
		rec.CustomerEmail = m.email(pi.CustomerID, pi.ReceiptEmail, chargeEmail(ch), invoiceEmail(inv), sessionEmail(session))
		m.attachSession(&rec, session)
		m.add(rec)
	}
}

// mergeCheckoutSessions only creates a record when a paid session points at an
// invoice or a charge that no other object produced.
func (m *merger) mergeCheckoutSessions() {
	for i := range m.bundle.CheckoutSessions {
		s := &m.bundle.CheckoutSessions[i]
		if s.Status != sessionStatusComplete || s.PaymentStatus != sessionPaymentPaid || s.AmountTotal <= 0 {
			continue
		}
		if m.coveredIntents[s.PaymentIntentID] || m.coveredKeys[s.InvoiceID] {
			continue
		}
		invoiceID := s.InvoiceID
		if invoiceID == "" {
			invoiceID = m.intentToInvoice[s.PaymentIntentID]
		}
		chargeID := m.chargeFor("", s.PaymentIntentID)
		if inv := m.invoices[invoiceID]; inv != nil {
			chargeID = m.chargeFor(inv.ChargeID, s.PaymentIntentID)
		}
		if invoiceID == "" && chargeID == "" {
			continue
		}
		if m.coveredKeys[invoiceID] || m.coveredCharges[chargeID] {
			continue
		}
		inv := m.invoices[invoiceID]
		ch := m.charges[chargeID]
		pi := m.intents[s.PaymentIntentID]
		m.cover(chargeID, s.PaymentIntentID, invoiceID)
		if m.excluded(inv, ch, pi, s.PaymentIntentID) {
			continue
		}

		rec := Transaction{
			Mode:            m.in.Mode,
			SourceType:      enums.SourceTypeCheckoutSession,
			InvoiceID:       invoiceID,
			ChargeID:        chargeID,
			PaymentIntentID: s.PaymentIntentID,
			SubscriptionID:  s.SubscriptionID,
			CustomerID:      s.CustomerID,
			AmountCents:     s.AmountTotal,
			Currency:        s.Currency,
			Created:         s.Created,
			Metadata:        mergeMetadata(s.Metadata, intentMetadata(pi), chargeMetadata(ch), invoiceMetadata(inv)),
		}
		if ch != nil {
			rec.RefundedCents = ch.AmountRefunded
		}
		if inv != nil && inv.SubscriptionID != "" {
			rec.SubscriptionID = inv.SubscriptionID
		}
		rec.CustomerEmail = m.email(s.CustomerID, s.CustomerEmail, invoiceEmail(inv), chargeEmail(ch), intentEmail(pi))
		m.attachSession(&rec, s)
		m.add(rec)
	}
}

func (m *merger) excluded(inv *pkgstripe.Invoice, ch *pkgstripe.Charge, pi *pkgstripe.PaymentIntent, intentID string) bool {
	if inv != nil && hasOrderID(inv.Metadata) {
		return true
	}
	if ch != nil && hasOrderID(ch.Metadata) {
		return true
	}
	if pi != nil && hasOrderID(pi.Metadata) {
		return true
	}
	if intentID != "" {
		if _, ok := m.in.ExcludedPaymentIntents[intentID]; ok {
			return true
		}
	}
	return false
}

// chargeFor returns the charge behind a payment. Current invoice payments
// usually name only the payment intent, so the charge comes from the intent.
func (m *merger) chargeFor(chargeID, intentID string) string {
	if chargeID != "" || intentID == "" {
		return chargeID
	}
	return m.chargeByIntent[intentID]
}

func (m *merger) cover(chargeID, intentID, key string) {
	if chargeID != "" {
		m.coveredCharges[chargeID] = true
	}
	if intentID != "" {
		m.coveredIntents[intentID] = true
	}
	if key != "" {
		m.coveredKeys[key] = true
	}
}

func (m *merger) sessionFor(intentID, invoiceID string) *pkgstripe.CheckoutSession {
	if intentID != "" {
		if s, ok := m.sessionByIntent[intentID]; ok {
			return s
		}
	}
	if invoiceID != "" {
		if s, ok := m.sessionByInvoice[invoiceID]; ok {
			return s
		}
	}
	return nil
}

func (m *merger) attachSession(rec *Transaction, s *pkgstripe.CheckoutSession) {
	if s == nil {
		return
	}
	rec.CheckoutSessionID = s.ID
	if rec.SubscriptionID == "" {
		rec.SubscriptionID = s.SubscriptionID
	}
	if rec.CustomerID == "" {
		rec.CustomerID = s.CustomerID
	}
}

// add keeps the first record per external key. A later candidate with the
// same key only fills ids the first one lacked.
func (m *merger) add(rec Transaction) {
	key := rec.ExternalKey()
	if key == "" {
		return
	}
	if rec.Currency == "" {
		rec.Currency = defaultCurrency
	}
	rec.Currency = strings.ToUpper(rec.Currency)
	m.coveredKeys[key] = true

	if idx, ok := m.byKey[key]; ok {
		existing := &m.records[idx]
		if existing.ChargeID == "" {
			existing.ChargeID = rec.ChargeID
		}
		if existing.PaymentIntentID == "" {
			existing.PaymentIntentID = rec.PaymentIntentID
		}
		if existing.CheckoutSessionID == "" {
			existing.CheckoutSessionID = rec.CheckoutSessionID
		}
		return
	}
	m.byKey[key] = len(m.records)
	m.records = append(m.records, rec)
}

func (m *merger) email(customerID string, candidates ...string) string {
	if email, ok := m.emails[customerID]; ok {
		return email
	}
	for _, c := range candidates {
		if c = normalizeEmail(c); c != "" {
			return c
		}
	}
	return normalizeEmail(m.in.FallbackEmail)
}

// mergeMetadata layers maps from lowest to highest precedence.
func mergeMetadata(layers ...map[string]string) map[string]string {
	out := map[string]string{}
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

func hasOrderID(metadata map[string]string) bool {
	return strings.TrimSpace(metadata[orderIDKey]) != ""
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func sessionMetadata(s *pkgstripe.CheckoutSession) map[string]string {
	if s == nil {
		return nil
	}
	return s.Metadata
}

func intentMetadata(pi *pkgstripe.PaymentIntent) map[string]string {
	if pi == nil {
		return nil
	}
	return pi.Metadata
}

func chargeMetadata(ch *pkgstripe.Charge) map[string]string {
	if ch == nil {
		return nil
	}
	return ch.Metadata
}

func invoiceMetadata(inv *pkgstripe.Invoice) map[string]string {
	if inv == nil {
		return nil
	}
	return inv.Metadata
}

func sessionEmail(s *pkgstripe.CheckoutSession) string {
	if s == nil {
		return ""
	}
	return s.CustomerEmail
}

func intentEmail(pi *pkgstripe.PaymentIntent) string {
	if pi == nil {
		return ""
	}
	return pi.ReceiptEmail
}

func chargeEmail(ch *pkgstripe.Charge) string {
	if ch == nil {
		return ""
	}
	return ch.Email
}

func invoiceEmail(inv *pkgstripe.Invoice) string {
	if inv == nil {
		return ""
	}
	return inv.CustomerEmail
}
