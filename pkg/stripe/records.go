package stripe

import (
	"time"

	"github.com/stripe/stripe-go/v84"
)

// The types below are provider-neutral copies of the Stripe objects the
// reconciler reads. Amounts stay in minor units.

type Customer struct {
	ID    string
	Email string
}

type Invoice struct {
	ID              string
	CustomerID      string
	CustomerEmail   string
	SubscriptionID  string
	ChargeID        string
	PaymentIntentID string
	Status          string
	AmountPaid      int64
	Currency        string
	Created         time.Time
	Metadata        map[string]string
}

type Charge struct {
	ID              string
	CustomerID      string
	PaymentIntentID string
	Email           string
	Status          string
	Amount          int64
	AmountRefunded  int64
	Currency        string
	Created         time.Time
	Metadata        map[string]string
}

type PaymentIntent struct {
	ID             string
	CustomerID     string
	LatestChargeID string
	ReceiptEmail   string
	Status         string
	Amount         int64
	Currency       string
	Created        time.Time
	Metadata       map[string]string
}

type CheckoutSession struct {
	ID              string
	CustomerID      string
	CustomerEmail   string
	PaymentIntentID string
	InvoiceID       string
	SubscriptionID  string
	Status          string
	PaymentStatus   string
	AmountTotal     int64
	Currency        string
	Created         time.Time
	Metadata        map[string]string
}

type Subscription struct {
	ID               string
	CustomerID       string
	Status           string
	Amount           int64
	Currency         string
	Interval         string
	CurrentPeriodEnd *time.Time
	Created          time.Time
	Metadata         map[string]string
}

// Bundle is everything fetched for one donor in one window.
type Bundle struct {
	Customers        []Customer
	Invoices         []Invoice
	Charges          []Charge
	PaymentIntents   []PaymentIntent
	CheckoutSessions []CheckoutSession
	Subscriptions    []Subscription
}

// Append merges other into b.
func (b *Bundle) Append(other Bundle) {
	b.Customers = append(b.Customers, other.Customers...)
	b.Invoices = append(b.Invoices, other.Invoices...)
	b.Charges = append(b.Charges, other.Charges...)
	b.PaymentIntents = append(b.PaymentIntents, other.PaymentIntents...)
	b.CheckoutSessions = append(b.CheckoutSessions, other.CheckoutSessions...)
	b.Subscriptions = append(b.Subscriptions, other.Subscriptions...)
}

func customerFromStripe(c *stripe.Customer) Customer {
	return Customer{ID: c.ID, Email: c.Email}
}

func invoiceFromStripe(in *stripe.Invoice) Invoice {
	out := Invoice{
		ID:            in.ID,
		CustomerID:    customerID(in.Customer),
		CustomerEmail: in.CustomerEmail,
		Status:        string(in.Status),
		AmountPaid:    in.AmountPaid,
		Currency:      string(in.Currency),
		Created:       unix(in.Created),
		Metadata:      copyMetadata(in.Metadata),
	}
	if in.Parent != nil && in.Parent.SubscriptionDetails != nil && in.Parent.SubscriptionDetails.Subscription != nil {
		out.SubscriptionID = in.Parent.SubscriptionDetails.Subscription.ID
	}
	if payment := primaryPayment(in.Payments); payment != nil {
		if payment.Charge != nil {
			out.ChargeID = payment.Charge.ID
		}
		if payment.PaymentIntent != nil {
			out.PaymentIntentID = payment.PaymentIntent.ID
		}
	}
	return out
}

// primaryPayment prefers the paid entry; invoices settled by a retry carry
// earlier failed attempts too.
func primaryPayment(list *stripe.InvoicePaymentList) *stripe.InvoicePaymentPayment {
	if list == nil {
		return nil
	}
	var fallback *stripe.InvoicePaymentPayment
	for _, p := range list.Data {
		if p == nil || p.Payment == nil {
			continue
		}
		if p.Status == "paid" {
			return p.Payment
		}
		if fallback == nil {
			fallback = p.Payment
		}
	}
	return fallback
}

func chargeFromStripe(ch *stripe.Charge) Charge {
	out := Charge{
		ID:             ch.ID,
		CustomerID:     customerID(ch.Customer),
		Email:          ch.ReceiptEmail,
		Status:         string(ch.Status),
		Amount:         ch.Amount,
		AmountRefunded: ch.AmountRefunded,
		Currency:       string(ch.Currency),
		Created:        unix(ch.Created),
		Metadata:       copyMetadata(ch.Metadata),
	}
	if ch.PaymentIntent != nil {
		out.PaymentIntentID = ch.PaymentIntent.ID
	}
	if ch.BillingDetails != nil && ch.BillingDetails.Email != "" {
		out.Email = ch.BillingDetails.Email
	}
	return out
}

func paymentIntentFromStripe(pi *stripe.PaymentIntent) PaymentIntent {
	out := PaymentIntent{
		ID:           pi.ID,
		CustomerID:   customerID(pi.Customer),
		ReceiptEmail: pi.ReceiptEmail,
		Status:       string(pi.Status),
		Amount:       pi.Amount,
		Currency:     string(pi.Currency),
		Created:      unix(pi.Created),
		Metadata:     copyMetadata(pi.Metadata),
	}
	if pi.LatestCharge != nil {
		out.LatestChargeID = pi.LatestCharge.ID
	}
	return out
}

func checkoutSessionFromStripe(s *stripe.CheckoutSession) CheckoutSession {
	out := CheckoutSession{
		ID:            s.ID,
		CustomerID:    customerID(s.Customer),
		CustomerEmail: s.CustomerEmail,
		Status:        string(s.Status),
		PaymentStatus: string(s.PaymentStatus),
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Created:       unix(s.Created),
		Metadata:      copyMetadata(s.Metadata),
	}
	if s.CustomerDetails != nil && s.CustomerDetails.Email != "" {
		out.CustomerEmail = s.CustomerDetails.Email
	}
	if s.PaymentIntent != nil {
		out.PaymentIntentID = s.PaymentIntent.ID
	}
	if s.Invoice != nil {
		out.InvoiceID = s.Invoice.ID
	}
	if s.Subscription != nil {
		out.SubscriptionID = s.Subscription.ID
	}
	return out
}

func subscriptionFromStripe(sub *stripe.Subscription) Subscription {
	out := Subscription{
		ID:         sub.ID,
		CustomerID: customerID(sub.Customer),
		Status:     string(sub.Status),
		Currency:   string(sub.Currency),
		Created:    unix(sub.Created),
		Metadata:   copyMetadata(sub.Metadata),
	}
	if sub.Items == nil {
		return out
	}
	for _, item := range sub.Items.Data {
		if item == nil {
			continue
		}
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		if item.Price != nil {
			out.Amount += item.Price.UnitAmount * qty
			if out.Interval == "" && item.Price.Recurring != nil {
				out.Interval = string(item.Price.Recurring.Interval)
			}
		}
		if item.CurrentPeriodEnd > 0 {
			end := unix(item.CurrentPeriodEnd)
			if out.CurrentPeriodEnd == nil || end.After(*out.CurrentPeriodEnd) {
				out.CurrentPeriodEnd = &end
			}
		}
	}
	return out
}

func customerID(c *stripe.Customer) string {
	if c == nil {
		return ""
	}
	return c.ID
}

func unix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func copyMetadata(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
