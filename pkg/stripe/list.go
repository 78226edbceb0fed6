package stripe

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/pagination"
)

const pageSize int64 = 100

// Window bounds list calls by object creation time. Until is exclusive.
type Window struct {
	Since time.Time
	Until time.Time
}

func (w Window) rangeParams() *stripe.RangeQueryParams {
	if w.Since.IsZero() && w.Until.IsZero() {
		return nil
	}
	r := &stripe.RangeQueryParams{}
	if !w.Since.IsZero() {
		r.GreaterThanOrEqual = w.Since.Unix()
	}
	if !w.Until.IsZero() {
		r.LesserThan = w.Until.Unix()
	}
	return r
}

func (c *Client) listParams(ctx context.Context, p *stripe.ListParams, cursor string) {
	p.Context = ctx
	p.Single = true
	p.Limit = stripe.Int64(pageSize)
	if cursor != "" {
		p.StartingAfter = stripe.String(cursor)
	}
}

// drain runs one rate-limited page loop and maps failures to dependency errors.
func drain[T any](ctx context.Context, c *Client, what string, fetch func(ctx context.Context, cursor string) ([]T, bool, string, error)) ([]T, error) {
	items, err := pagination.Drain(ctx, func(ctx context.Context, cursor string) (pagination.Page[T], error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return pagination.Page[T]{}, err
		}
		page, hasMore, last, err := fetch(ctx, cursor)
		if err != nil {
			return pagination.Page[T]{}, err
		}
		return pagination.Page[T]{Items: page, HasMore: hasMore, NextCursor: last}, nil
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, fmt.Sprintf("stripe list %s (%s)", what, c.mode))
	}
	return items, nil
}

// FindCustomers returns every customer whose email matches exactly.
func (c *Client) FindCustomers(ctx context.Context, email string) ([]Customer, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	return drain(ctx, c, "customers", func(ctx context.Context, cursor string) ([]Customer, bool, string, error) {
		params := &stripe.CustomerListParams{Email: stripe.String(email)}
		c.listParams(ctx, &params.ListParams, cursor)
		it := c.customers.List(params)
		var out []Customer
		last := ""
		for it.Next() {
			cust := it.Customer()
			out = append(out, customerFromStripe(cust))
			last = cust.ID
		}
		if err := it.Err(); err != nil {
			return nil, false, "", err
		}
		return out, it.Meta().HasMore, last, nil
	})
}

// GetCustomer loads a single customer, used to resolve webhook payloads to an email.
func (c *Client) GetCustomer(ctx context.Context, id string) (Customer, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return Customer{}, err
	}
	params := &stripe.CustomerParams{}
	params.Context = ctx
	cust, err := c.customers.Get(id, params)
	if err != nil {
		return Customer{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe get customer")
	}
	return customerFromStripe(cust), nil
}

func (c *Client) ListInvoices(ctx context.Context, customerID string, w Window) ([]Invoice, error) {
	return drain(ctx, c, "invoices", func(ctx context.Context, cursor string) ([]Invoice, bool, string, error) {
		params := &stripe.InvoiceListParams{Customer: stripe.String(customerID), CreatedRange: w.rangeParams()}
		c.listParams(ctx, &params.ListParams, cursor)
		params.AddExpand("data.payments")
		it := c.invoices.List(params)
		var out []Invoice
		last := ""
		for it.Next() {
			in := it.Invoice()
			out = append(out, invoiceFromStripe(in))
			last = in.ID
		}
		if err := it.Err(); err != nil {
			return nil, false, "", err
		}
		return out, it.Meta().HasMore, last, nil
	})
}

func (c *Client) ListCharges(ctx context.Context, customerID string, w Window) ([]Charge, error) {
	return drain(ctx, c, "charges", func(ctx context.Context, cursor string) ([]Charge, bool, string, error) {
		params := &stripe.ChargeListParams{Customer: stripe.String(customerID), CreatedRange: w.rangeParams()}
		c.listParams(ctx, &params.ListParams, cursor)
		it := c.charges.List(params)
		var out []Charge
		last := ""
		for it.Next() {
			ch := it.Charge()
			out = append(out, chargeFromStripe(ch))
			last = ch.ID
		}
		if err := it.Err(); err != nil {
			return nil, false, "", err
		}
		return out, it.Meta().HasMore, last, nil
	})
}

func (c *Client) ListPaymentIntents(ctx context.Context, customerID string, w Window) ([]PaymentIntent, error) {
	return drain(ctx, c, "payment intents", func(ctx context.Context, cursor string) ([]PaymentIntent, bool, string, error) {
		params := &stripe.PaymentIntentListParams{Customer: stripe.String(customerID), CreatedRange: w.rangeParams()}
		c.listParams(ctx, &params.ListParams, cursor)
		it := c.paymentIntents.List(params)
		var out []PaymentIntent
		last := ""
		for it.Next() {
			pi := it.PaymentIntent()
			out = append(out, paymentIntentFromStripe(pi))
			last = pi.ID
		}
		if err := it.Err(); err != nil {
			return nil, false, "", err
		}
		return out, it.Meta().HasMore, last, nil
	})
}

func (c *Client) ListCheckoutSessions(ctx context.Context, customerID string, w Window) ([]CheckoutSession, error) {
	return drain(ctx, c, "checkout sessions", func(ctx context.Context, cursor string) ([]CheckoutSession, bool, string, error) {
		params := &stripe.CheckoutSessionListParams{Customer: stripe.String(customerID), CreatedRange: w.rangeParams()}
		c.listParams(ctx, &params.ListParams, cursor)
		it := c.sessions.List(params)
		var out []CheckoutSession
		last := ""
		for it.Next() {
			s := it.CheckoutSession()
			out = append(out, checkoutSessionFromStripe(s))
			last = s.ID
		}
		if err := it.Err(); err != nil {
			return nil, false, "", err
		}
		return out, it.Meta().HasMore, last, nil
	})
}

// ListSubscriptions returns subscriptions in every status; the window does not apply
// because a sponsorship started years ago still bills today.
func (c *Client) ListSubscriptions(ctx context.Context, customerID string) ([]Subscription, error) {
	return drain(ctx, c, "subscriptions", func(ctx context.Context, cursor string) ([]Subscription, bool, string, error) {
		params := &stripe.SubscriptionListParams{Customer: stripe.String(customerID), Status: stripe.String("all")}
		c.listParams(ctx, &params.ListParams, cursor)
		it := c.subscriptions.List(params)
		var out []Subscription
		last := ""
		for it.Next() {
			sub := it.Subscription()
			out = append(out, subscriptionFromStripe(sub))
			last = sub.ID
		}
		if err := it.Err(); err != nil {
			return nil, false, "", err
		}
		return out, it.Meta().HasMore, last, nil
	})
}

// FetchBundle loads every record kind for the given customers.
func (c *Client) FetchBundle(ctx context.Context, customers []Customer, w Window) (Bundle, error) {
	bundle := Bundle{Customers: customers}
	for _, cust := range customers {
		invoices, err := c.ListInvoices(ctx, cust.ID, w)
		if err != nil {
			return Bundle{}, err
		}
		charges, err := c.ListCharges(ctx, cust.ID, w)
		if err != nil {
			return Bundle{}, err
		}
		intents, err := c.ListPaymentIntents(ctx, cust.ID, w)
		if err != nil {
			return Bundle{}, err
		}
		sessions, err := c.ListCheckoutSessions(ctx, cust.ID, w)
		if err != nil {
			return Bundle{}, err
		}
		subs, err := c.ListSubscriptions(ctx, cust.ID)
		if err != nil {
			return Bundle{}, err
		}
		bundle.Append(Bundle{
			Invoices:         invoices,
			Charges:          charges,
			PaymentIntents:   intents,
			CheckoutSessions: sessions,
			Subscriptions:    subs,
		})
	}
	return bundle, nil
}
