package stripewebhook

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

// Syncer runs a single-donor sync.
type Syncer interface {
	SyncCustomer(ctx context.Context, req donations.SyncRequest) (*donations.SyncResult, error)
}

// CustomerLookup resolves a Stripe customer id to its email.
type CustomerLookup interface {
	GetCustomer(ctx context.Context, id string) (pkgstripe.Customer, error)
}

// CustomerLookupFunc returns the lookup for a mode.
type CustomerLookupFunc func(mode enums.StripeMode) (CustomerLookup, error)

// StripeCustomers adapts the per-mode client set.
func StripeCustomers(clients *pkgstripe.Clients) CustomerLookupFunc {
	return func(mode enums.StripeMode) (CustomerLookup, error) {
		client, err := clients.ForMode(mode)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

type ServiceParams struct {
	Syncer        Syncer
	Customers     CustomerLookupFunc
	Logger        *logger.Logger
	ResyncEnabled bool
}

// Service turns verified Stripe events into donor resyncs.
type Service struct {
	syncer    Syncer
	customers CustomerLookupFunc
	logg      *logger.Logger
	enabled   bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Syncer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "syncer required")
	}
	if params.Customers == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "customer lookup required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		syncer:    params.Syncer,
		customers: params.Customers,
		logg:      params.Logger,
		enabled:   params.ResyncEnabled,
	}, nil
}

// Outcome describes what an event caused.
type Outcome struct {
	EventID            string           `json:"event_id"`
	Type               string           `json:"type"`
	Mode               enums.StripeMode `json:"stripe_mode"`
	Resynced           bool             `json:"resynced"`
	Email              string           `json:"email,omitempty"`
	TransactionsSynced int              `json:"transactions_synced"`
}

// Handles reports whether the event type triggers a resync.
func Handles(eventType stripe.EventType) bool {
	switch eventType {
	case stripe.EventTypeChargeSucceeded,
		stripe.EventTypeChargeRefunded,
		stripe.EventTypeInvoicePaid,
		stripe.EventTypeCheckoutSessionCompleted,
		stripe.EventTypeCustomerSubscriptionCreated,
		stripe.EventTypeCustomerSubscriptionUpdated,
		stripe.EventTypeCustomerSubscriptionDeleted:
		return true
	}
	return false
}

// HandleEvent resyncs the donor behind a payment event. Unhandled types are
// acknowledged without work.
func (s *Service) HandleEvent(ctx context.Context, mode enums.StripeMode, event *stripe.Event) (*Outcome, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	if enums.StripeModeFromLivemode(event.Livemode) != mode {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "event livemode does not match endpoint mode")
	}
	out := &Outcome{EventID: event.ID, Type: string(event.Type), Mode: mode}
	if !s.enabled || !Handles(event.Type) {
		return out, nil
	}

	email, err := s.resolveEmail(ctx, mode, event)
	if err != nil {
		return nil, err
	}
	if email == "" {
		s.logg.Warn(s.logg.WithField(ctx, "event_id", event.ID), "stripe event carries no customer email")
		return out, nil
	}

	res, err := s.syncer.SyncCustomer(ctx, donations.SyncRequest{Email: email, Mode: mode})
	if err != nil {
		return nil, err
	}
	out.Resynced = true
	out.Email = res.Email
	out.TransactionsSynced = res.TransactionsSynced
	return out, nil
}

// resolveEmail prefers an email on the event object and falls back to the
// customer record.
func (s *Service) resolveEmail(ctx context.Context, mode enums.StripeMode, event *stripe.Event) (string, error) {
	object := event.Data.Object
	candidates := [][]string{
		{"customer_email"},
		{"receipt_email"},
		{"billing_details", "email"},
		{"customer_details", "email"},
		{"customer", "email"},
	}
	for _, path := range candidates {
		if email := normalize(objectString(object, path...)); email != "" {
			return email, nil
		}
	}

	customerID := strings.TrimSpace(objectString(object, "customer"))
	if customerID == "" {
		customerID = strings.TrimSpace(objectString(object, "customer", "id"))
	}
	if customerID == "" {
		return "", nil
	}
	lookup, err := s.customers(mode)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe client unavailable")
	}
	customer, err := lookup.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	return normalize(customer.Email), nil
}

// objectString walks nested maps of a raw event object. Missing keys, nulls
// and non-map parents yield "".
func objectString(object map[string]interface{}, path ...string) string {
	var current interface{} = object
	for _, key := range path {
		m, ok := current.(map[string]interface{})
		if !ok {
			return ""
		}
		current = m[key]
	}
	str, _ := current.(string)
	return str
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
