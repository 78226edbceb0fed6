package snapshot

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/internal/snapshot/unionfind"
	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

const dateLayout = "2006-01-02"

// Reader is the read side of the donations repository used by snapshots.
type Reader interface {
	TransactionsInWindow(ctx context.Context, email string, mode enums.StripeMode, since, until time.Time) ([]models.DonationStripeTransaction, error)
	MarketplacePaymentIntents(ctx context.Context) (map[string]struct{}, error)
}

// ServiceParams groups dependencies for the snapshot service.
type ServiceParams struct {
	Reader    Reader
	Providers donations.ProviderFunc
	Logger    *logger.Logger
}

// Service builds read-only audit snapshots of one donor's day.
type Service struct {
	reader    Reader
	providers donations.ProviderFunc
	logg      *logger.Logger
}

// NewService builds a snapshot service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Reader == nil {
		return nil, errors.New("reader is required")
	}
	if params.Providers == nil {
		return nil, errors.New("stripe providers are required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	return &Service{reader: params.Reader, providers: params.Providers, logg: params.Logger}, nil
}

// Request names the donor, day and mode to inspect.
type Request struct {
	Email    string           `json:"email"`
	Date     string           `json:"date"`
	Mode     enums.StripeMode `json:"stripe_mode"`
	Timezone string           `json:"timezone"`
}

// Item is one Stripe object or cached row in the snapshot.
type Item struct {
	Key             string            `json:"key"`
	Type            string            `json:"type"`
	ID              string            `json:"id"`
	Status          string            `json:"status,omitempty"`
	AmountCents     int64             `json:"amount_cents"`
	Currency        string            `json:"currency,omitempty"`
	Created         time.Time         `json:"created"`
	CustomerID      string            `json:"customer_id,omitempty"`
	InvoiceID       string            `json:"invoice_id,omitempty"`
	ChargeID        string            `json:"charge_id,omitempty"`
	PaymentIntentID string            `json:"payment_intent_id,omitempty"`
	OrderID         string            `json:"order_id,omitempty"`
	Excluded        bool              `json:"excluded"`
	ExclusionReason string            `json:"exclusion_reason,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Mapping lists the Stripe items that share a cluster with one cached row.
type Mapping struct {
	Key         string   `json:"key"`
	ExternalKey string   `json:"external_key"`
	Designation string   `json:"designation"`
	Amount      string   `json:"amount"`
	StripeItems []string `json:"stripe_items"`
}

// Snapshot is the audit view returned to callers. Nothing in it is persisted.
type Snapshot struct {
	Email       string           `json:"email"`
	Date        string           `json:"date"`
	Mode        enums.StripeMode `json:"stripe_mode"`
	Timezone    string           `json:"timezone"`
	WindowStart time.Time        `json:"window_start"`
	WindowEnd   time.Time        `json:"window_end"`
	Customers   []string         `json:"customers"`
	Items       []Item           `json:"items"`
	Clusters    [][]string       `json:"clusters"`
	Mapping     []Mapping        `json:"mapping"`
}

// Build assembles the snapshot for one donor and calendar day.
func (s *Service) Build(ctx context.Context, req Request) (*Snapshot, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !req.Mode.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe_mode must be test or live")
	}
	tz := strings.TrimSpace(req.Timezone)
	if tz == "" {
		tz = "UTC"
	}
	since, until, err := DayWindow(req.Date, tz)
	if err != nil {
		return nil, err
	}

	provider, err := s.providers(req.Mode)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "stripe client unavailable")
	}
	customers, err := provider.FindCustomers(ctx, email)
	if err != nil {
		return nil, err
	}
	bundle := pkgstripe.Bundle{Customers: customers}
	if len(customers) > 0 {
		bundle, err = provider.FetchBundle(ctx, customers, pkgstripe.Window{Since: since, Until: until})
		if err != nil {
			return nil, err
		}
	}

	rows, err := s.reader.TransactionsInWindow(ctx, email, req.Mode, since, until)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load cached transactions")
	}
	excluded, err := s.reader.MarketplacePaymentIntents(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load marketplace payment intents")
	}

	items := stripeItems(bundle, excluded)
	items = append(items, rowItems(rows)...)
	sort.SliceStable(items, func(i, j int) bool { return items[i].Key < items[j].Key })

	set := cluster(items)
	snap := &Snapshot{
		Email:       email,
		Date:        req.Date,
		Mode:        req.Mode,
		Timezone:    tz,
		WindowStart: since,
		WindowEnd:   until,
		Customers:   customerIDs(customers),
		Items:       items,
		Clusters:    set.Clusters(2),
		Mapping:     mapping(rows, items, set),
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"email":       email,
		"stripe_mode": req.Mode.String(),
		"items":       len(items),
		"clusters":    len(snap.Clusters),
	}), "donation mapping snapshot built")
	return snap, nil
}

// DayWindow returns the UTC bounds of date in the named IANA zone.
func DayWindow(date, timezone string) (time.Time, time.Time, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown timezone")
	}
	day, err := time.ParseInLocation(dateLayout, strings.TrimSpace(date), loc)
	if err != nil {
		return time.Time{}, time.Time{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "date must be YYYY-MM-DD")
	}
	return day.UTC(), day.AddDate(0, 0, 1).UTC(), nil
}

// cluster unions every pair of items that share a payment intent, invoice,
// charge or order id.
func cluster(items []Item) *unionfind.Set {
	set := unionfind.New()
	owner := map[string]string{}
	link := func(key, token string) {
		if strings.HasSuffix(token, ":") {
			return
		}
		if first, ok := owner[token]; ok {
			set.Union(first, key)
			return
		}
		owner[token] = key
	}
	for _, it := range items {
		set.Add(it.Key)
		link(it.Key, "pi:"+it.PaymentIntentID)
		link(it.Key, "in:"+it.InvoiceID)
		link(it.Key, "ch:"+it.ChargeID)
		link(it.Key, "order:"+it.OrderID)
	}
	return set
}

func mapping(rows []models.DonationStripeTransaction, items []Item, set *unionfind.Set) []Mapping {
	out := make([]Mapping, 0, len(rows))
	for _, row := range rows {
		key := rowKey(row)
		m := Mapping{
			Key:         key,
			ExternalKey: row.ExternalKey,
			Designation: row.Designation,
			Amount:      row.Amount.StringFixed(2),
			StripeItems: []string{},
		}
		for _, it := range items {
			if it.Type == itemTypeDB {
				continue
			}
			if set.Connected(key, it.Key) {
				m.StripeItems = append(m.StripeItems, it.Key)
			}
		}
		out = append(out, m)
	}
	return out
}

func customerIDs(customers []pkgstripe.Customer) []string {
	out := make([]string, 0, len(customers))
	for _, c := range customers {
		out = append(out, c.ID)
	}
	sort.Strings(out)
	return out
}
