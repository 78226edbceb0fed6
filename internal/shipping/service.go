package shipping

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/donation-ledger/pkg/carriers"
	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgredis "github.com/angelmondragon/donation-ledger/pkg/redis"
)

const (
	defaultItemWeightOunces = 8.0
	defaultQuoteTTL         = 15 * time.Minute
	cacheScope              = "shipping"
)

// ServiceParams groups dependencies for the shipping calculator.
type ServiceParams struct {
	Repo      Repository
	Cache     pkgredis.Cache
	Providers []carriers.RateProvider
	Origin    carriers.Address
	QuoteTTL  time.Duration
	Logger    *logger.Logger
}

// Service quotes storefront shipping for a checkout session.
type Service struct {
	repo      Repository
	cache     pkgredis.Cache
	providers map[enums.ShippingProvider]carriers.RateProvider
	origin    carriers.Address
	ttl       time.Duration
	logg      *logger.Logger
}

// NewService builds the shipping calculator. Providers without credentials
// are simply left out; asking for one then fails with a dependency error.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	providers := map[enums.ShippingProvider]carriers.RateProvider{}
	for _, p := range params.Providers {
		if p != nil {
			providers[p.Name()] = p
		}
	}
	ttl := params.QuoteTTL
	if ttl <= 0 {
		ttl = defaultQuoteTTL
	}
	return &Service{
		repo:      params.Repo,
		cache:     params.Cache,
		providers: providers,
		origin:    params.Origin,
		ttl:       ttl,
		logg:      params.Logger,
	}, nil
}

// Request is a shipping quote request for one checkout session.
type Request struct {
	SessionID string           `json:"session_id" validate:"required"`
	Address   carriers.Address `json:"shipping_address" validate:"required"`
}

// Quote is the cheapest rate found for a session.
type Quote struct {
	SessionID    string                 `json:"session_id"`
	Provider     enums.ShippingProvider `json:"provider"`
	Carrier      string                 `json:"carrier"`
	Service      string                 `json:"service"`
	Amount       decimal.Decimal        `json:"amount"`
	Currency     string                 `json:"currency"`
	DeliveryDays int                    `json:"delivery_days,omitempty"`
	WeightOunces float64                `json:"weight_ounces"`
	Cached       bool                   `json:"cached"`
}

// Calculate returns the cheapest rate for the session's order.
func (s *Service) Calculate(ctx context.Context, req Request) (*Quote, error) {
	sessionID := strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "session_id is required")
	}
	addr := req.Address
	if strings.TrimSpace(addr.Line1) == "" || strings.TrimSpace(addr.City) == "" ||
		strings.TrimSpace(addr.PostalCode) == "" || strings.TrimSpace(addr.Country) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping_address requires line1, city, postal_code and country")
	}
	ctx = s.logg.WithField(ctx, "session_id", sessionID)

	cacheKey := s.cacheKey(sessionID, addr)
	if quote, ok := s.cached(ctx, cacheKey); ok {
		return quote, nil
	}

	order, err := s.repo.FindOrderBySession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for checkout session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	items, err := s.repo.ListOrderItems(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order items")
	}
	weight := TotalWeight(items)

	providerName, err := s.repo.ProviderSetting(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load shipping provider setting")
	}

	entry := &models.ShippingCalculationLog{
		ID:                 uuid.New(),
		SessionID:          sessionID,
		Provider:           providerName.String(),
		DestinationPostal:  strings.TrimSpace(addr.PostalCode),
		DestinationCountry: strings.ToUpper(strings.TrimSpace(addr.Country)),
		WeightOunces:       weight,
	}

	quote, quoteErr := s.quote(ctx, providerName, addr, weight)
	if quoteErr != nil {
		msg := pkgerrors.Describe(quoteErr)
		entry.ErrorMessage = &msg
	} else {
		quote.SessionID = sessionID
		entry.Amount = &quote.Amount
		entry.Currency = &quote.Currency
		service := strings.TrimSpace(quote.Carrier + " " + quote.Service)
		entry.ServiceLevel = &service
	}
	if err := s.repo.LogCalculation(ctx, entry); err != nil {
		s.logg.Error(ctx, "failed to write shipping calculation log", err)
	}
	if quoteErr != nil {
		return nil, quoteErr
	}

	s.store(ctx, cacheKey, quote)
	return quote, nil
}

func (s *Service) quote(ctx context.Context, name enums.ShippingProvider, to carriers.Address, weight float64) (*Quote, error) {
	provider, ok := s.providers[name]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipping provider "+name.String()+" is not configured")
	}
	rates, err := provider.Rates(ctx, s.origin, to, carriers.Parcel{WeightOunces: weight})
	if err != nil {
		return nil, err
	}
	best, ok := carriers.Cheapest(rates)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "no shipping rates returned")
	}
	return &Quote{
		Provider:     best.Provider,
		Carrier:      best.Carrier,
		Service:      best.Service,
		Amount:       best.Amount,
		Currency:     best.Currency,
		DeliveryDays: best.DeliveryDays,
		WeightOunces: weight,
	}, nil
}

// TotalWeight sums item weights, counting items without a weight as 8 oz each.
func TotalWeight(items []models.OrderItem) float64 {
	total := 0.0
	for _, it := range items {
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		per := defaultItemWeightOunces
		if it.WeightOunces != nil && *it.WeightOunces > 0 {
			per = *it.WeightOunces
		}
		total += per * float64(qty)
	}
	if total <= 0 {
		total = defaultItemWeightOunces
	}
	return total
}

// cacheKey scopes a quote to the session and the whole destination. The
// street parts are hashed so addresses never appear in redis keys.
func (s *Service) cacheKey(sessionID string, to carriers.Address) string {
	if s.cache == nil {
		return ""
	}
	norm := func(v string) string { return strings.ToUpper(strings.Join(strings.Fields(v), " ")) }
	postal := strings.ReplaceAll(norm(to.PostalCode), " ", "")
	street := sha256.Sum256([]byte(strings.Join([]string{norm(to.Line1), norm(to.Line2), norm(to.City), norm(to.State)}, "\x00")))
	return s.cache.CacheKey(cacheScope, sessionID, norm(to.Country), postal, hex.EncodeToString(street[:8]))
}

func (s *Service) cached(ctx context.Context, key string) (*Quote, bool) {
	if s.cache == nil || key == "" {
		return nil, false
	}
	raw, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, pkgredis.Nil) {
			s.logg.Warn(ctx, "shipping quote cache read failed")
		}
		return nil, false
	}
	var quote Quote
	if err := json.Unmarshal([]byte(raw), &quote); err != nil {
		return nil, false
	}
	quote.Cached = true
	return &quote, true
}

func (s *Service) store(ctx context.Context, key string, quote *Quote) {
	if s.cache == nil || key == "" {
		return
	}
	payload, err := json.Marshal(quote)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
		s.logg.Warn(ctx, "shipping quote cache write failed")
	}
}
