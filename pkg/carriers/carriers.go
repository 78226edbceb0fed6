// Package carriers holds HTTP clients for the shipping rate providers.
package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Address is a postal address in the shape both providers accept.
type Address struct {
	Name       string `json:"name,omitempty" validate:"omitempty,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"omitempty,max=200"`
	City       string `json:"city" validate:"required,max=120"`
	State      string `json:"state,omitempty" validate:"omitempty,max=60"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country" validate:"required,len=2"`
}

// Parcel is the package being rated.
type Parcel struct {
	WeightOunces float64
}

// Rate is one quoted shipping option.
type Rate struct {
	Provider     enums.ShippingProvider `json:"provider"`
	Carrier      string                 `json:"carrier"`
	Service      string                 `json:"service"`
	Amount       decimal.Decimal        `json:"amount"`
	Currency     string                 `json:"currency"`
	DeliveryDays int                    `json:"delivery_days,omitempty"`
}

// RateProvider quotes shipments.
type RateProvider interface {
	Name() enums.ShippingProvider
	Rates(ctx context.Context, from, to Address, parcel Parcel) ([]Rate, error)
}

// Cheapest returns the lowest priced rate. Ties keep provider order.
func Cheapest(rates []Rate) (Rate, bool) {
	if len(rates) == 0 {
		return Rate{}, false
	}
	sorted := append([]Rate(nil), rates...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Amount.LessThan(sorted[j].Amount) })
	return sorted[0], true
}

// Option configures optional client behavior.
type Option func(*httpClient)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *httpClient) {
		if client != nil {
			c.http = client
		}
	}
}

// WithBaseURL overrides the provider base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *httpClient) {
		if trimmed := strings.TrimSpace(baseURL); trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

type httpClient struct {
	http    *http.Client
	baseURL string
}

func newHTTPClient(defaultBaseURL string, opts []Option) httpClient {
	c := httpClient{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: defaultBaseURL,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	return c
}

func (c httpClient) url(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

// postJSON sends payload and decodes a 2xx response into out.
func (c httpClient) postJSON(ctx context.Context, path string, payload any, out any, decorate func(*http.Request)) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal rate request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build rate request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if decorate != nil {
		decorate(req)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute rate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "rate request failed")
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode rate response")
	}
	return nil
}
