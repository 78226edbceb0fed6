package carriers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
)

const easyPostBaseURL = "https://api.easypost.com/v2"

// EasyPost quotes rates through the EasyPost shipments API.
type EasyPost struct {
	client httpClient
	apiKey string
}

// NewEasyPost builds an EasyPost client.
func NewEasyPost(apiKey string, opts ...Option) (*EasyPost, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errors.New("easypost api key is required")
	}
	return &EasyPost{client: newHTTPClient(easyPostBaseURL, opts), apiKey: key}, nil
}

func (e *EasyPost) Name() enums.ShippingProvider { return enums.ShippingProviderEasyPost }

type easyPostAddress struct {
	Name    string `json:"name,omitempty"`
	Street1 string `json:"street1,omitempty"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

func toEasyPostAddress(a Address) easyPostAddress {
	return easyPostAddress{
		Name:    a.Name,
		Street1: a.Line1,
		Street2: a.Line2,
		City:    a.City,
		State:   a.State,
		Zip:     a.PostalCode,
		Country: strings.ToUpper(a.Country),
	}
}

// Rates creates a shipment and returns the rates attached to it.
func (e *EasyPost) Rates(ctx context.Context, from, to Address, parcel Parcel) ([]Rate, error) {
	if e == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "easypost client not configured")
	}
	payload := map[string]any{
		"shipment": map[string]any{
			"from_address": toEasyPostAddress(from),
			"to_address":   toEasyPostAddress(to),
			"parcel":       map[string]any{"weight": parcel.WeightOunces},
		},
	}
	var resp struct {
		Rates []struct {
			Carrier      string `json:"carrier"`
			Service      string `json:"service"`
			Rate         string `json:"rate"`
			Currency     string `json:"currency"`
			DeliveryDays *int   `json:"delivery_days"`
		} `json:"rates"`
	}
	err := e.client.postJSON(ctx, "shipments", payload, &resp, func(req *http.Request) {
		req.SetBasicAuth(e.apiKey, "")
	})
	if err != nil {
		return nil, err
	}

	rates := make([]Rate, 0, len(resp.Rates))
	for _, r := range resp.Rates {
		amount, err := decimal.NewFromString(r.Rate)
		if err != nil {
			continue
		}
		rate := Rate{
			Provider: enums.ShippingProviderEasyPost,
			Carrier:  r.Carrier,
			Service:  r.Service,
			Amount:   amount,
			Currency: strings.ToUpper(r.Currency),
		}
		if r.DeliveryDays != nil {
			rate.DeliveryDays = *r.DeliveryDays
		}
		rates = append(rates, rate)
	}
	return rates, nil
}
