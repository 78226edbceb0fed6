package shipping

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	internalshipping "github.com/angelmondragon/donation-ledger/internal/shipping"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
)

type stubCalculator struct {
	req internalshipping.Request
	err error
}

func (s *stubCalculator) Calculate(ctx context.Context, req internalshipping.Request) (*internalshipping.Quote, error) {
	s.req = req
	if s.err != nil {
		return nil, s.err
	}
	return &internalshipping.Quote{SessionID: req.SessionID, Provider: enums.ShippingProviderEasyPost, Amount: decimal.RequireFromString("7.25"), Currency: "USD"}, nil
}

const validBody = `{"session_id":"cs_1","shipping_address":{"line1":"1 Main St","city":"Portland","state":"OR","postal_code":"97201","country":"US"}}`

func TestCalculateShippingReturnsQuote(t *testing.T) {
	svc := &stubCalculator{}
	rec := httptest.NewRecorder()
	CalculateShipping(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validBody)))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.req.Address.PostalCode != "97201" || svc.req.SessionID != "cs_1" {
		t.Fatalf("unexpected request %+v", svc.req)
	}
	var body struct {
		Data struct {
			Amount string `json:"amount"`
		} `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Data.Amount != "7.25" {
		t.Fatalf("unexpected amount %q", body.Data.Amount)
	}
}

func TestCalculateShippingValidatesAddress(t *testing.T) {
	svc := &stubCalculator{}
	rec := httptest.NewRecorder()
	body := `{"session_id":"cs_1","shipping_address":{"line1":"1 Main St","city":"Portland","postal_code":"97201","country":"USA"}}`
	CalculateShipping(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for 3-letter country, got %d", rec.Code)
	}
}

func TestCalculateShippingNotFound(t *testing.T) {
	svc := &stubCalculator{err: pkgerrors.New(pkgerrors.CodeNotFound, "order not found for session")}
	rec := httptest.NewRecorder()
	CalculateShipping(svc, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(validBody)))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
