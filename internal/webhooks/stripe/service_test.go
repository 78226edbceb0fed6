package stripewebhook

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/donation-ledger/internal/donations"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/donation-ledger/pkg/errors"
	"github.com/angelmondragon/donation-ledger/pkg/logger"
	pkgstripe "github.com/angelmondragon/donation-ledger/pkg/stripe"
)

type stubSyncer struct {
	requests []donations.SyncRequest
	err      error
}

func (s *stubSyncer) SyncCustomer(ctx context.Context, req donations.SyncRequest) (*donations.SyncResult, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	return &donations.SyncResult{Email: req.Email, Mode: req.Mode, TransactionsSynced: 2}, nil
}

type stubCustomers struct {
	customers map[string]pkgstripe.Customer
	calls     int
}

func (s *stubCustomers) GetCustomer(ctx context.Context, id string) (pkgstripe.Customer, error) {
	s.calls++
	c, ok := s.customers[id]
	if !ok {
		return pkgstripe.Customer{}, errors.New("no such customer")
	}
	return c, nil
}

func newWebhookService(t *testing.T, syncer Syncer, customers *stubCustomers, enabled bool) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{
		Syncer:        syncer,
		Customers:     func(enums.StripeMode) (CustomerLookup, error) { return customers, nil },
		Logger:        logger.Nop(),
		ResyncEnabled: enabled,
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc
}

func event(id string, typ stripe.EventType, live bool, object map[string]interface{}) *stripe.Event {
	return &stripe.Event{ID: id, Type: typ, Livemode: live, Data: &stripe.EventData{Object: object}}
}

func TestHandleEventResyncsFromInvoiceEmail(t *testing.T) {
	syncer := &stubSyncer{}
	customers := &stubCustomers{}
	svc := newWebhookService(t, syncer, customers, true)

	out, err := svc.HandleEvent(context.Background(), enums.StripeModeLive, event("evt_1", stripe.EventTypeInvoicePaid, true, map[string]interface{}{
		"id":             "in_1",
		"customer":       "cus_1",
		"customer_email": " Ana@Example.org ",
	}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if !out.Resynced || out.Email != "ana@example.org" || out.TransactionsSynced != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(syncer.requests) != 1 || syncer.requests[0].Mode != enums.StripeModeLive {
		t.Fatalf("expected one live sync, got %+v", syncer.requests)
	}
	if customers.calls != 0 {
		t.Fatalf("customer lookup should be skipped when the event has an email")
	}
}

func TestHandleEventFallsBackToCustomerLookup(t *testing.T) {
	syncer := &stubSyncer{}
	customers := &stubCustomers{customers: map[string]pkgstripe.Customer{"cus_9": {ID: "cus_9", Email: "Bo@Example.org"}}}
	svc := newWebhookService(t, syncer, customers, true)

	out, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_2", stripe.EventTypeCustomerSubscriptionUpdated, false, map[string]interface{}{
		"id":       "sub_1",
		"customer": "cus_9",
	}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if out.Email != "bo@example.org" || customers.calls != 1 {
		t.Fatalf("expected lookup email, got %+v (calls=%d)", out, customers.calls)
	}
}

func TestHandleEventReadsChargeBillingEmail(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newWebhookService(t, syncer, &stubCustomers{}, true)

	_, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_3", stripe.EventTypeChargeRefunded, false, map[string]interface{}{
		"id":              "ch_1",
		"billing_details": map[string]interface{}{"email": "cy@example.org"},
	}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if len(syncer.requests) != 1 || syncer.requests[0].Email != "cy@example.org" {
		t.Fatalf("unexpected sync requests %+v", syncer.requests)
	}
}

func TestHandleEventAcknowledgesUnhandledTypes(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newWebhookService(t, syncer, &stubCustomers{}, true)

	out, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_4", stripe.EventTypeProductCreated, false, map[string]interface{}{"id": "prod_1"}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if out.Resynced || len(syncer.requests) != 0 {
		t.Fatalf("unhandled event must not sync")
	}
}

func TestHandleEventDisabledResync(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newWebhookService(t, syncer, &stubCustomers{}, false)

	out, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_5", stripe.EventTypeInvoicePaid, false, map[string]interface{}{"customer_email": "a@example.org"}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if out.Resynced || len(syncer.requests) != 0 {
		t.Fatalf("disabled resync must only acknowledge")
	}
}

func TestHandleEventRejectsModeMismatch(t *testing.T) {
	svc := newWebhookService(t, &stubSyncer{}, &stubCustomers{}, true)

	_, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_6", stripe.EventTypeInvoicePaid, true, map[string]interface{}{"customer_email": "a@example.org"}))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleEventPropagatesSyncFailure(t *testing.T) {
	syncer := &stubSyncer{err: pkgerrors.New(pkgerrors.CodeDependency, "stripe down")}
	svc := newWebhookService(t, syncer, &stubCustomers{}, true)

	_, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_7", stripe.EventTypeChargeSucceeded, false, map[string]interface{}{"receipt_email": "a@example.org"}))
	if pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestHandleEventWithoutEmailFieldsUsesCustomer(t *testing.T) {
	tests := map[string]struct {
		typ    stripe.EventType
		object map[string]interface{}
	}{
		"subscription": {stripe.EventTypeCustomerSubscriptionDeleted, map[string]interface{}{"id": "sub_1", "customer": "cus_1"}},
		"invoice null email": {stripe.EventTypeInvoicePaid, map[string]interface{}{
			"id": "in_1", "customer": "cus_1", "customer_email": nil,
		}},
		"session null details": {stripe.EventTypeCheckoutSessionCompleted, map[string]interface{}{
			"id": "cs_1", "customer": "cus_1", "customer_details": nil,
		}},
		"charge string details": {stripe.EventTypeChargeSucceeded, map[string]interface{}{
			"id": "ch_1", "customer": "cus_1", "billing_details": "unexpected",
		}},
		"expanded customer": {stripe.EventTypeInvoicePaid, map[string]interface{}{
			"id": "in_2", "customer": map[string]interface{}{"id": "cus_1"},
		}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			syncer := &stubSyncer{}
			customers := &stubCustomers{customers: map[string]pkgstripe.Customer{"cus_1": {ID: "cus_1", Email: "dee@example.org"}}}
			svc := newWebhookService(t, syncer, customers, true)

			out, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_"+name, tc.typ, false, tc.object))
			if err != nil {
				t.Fatalf("handle event: %v", err)
			}
			if !out.Resynced || out.Email != "dee@example.org" || customers.calls != 1 {
				t.Fatalf("expected customer lookup resync, got %+v (calls=%d)", out, customers.calls)
			}
		})
	}
}

func TestHandleEventWithoutEmailOrCustomerAcknowledges(t *testing.T) {
	syncer := &stubSyncer{}
	svc := newWebhookService(t, syncer, &stubCustomers{}, true)

	out, err := svc.HandleEvent(context.Background(), enums.StripeModeTest, event("evt_8", stripe.EventTypeCheckoutSessionCompleted, false, map[string]interface{}{
		"id":               "cs_2",
		"customer":         nil,
		"customer_details": map[string]interface{}{"email": nil},
	}))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if out.Resynced || len(syncer.requests) != 0 {
		t.Fatalf("event without email must only acknowledge, got %+v", out)
	}
}

func TestObjectStringStopsAtNonMaps(t *testing.T) {
	object := map[string]interface{}{
		"billing_details": nil,
		"customer":        map[string]interface{}{"email": "e@example.org"},
		"list":            []interface{}{"x"},
	}
	if got := objectString(object, "billing_details", "email"); got != "" {
		t.Fatalf("expected empty for null parent, got %q", got)
	}
	if got := objectString(object, "list", "email"); got != "" {
		t.Fatalf("expected empty for slice parent, got %q", got)
	}
	if got := objectString(object, "customer", "email"); got != "e@example.org" {
		t.Fatalf("expected nested email, got %q", got)
	}
}
