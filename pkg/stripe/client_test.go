package stripe

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/donation-ledger/pkg/config"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

func TestNewClientRejectsMismatchedKey(t *testing.T) {
	if _, err := NewClient(context.Background(), enums.StripeModeLive, "sk_test_123", "", nil, nil); err == nil {
		t.Fatal("expected live mode to reject a test key")
	}
	if _, err := NewClient(context.Background(), enums.StripeModeTest, "rk_test_123", "", nil, nil); err != nil {
		t.Fatalf("restricted test key should be accepted: %v", err)
	}
	if _, err := NewClient(context.Background(), enums.StripeMode("prod"), "sk_live_1", "", nil, nil); err == nil {
		t.Fatal("expected unknown mode to fail")
	}
	if _, err := NewClient(context.Background(), enums.StripeModeTest, "  ", "", nil, nil); err == nil {
		t.Fatal("expected missing key to fail")
	}
}

func TestNewClientsBuildsConfiguredModesOnly(t *testing.T) {
	clients, err := NewClients(context.Background(), config.StripeConfig{
		TestAPIKey:        "sk_test_abc",
		TestWebhookSecret: "whsec_test",
		RequestsPerSecond: 10,
		Burst:             2,
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	test, err := clients.ForMode(enums.StripeModeTest)
	if err != nil {
		t.Fatalf("test mode missing: %v", err)
	}
	if test.Mode() != enums.StripeModeTest || test.SigningSecret() != "whsec_test" {
		t.Fatalf("unexpected client %+v", test)
	}
	if _, err := clients.ForMode(enums.StripeModeLive); err == nil {
		t.Fatal("live mode should not be configured")
	}
}

func TestNewClientsRequiresAKey(t *testing.T) {
	if _, err := NewClients(context.Background(), config.StripeConfig{}, nil); err == nil {
		t.Fatal("expected error without any key")
	}
}

func TestWindowRangeParams(t *testing.T) {
	if (Window{}).rangeParams() != nil {
		t.Fatal("empty window should not filter")
	}
	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	until := since.Add(24 * time.Hour)
	r := Window{Since: since, Until: until}.rangeParams()
	if r.GreaterThanOrEqual != since.Unix() || r.LesserThan != until.Unix() {
		t.Fatalf("unexpected range %+v", r)
	}
}

func TestConstructEventVerifiesSignature(t *testing.T) {
	client, err := NewClient(context.Background(), enums.StripeModeTest, "sk_test_1", "whsec_abc", nil, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	payload := []byte(`{"id":"evt_1","object":"event","type":"charge.succeeded","livemode":false,"data":{"object":{"id":"ch_1","object":"charge"}}}`)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: "whsec_abc"})

	event, err := client.ConstructEvent(signed.Payload, signed.Header)
	if err != nil {
		t.Fatalf("expected valid signature: %v", err)
	}
	if event.ID != "evt_1" {
		t.Fatalf("unexpected event id %s", event.ID)
	}

	if _, err := client.ConstructEvent(payload, strings.Replace(signed.Header, "v1=", "v1=00", 1)); err == nil {
		t.Fatal("expected tampered signature to fail")
	}
}
