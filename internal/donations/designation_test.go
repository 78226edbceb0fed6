package donations

import (
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

func TestDesignationLabels(t *testing.T) {
	if got := General().Label(); got != "General Support" {
		t.Fatalf("unexpected general label %q", got)
	}
	d := ForSponsorship(models.Sponsorship{ID: uuid.New(), SponsoredName: "  Ana  "})
	if got := d.Label(); got != "Sponsorship: Ana" {
		t.Fatalf("unexpected sponsorship label %q", got)
	}
	if d.SponsorshipID == nil {
		t.Fatal("expected sponsorship id")
	}

	parsed := ParseLabel("Sponsorship: Ana")
	if parsed.Kind != enums.DesignationKindSponsorship || parsed.Name != "Ana" {
		t.Fatalf("unexpected parse %+v", parsed)
	}
	if ParseLabel("Building fund").Kind != enums.DesignationKindGeneral {
		t.Fatal("expected unknown label to be general")
	}
	if ParseLabel("Sponsorship: ").Kind != enums.DesignationKindGeneral {
		t.Fatal("expected empty sponsorship name to be general")
	}
}

func TestDesignationMapResolve(t *testing.T) {
	first := models.Sponsorship{ID: uuid.New(), SponsoredName: "Ana", StripeCustomerID: strPtr("cus_1"), StripeSubscriptionID: strPtr("sub_1")}
	second := models.Sponsorship{ID: uuid.New(), SponsoredName: "Luis", StripeCustomerID: strPtr("cus_1"), StripeSubscriptionID: strPtr("sub_2")}
	unnamed := models.Sponsorship{ID: uuid.New(), StripeCustomerID: strPtr("cus_2")}
	m := NewDesignationMap([]models.Sponsorship{first, second, unnamed})

	cases := []struct {
		name     string
		sub      string
		customer string
		meta     map[string]string
		want     string
	}{
		{name: "subscription wins", sub: "sub_2", customer: "cus_1", want: "Sponsorship: Luis"},
		{name: "customer uses first sponsorship", customer: "cus_1", want: "Sponsorship: Ana"},
		{name: "unnamed sponsorship ignored", customer: "cus_2", want: "General Support"},
		{name: "unknown ids", sub: "sub_x", customer: "cus_x", want: "General Support"},
		{name: "plain donation metadata", sub: "sub_1", meta: map[string]string{"type": "Donation"}, want: "General Support"},
		{name: "general designation metadata", customer: "cus_1", meta: map[string]string{"designation": "general"}, want: "General Support"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := m.Resolve(tc.sub, tc.customer, tc.meta).Label(); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
