package donations

import (
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

const (
	generalLabel      = "General Support"
	sponsorshipPrefix = "Sponsorship: "
)

// Designation says what a payment was for.
type Designation struct {
	Kind          enums.DesignationKind
	Name          string
	SponsorshipID *uuid.UUID
}

// General is the designation for unrestricted gifts.
func General() Designation {
	return Designation{Kind: enums.DesignationKindGeneral}
}

// ForSponsorship designates money to a named sponsorship.
func ForSponsorship(s models.Sponsorship) Designation {
	id := s.ID
	return Designation{
		Kind:          enums.DesignationKindSponsorship,
		Name:          strings.TrimSpace(s.SponsoredName),
		SponsorshipID: &id,
	}
}

// Label renders the stored label, e.g. "Sponsorship: Ana".
func (d Designation) Label() string {
	if d.Kind != enums.DesignationKindSponsorship || d.Name == "" {
		return generalLabel
	}
	return sponsorshipPrefix + d.Name
}

// ParseLabel reads a stored label back. Unknown text is treated as general.
func ParseLabel(label string) Designation {
	name, ok := strings.CutPrefix(strings.TrimSpace(label), sponsorshipPrefix)
	if !ok || strings.TrimSpace(name) == "" {
		return General()
	}
	return Designation{Kind: enums.DesignationKindSponsorship, Name: strings.TrimSpace(name)}
}

// DesignationMap resolves Stripe subscription and customer ids to sponsorships.
// It is built per sync run and never shared between runs.
type DesignationMap struct {
	bySubscription map[string]Designation
	byCustomer     map[string]Designation
}

// NewDesignationMap indexes sponsorships. When a customer funds several
// sponsorships the first one in the slice wins for customer-level lookups.
func NewDesignationMap(sponsorships []models.Sponsorship) DesignationMap {
	m := DesignationMap{
		bySubscription: make(map[string]Designation, len(sponsorships)),
		byCustomer:     make(map[string]Designation, len(sponsorships)),
	}
	for _, s := range sponsorships {
		d := ForSponsorship(s)
		if d.Name == "" {
			continue
		}
		if id := deref(s.StripeSubscriptionID); id != "" {
			if _, exists := m.bySubscription[id]; !exists {
				m.bySubscription[id] = d
			}
		}
		if id := deref(s.StripeCustomerID); id != "" {
			if _, exists := m.byCustomer[id]; !exists {
				m.byCustomer[id] = d
			}
		}
	}
	return m
}

// Resolve picks the designation for one payment: subscription match, then
// customer match, then general. Metadata marking a plain donation forces general.
func (m DesignationMap) Resolve(subscriptionID, customerID string, metadata map[string]string) Designation {
	if isPlainDonation(metadata) {
		return General()
	}
	if subscriptionID != "" {
		if d, ok := m.bySubscription[subscriptionID]; ok {
			return d
		}
	}
	if customerID != "" {
		if d, ok := m.byCustomer[customerID]; ok {
			return d
		}
	}
	return General()
}

func isPlainDonation(metadata map[string]string) bool {
	if strings.EqualFold(strings.TrimSpace(metadata["type"]), "donation") {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(metadata["designation"]), "general")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
