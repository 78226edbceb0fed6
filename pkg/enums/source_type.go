package enums

import "fmt"

// SourceType names the Stripe object a transaction row was derived from.
type SourceType string

const (
	SourceTypeInvoice         SourceType = "invoice"
	SourceTypeCharge          SourceType = "charge"
	SourceTypePaymentIntent   SourceType = "payment_intent"
	SourceTypeCheckoutSession SourceType = "checkout_session"
)

var validSourceTypes = []SourceType{
	SourceTypeInvoice,
	SourceTypeCharge,
	SourceTypePaymentIntent,
	SourceTypeCheckoutSession,
}

// String implements fmt.Stringer.
func (s SourceType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s SourceType) IsValid() bool {
	for _, candidate := range validSourceTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseSourceType converts raw input into a SourceType.
func ParseSourceType(value string) (SourceType, error) {
	for _, candidate := range validSourceTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid source type %q", value)
}
