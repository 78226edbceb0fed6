package enums

import (
	"fmt"
	"strings"
)

// StripeMode selects which Stripe account keys (test or live) a record belongs to.
type StripeMode string

const (
	StripeModeTest StripeMode = "test"
	StripeModeLive StripeMode = "live"
)

var validStripeModes = []StripeMode{
	StripeModeTest,
	StripeModeLive,
}

// String implements fmt.Stringer.
func (m StripeMode) String() string {
	return string(m)
}

// IsValid reports whether the value is known.
func (m StripeMode) IsValid() bool {
	for _, candidate := range validStripeModes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseStripeMode converts raw input into a StripeMode; input is case-insensitive.
func ParseStripeMode(value string) (StripeMode, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validStripeModes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid stripe mode %q", value)
}

// StripeModeFromLivemode maps the livemode flag on Stripe objects.
func StripeModeFromLivemode(live bool) StripeMode {
	if live {
		return StripeModeLive
	}
	return StripeModeTest
}
