package enums

import (
	"fmt"
	"strings"
)

// ShippingProvider names the rate provider selected in app settings.
type ShippingProvider string

const (
	ShippingProviderEasyPost ShippingProvider = "easypost"
	ShippingProviderShippo   ShippingProvider = "shippo"
)

var validShippingProviders = []ShippingProvider{
	ShippingProviderEasyPost,
	ShippingProviderShippo,
}

// String implements fmt.Stringer.
func (p ShippingProvider) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p ShippingProvider) IsValid() bool {
	for _, candidate := range validShippingProviders {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParseShippingProvider converts raw input into a ShippingProvider.
func ParseShippingProvider(value string) (ShippingProvider, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validShippingProviders {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid shipping provider %q", value)
}
