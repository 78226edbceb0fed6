package enums

import (
	"fmt"
	"strings"
)

// SubscriptionStatus is a Stripe subscription state as cached in
// active_subscriptions_cache.
type SubscriptionStatus string

const (
	SubscriptionStatusTrialing          SubscriptionStatus = "trialing"
	SubscriptionStatusActive            SubscriptionStatus = "active"
	SubscriptionStatusPastDue           SubscriptionStatus = "past_due"
	SubscriptionStatusCanceled          SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete        SubscriptionStatus = "incomplete"
	SubscriptionStatusIncompleteExpired SubscriptionStatus = "incomplete_expired"
	SubscriptionStatusUnpaid            SubscriptionStatus = "unpaid"
	SubscriptionStatusPaused            SubscriptionStatus = "paused"
)

// subscriptionBilling marks which states still charge the donor each period.
var subscriptionBilling = map[SubscriptionStatus]bool{
	SubscriptionStatusTrialing:          true,
	SubscriptionStatusActive:            true,
	SubscriptionStatusPastDue:           true,
	SubscriptionStatusCanceled:          false,
	SubscriptionStatusIncomplete:        false,
	SubscriptionStatusIncompleteExpired: false,
	SubscriptionStatusUnpaid:            false,
	SubscriptionStatusPaused:            false,
}

func (s SubscriptionStatus) String() string { return string(s) }

func (s SubscriptionStatus) IsValid() bool {
	_, ok := subscriptionBilling[s]
	return ok
}

// IsCurrent reports whether the subscription still bills the donor.
func (s SubscriptionStatus) IsCurrent() bool {
	return subscriptionBilling[s]
}

// ParseSubscriptionStatus accepts Stripe's status strings in any case.
func ParseSubscriptionStatus(value string) (SubscriptionStatus, error) {
	s := SubscriptionStatus(strings.ToLower(strings.TrimSpace(value)))
	if !s.IsValid() {
		return "", fmt.Errorf("invalid subscription status %q", value)
	}
	return s, nil
}
