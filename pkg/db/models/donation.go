package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// Donation is a gift recorded by the app at checkout time.
type Donation struct {
	ID                      uuid.UUID        `gorm:"type:uuid;primaryKey"`
	DonorEmail              string           `gorm:"column:donor_email;not null"`
	StripeCustomerID        *string          `gorm:"column:stripe_customer_id"`
	StripePaymentIntentID   *string          `gorm:"column:stripe_payment_intent_id"`
	StripeChargeID          *string          `gorm:"column:stripe_charge_id"`
	StripeInvoiceID         *string          `gorm:"column:stripe_invoice_id"`
	StripeCheckoutSessionID *string          `gorm:"column:stripe_checkout_session_id"`
	AmountCents             int64            `gorm:"column:amount_cents;not null"`
	Currency                string           `gorm:"column:currency;not null"`
	StripeMode              enums.StripeMode `gorm:"column:stripe_mode;not null"`
	CreatedAt               time.Time        `gorm:"column:created_at;autoCreateTime"`
}
