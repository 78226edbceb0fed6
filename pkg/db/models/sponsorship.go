package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// Sponsorship is a recurring gift tied to a named sponsored person.
type Sponsorship struct {
	ID                   uuid.UUID        `gorm:"type:uuid;primaryKey"`
	SponsorEmail         string           `gorm:"column:sponsor_email;not null"`
	SponsoredName        string           `gorm:"column:sponsored_name;not null"`
	StripeSubscriptionID *string          `gorm:"column:stripe_subscription_id"`
	StripeCustomerID     *string          `gorm:"column:stripe_customer_id"`
	StripeMode           enums.StripeMode `gorm:"column:stripe_mode;not null"`
	Status               string           `gorm:"column:status;not null"`
	CreatedAt            time.Time        `gorm:"column:created_at;autoCreateTime"`
}

// SponsorshipReceipt is a receipt issued for one sponsorship payment.
type SponsorshipReceipt struct {
	ID              uuid.UUID  `gorm:"type:uuid;primaryKey"`
	SponsorshipID   *uuid.UUID `gorm:"column:sponsorship_id;type:uuid"`
	StripeInvoiceID *string    `gorm:"column:stripe_invoice_id"`
	StripeChargeID  *string    `gorm:"column:stripe_charge_id"`
	ReceiptNumber   string     `gorm:"column:receipt_number;not null"`
	IssuedAt        time.Time  `gorm:"column:issued_at;not null"`
}
