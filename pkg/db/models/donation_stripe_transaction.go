package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// DonationStripeTransaction is one reconciled Stripe payment for a donor.
// ExternalKey holds the invoice id when the payment has one, otherwise the charge id.
type DonationStripeTransaction struct {
	ID                      uuid.UUID               `gorm:"type:uuid;primaryKey" json:"id"`
	ExternalKey             string                  `gorm:"column:external_key;not null;uniqueIndex:ux_dst_external_mode" json:"external_key"`
	StripeMode              enums.StripeMode        `gorm:"column:stripe_mode;not null;uniqueIndex:ux_dst_external_mode" json:"stripe_mode"`
	StripeInvoiceID         *string                 `gorm:"column:stripe_invoice_id" json:"stripe_invoice_id,omitempty"`
	StripeChargeID          *string                 `gorm:"column:stripe_charge_id" json:"stripe_charge_id,omitempty"`
	StripePaymentIntentID   *string                 `gorm:"column:stripe_payment_intent_id" json:"stripe_payment_intent_id,omitempty"`
	StripeSubscriptionID    *string                 `gorm:"column:stripe_subscription_id" json:"stripe_subscription_id,omitempty"`
	StripeCustomerID        *string                 `gorm:"column:stripe_customer_id" json:"stripe_customer_id,omitempty"`
	StripeCheckoutSessionID *string                 `gorm:"column:stripe_checkout_session_id" json:"stripe_checkout_session_id,omitempty"`
	CustomerEmail           string                  `gorm:"column:customer_email;not null;index" json:"customer_email"`
	SourceType              enums.SourceType        `gorm:"column:source_type;not null" json:"source_type"`
	Amount                  decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency                string                  `gorm:"column:currency;not null" json:"currency"`
	Status                  enums.TransactionStatus `gorm:"column:status;not null" json:"status"`
	RefundedAmount          decimal.Decimal         `gorm:"column:refunded_amount;type:numeric(12,2);not null" json:"refunded_amount"`
	TransactionCreatedAt    time.Time               `gorm:"column:transaction_created_at;not null" json:"transaction_created_at"`
	Designation             string                  `gorm:"column:designation;not null" json:"designation"`
	DesignationKind         enums.DesignationKind   `gorm:"column:designation_kind;not null" json:"designation_kind"`
	SponsorshipID           *uuid.UUID              `gorm:"column:sponsorship_id;type:uuid" json:"sponsorship_id,omitempty"`
	Metadata                datatypes.JSONMap       `gorm:"column:metadata;type:jsonb" json:"metadata"`
	DonationID              *uuid.UUID              `gorm:"column:donation_id;type:uuid" json:"donation_id,omitempty"`
	ReceiptID               *uuid.UUID              `gorm:"column:receipt_id;type:uuid" json:"receipt_id,omitempty"`
	SyncedAt                time.Time               `gorm:"column:synced_at;not null" json:"synced_at"`
	CreatedAt               time.Time               `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time               `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}
