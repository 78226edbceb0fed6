package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// ActiveSubscription caches a donor's Stripe subscription as of the last sync.
type ActiveSubscription struct {
	ID                   uuid.UUID                `gorm:"type:uuid;primaryKey" json:"id"`
	StripeSubscriptionID string                   `gorm:"column:stripe_subscription_id;not null;uniqueIndex:ux_asc_subscription_mode" json:"stripe_subscription_id"`
	StripeMode           enums.StripeMode         `gorm:"column:stripe_mode;not null;uniqueIndex:ux_asc_subscription_mode" json:"stripe_mode"`
	StripeCustomerID     string                   `gorm:"column:stripe_customer_id;not null" json:"stripe_customer_id"`
	CustomerEmail        string                   `gorm:"column:customer_email;not null;index" json:"customer_email"`
	Status               enums.SubscriptionStatus `gorm:"column:status;not null" json:"status"`
	Amount               decimal.Decimal          `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Currency             string                   `gorm:"column:currency;not null" json:"currency"`
	Interval             string                   `gorm:"column:interval" json:"interval"`
	CurrentPeriodEnd     *time.Time               `gorm:"column:current_period_end" json:"current_period_end,omitempty"`
	Designation          string                   `gorm:"column:designation;not null" json:"designation"`
	SyncedAt             time.Time                `gorm:"column:synced_at;not null" json:"synced_at"`
	CreatedAt            time.Time                `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time                `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (ActiveSubscription) TableName() string { return "active_subscriptions_cache" }
