package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

// DonationSyncStatus records the latest sync attempt for one donor and mode.
type DonationSyncStatus struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	Email              string           `gorm:"column:email;not null;uniqueIndex:ux_dss_email_mode" json:"email"`
	StripeMode         enums.StripeMode `gorm:"column:stripe_mode;not null;uniqueIndex:ux_dss_email_mode" json:"stripe_mode"`
	Status             enums.SyncStatus `gorm:"column:status;not null" json:"status"`
	ErrorMessage       *string          `gorm:"column:error_message" json:"error_message,omitempty"`
	TransactionsSynced int              `gorm:"column:transactions_synced;not null;default:0" json:"transactions_synced"`
	LastStartedAt      *time.Time       `gorm:"column:last_started_at" json:"last_started_at,omitempty"`
	LastFinishedAt     *time.Time       `gorm:"column:last_finished_at" json:"last_finished_at,omitempty"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (DonationSyncStatus) TableName() string { return "donation_sync_status" }
