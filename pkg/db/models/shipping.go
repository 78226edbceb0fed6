package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// ShippingCalculationLog is written for every shipping quote attempt.
type ShippingCalculationLog struct {
	ID                 uuid.UUID        `gorm:"type:uuid;primaryKey"`
	SessionID          string           `gorm:"column:session_id;not null;index"`
	Provider           string           `gorm:"column:provider;not null"`
	DestinationPostal  string           `gorm:"column:destination_postal_code"`
	DestinationCountry string           `gorm:"column:destination_country"`
	WeightOunces       float64          `gorm:"column:weight_ounces;not null"`
	Amount             *decimal.Decimal `gorm:"column:amount;type:numeric(12,2)"`
	Currency           *string          `gorm:"column:currency"`
	ServiceLevel       *string          `gorm:"column:service_level"`
	ErrorMessage       *string          `gorm:"column:error_message"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
}

func (ShippingCalculationLog) TableName() string { return "shipping_calculation_log" }

// AppSetting is a key/value row editable by admins.
type AppSetting struct {
	Key       string         `gorm:"column:key;primaryKey"`
	Value     datatypes.JSON `gorm:"column:value;type:jsonb;not null"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
