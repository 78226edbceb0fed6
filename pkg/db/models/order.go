package models

import (
	"time"

	"github.com/google/uuid"
)

// Order is a marketplace purchase; its payment intent is never a donation.
type Order struct {
	ID                      uuid.UUID `gorm:"type:uuid;primaryKey"`
	StripePaymentIntentID   *string   `gorm:"column:stripe_payment_intent_id"`
	StripeCheckoutSessionID *string   `gorm:"column:stripe_checkout_session_id"`
	CustomerEmail           string    `gorm:"column:customer_email;not null"`
	Status                  string    `gorm:"column:status;not null"`
	CreatedAt               time.Time `gorm:"column:created_at;autoCreateTime"`
}

// OrderItem is one product line on an Order.
type OrderItem struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductName    string    `gorm:"column:product_name;not null"`
	Quantity       int       `gorm:"column:quantity;not null"`
	WeightOunces   *float64  `gorm:"column:weight_ounces"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
}
