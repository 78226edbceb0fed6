package shipping

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/donation-ledger/pkg/db/models"
	"github.com/angelmondragon/donation-ledger/pkg/enums"
)

const providerSettingKey = "shipping_provider"

// Repository reads storefront orders and app settings and writes the quote log.
type Repository interface {
	FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error)
	ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error)
	ProviderSetting(ctx context.Context) (enums.ShippingProvider, error)
	LogCalculation(ctx context.Context, entry *models.ShippingCalculationLog) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a shipping repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindOrderBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("stripe_checkout_session_id = ?", sessionID).
		Order("created_at DESC").
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListOrderItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderItem, error) {
	var items []models.OrderItem
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("product_name ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// ProviderSetting returns the configured provider, or easypost when the row is
// missing or holds an unknown value.
func (r *repository) ProviderSetting(ctx context.Context) (enums.ShippingProvider, error) {
	var setting models.AppSetting
	err := r.db.WithContext(ctx).Where("key = ?", providerSettingKey).First(&setting).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return enums.ShippingProviderEasyPost, nil
	}
	if err != nil {
		return "", err
	}
	var raw string
	if err := json.Unmarshal(setting.Value, &raw); err != nil {
		raw = strings.Trim(string(setting.Value), `"`)
	}
	provider, err := enums.ParseShippingProvider(raw)
	if err != nil {
		return enums.ShippingProviderEasyPost, nil
	}
	return provider, nil
}

func (r *repository) LogCalculation(ctx context.Context, entry *models.ShippingCalculationLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}
