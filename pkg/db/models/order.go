package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-payments/pkg/enums"
	"github.com/angelmondragon/storefront-payments/pkg/types"
)

// Order carries the payment state of a submitted checkout. Rows are never
// deleted, only transitioned.
type Order struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	CustomerID       uuid.UUID            `gorm:"column:customer_id;type:uuid;not null" json:"customer_id"`
	Subtotal         decimal.Decimal      `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	Tax              decimal.Decimal      `gorm:"column:tax;type:numeric(12,2);not null;default:0" json:"tax"`
	ShippingCost     decimal.Decimal      `gorm:"column:shipping_cost;type:numeric(12,2);not null;default:0" json:"shipping_cost"`
	Total            decimal.Decimal      `gorm:"column:total;type:numeric(12,2);not null" json:"total"`
	PaymentStatus    enums.PaymentStatus  `gorm:"column:payment_status;type:payment_status;not null;default:'pending'" json:"payment_status"`
	PaymentMethod    *enums.PaymentMethod `gorm:"column:payment_method;type:payment_method" json:"payment_method,omitempty"`
	PaymentGateway   *string              `gorm:"column:payment_gateway" json:"payment_gateway,omitempty"`
	PaymentID        *string              `gorm:"column:payment_id" json:"payment_id,omitempty"`
	PaymentData      types.JSONMap        `gorm:"column:payment_data;type:jsonb" json:"-"`
	Currency         *string              `gorm:"column:currency;size:3" json:"currency,omitempty"`
	DuePaymentAmount decimal.Decimal      `gorm:"column:due_payment_amount;type:numeric(12,2);not null;default:0" json:"due_payment_amount"`
	PaidAmount       decimal.Decimal      `gorm:"column:paid_amount;type:numeric(12,2);not null;default:0" json:"paid_amount"`
	RefundID         *string              `gorm:"column:refund_id" json:"refund_id,omitempty"`
	RefundData       types.JSONMap        `gorm:"column:refund_data;type:jsonb" json:"-"`
	RefundedAmount   *decimal.Decimal     `gorm:"column:refunded_amount;type:numeric(12,2)" json:"refunded_amount,omitempty"`
	Items            []OrderItem          `gorm:"foreignKey:OrderID" json:"items,omitempty"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

// HasGatewayPayment reports whether the order was routed through a processor.
func (o Order) HasGatewayPayment() bool {
	return o.PaymentGateway != nil && *o.PaymentGateway != "" && o.PaymentID != nil && *o.PaymentID != ""
}

// OrderItem reserves UnitQuantity units of a stock record.
type OrderItem struct {
	ID           uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;not null" json:"order_id"`
	StockID      uuid.UUID       `gorm:"column:stock_id;type:uuid;not null" json:"stock_id"`
	UnitPrice    decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unit_price"`
	UnitQuantity int             `gorm:"column:unit_quantity;not null" json:"unit_quantity"`
	UnitDiscount decimal.Decimal `gorm:"column:unit_discount;type:numeric(12,2);not null;default:0" json:"unit_discount"`
}

// Stock is the inventory counter for a product variant.
type Stock struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	SKU       string    `gorm:"column:sku;not null"`
	Quantity  int       `gorm:"column:quantity;not null;default:0"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
