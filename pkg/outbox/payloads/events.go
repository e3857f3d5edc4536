package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// PaymentPendingEvent is emitted when an order settles into PENDING without a
// gateway round trip (bank transfer, cash on delivery, deferred payment).
type PaymentPendingEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency,omitempty"`
}

// PaymentInitiatedEvent records the gateway payment created for an order.
type PaymentInitiatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	CustomerID    uuid.UUID           `json:"customer_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Gateway       string              `json:"gateway"`
	PaymentID     string              `json:"payment_id"`
	Status        enums.PaymentStatus `json:"status"`
	Amount        decimal.Decimal     `json:"amount"`
	Currency      string              `json:"currency"`
}

// PaymentStatusChangedEvent captures a compare-and-swap status transition.
type PaymentStatusChangedEvent struct {
	OrderID   uuid.UUID           `json:"order_id"`
	Gateway   string              `json:"gateway,omitempty"`
	PaymentID string              `json:"payment_id,omitempty"`
	From      enums.PaymentStatus `json:"from"`
	To        enums.PaymentStatus `json:"to"`
	Source    string              `json:"source"`
	ChangedAt time.Time           `json:"changed_at"`
}

// PaymentRefundedEvent is emitted after a gateway refund is recorded.
type PaymentRefundedEvent struct {
	OrderID        uuid.UUID           `json:"order_id"`
	Gateway        string              `json:"gateway"`
	PaymentID      string              `json:"payment_id"`
	RefundID       string              `json:"refund_id"`
	Amount         decimal.Decimal     `json:"amount"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	Status         enums.PaymentStatus `json:"status"`
}

// GuestCustomerCreatedEvent announces a guest identity minted at checkout.
type GuestCustomerCreatedEvent struct {
	CustomerID uuid.UUID `json:"customer_id"`
	Email      string    `json:"email"`
}
