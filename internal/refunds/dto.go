package refunds

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// RefundInput asks for a refund of a captured order payment. A nil Amount
// refunds whatever is still captured.
type RefundInput struct {
	OrderID        uuid.UUID        `json:"-"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Reason         string           `json:"reason,omitempty" validate:"omitempty,max=255"`
	IdempotencyKey string           `json:"-"`
}

// RefundResult reports the refund just made and the running total.
type RefundResult struct {
	OrderID        uuid.UUID           `json:"order_id"`
	RefundID       string              `json:"refund_id"`
	Amount         decimal.Decimal     `json:"amount"`
	RefundedAmount decimal.Decimal     `json:"refunded_amount"`
	Status         enums.PaymentStatus `json:"payment_status"`
	Order          *models.Order       `json:"order"`
}
