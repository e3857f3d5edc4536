package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// Sources recorded on status change events.
const (
	SourceClient   = "client"
	SourcePoll     = "poll"
	SourceWebhook  = "webhook"
	SourceCheckout = "checkout"
	SourceRefund   = "refund"
)

// Reasons a gateway status update was dropped.
const (
	IgnoredSameStatus    = "same_status"
	IgnoredIllegal       = "illegal_transition"
	IgnoredUnknownStatus = "unknown_status"
	IgnoredStale         = "stale"
)

// PaymentStatusResult is returned by GetPaymentStatus.
type PaymentStatusResult struct {
	OrderID       uuid.UUID           `json:"order_id"`
	Status        enums.PaymentStatus `json:"payment_status"`
	Gateway       string              `json:"payment_gateway,omitempty"`
	PaymentID     string              `json:"payment_id,omitempty"`
	GatewayStatus string              `json:"gateway_status,omitempty"`
	Updated       bool                `json:"updated"`
	Order         *models.Order       `json:"order"`
}

// ApplyResult reports what a gateway status notification did to its order.
type ApplyResult struct {
	Order   *models.Order
	Applied bool
	// IgnoredReason is set when Applied is false.
	IgnoredReason string
}
