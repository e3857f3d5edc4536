package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// ProcessPaymentInput is the payment request for an existing order.
type ProcessPaymentInput struct {
	OrderID        uuid.UUID           `json:"order_id" validate:"required"`
	Name           string              `json:"name" validate:"required,max=120"`
	Email          string              `json:"email" validate:"required,email"`
	Phone          string              `json:"phone,omitempty" validate:"omitempty,phone"`
	PaymentMethod  enums.PaymentMethod `json:"payment_method" validate:"required,oneof=card wallet bank_transfer cash_on_delivery buy_now_pay_later home_delivery_payment"`
	PaymentGateway string              `json:"payment_gateway,omitempty" validate:"omitempty,max=40"`
	Currency       string              `json:"currency" validate:"required,currency"`
	Amount         decimal.Decimal     `json:"amount" validate:"gte=0"`
	PaymentToken   string              `json:"payment_token,omitempty"`

	// IdempotencyKey is forwarded to the processor so a retried request does
	// not create a second payment.
	IdempotencyKey string `json:"-"`
}

// ProcessPaymentResult is what the client needs to confirm the payment.
type ProcessPaymentResult struct {
	OrderID            uuid.UUID           `json:"order_id"`
	PaymentMethod      enums.PaymentMethod `json:"payment_method"`
	PaymentMethodLabel string              `json:"payment_method_label"`
	Gateway            string              `json:"payment_gateway,omitempty"`
	PaymentID          string              `json:"payment_id,omitempty"`
	PaymentIntent      string              `json:"payment_intent,omitempty"`
	EphemeralKey       string              `json:"ephemeral_key,omitempty"`
	Customer           string              `json:"customer,omitempty"`
	Amount             decimal.Decimal     `json:"amount"`
	Currency           string              `json:"currency"`
	Order              *models.Order       `json:"order"`
}
