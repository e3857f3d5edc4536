package gateways

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnsupportedGateway is returned when a gateway name is not registered.
	ErrUnsupportedGateway = errors.New("gateways: unsupported gateway")
	// ErrGatewayTimeout marks a call abandoned after the configured deadline.
	ErrGatewayTimeout = errors.New("gateways: gateway timeout")
)

// Customer is the payer block forwarded to the processor.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// PaymentRequest is the canonical payload every adapter receives.
type PaymentRequest struct {
	OrderID        uuid.UUID
	Amount         decimal.Decimal
	Currency       string
	Customer       Customer
	Metadata       map[string]string
	SourceToken    string
	IdempotencyKey string
}

// RefundRequest refunds a captured payment. A nil Amount refunds everything.
type RefundRequest struct {
	PaymentID      string
	Amount         *decimal.Decimal
	Currency       string
	Reason         string
	IdempotencyKey string
}

// Result is the transient outcome of an adapter call. Only identifiers, the
// mapped status and Snapshot are copied onto the order.
type Result struct {
	Success        bool
	PaymentID      string
	ClientSecret   string
	EphemeralKey   string
	CustomerHandle string
	Status         string
	Amount         decimal.Decimal
	Currency       string
	RefundID       string
	Snapshot       map[string]any
	ErrorMessage   string
}

// Failure builds a declined result.
func Failure(message string) *Result {
	if message == "" {
		message = "payment was declined"
	}
	return &Result{Success: false, ErrorMessage: message}
}

// Adapter is implemented once per payment processor.
type Adapter interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error)
	GetPaymentStatus(ctx context.Context, paymentID string) (*Result, error)
	RefundPayment(ctx context.Context, req RefundRequest) (*Result, error)
}

// Snapshot renders an SDK object through its JSON form, dropping the listed keys.
func Snapshot(v any, omit ...string) map[string]any {
	raw := map[string]any{}
	if v == nil {
		return raw
	}
	data, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return map[string]any{}
	}
	for _, key := range omit {
		delete(raw, key)
	}
	return raw
}
