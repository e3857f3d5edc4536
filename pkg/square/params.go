package square

import (
	"encoding/json"
	"strings"

	sq "github.com/square/square-go-sdk"
)

// PaymentCreateParams encapsulates the inputs for a Square payment.
type PaymentCreateParams struct {
	AmountMinor    int64
	Currency       string
	LocationID     string
	CustomerID     string
	SourceID       string
	IdempotencyKey string
	Note           string
	ReferenceID    string
}

func (p PaymentCreateParams) toSquareRequest(idempotencyKey string) *sq.CreatePaymentRequest {
	req := &sq.CreatePaymentRequest{
		IdempotencyKey: idempotencyKey,
		LocationID:     ptrString(p.LocationID),
		CustomerID:     ptrString(p.CustomerID),
		SourceID:       p.SourceID,
	}
	if p.AmountMinor > 0 {
		req.AmountMoney = moneyPtr(p.AmountMinor, p.Currency)
	}
	if trimmed := strings.TrimSpace(p.Note); trimmed != "" {
		req.Note = ptrString(trimmed)
	}
	if trimmed := strings.TrimSpace(p.ReferenceID); trimmed != "" {
		req.ReferenceID = ptrString(trimmed)
	}
	return req
}

// RefundCreateParams refunds all or part of a captured Square payment.
type RefundCreateParams struct {
	PaymentID      string
	AmountMinor    int64
	Currency       string
	Reason         string
	IdempotencyKey string
}

func (p RefundCreateParams) toSquareRequest(idempotencyKey string) *sq.RefundPaymentRequest {
	req := &sq.RefundPaymentRequest{
		IdempotencyKey: idempotencyKey,
		AmountMoney:    moneyPtr(p.AmountMinor, p.Currency),
		PaymentID:      ptrString(p.PaymentID),
	}
	if trimmed := strings.TrimSpace(p.Reason); trimmed != "" {
		req.Reason = ptrString(trimmed)
	}
	return req
}

// Payment is the subset of a Square payment the storefront persists.
type Payment struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
	Raw         map[string]any
}

// Refund is the subset of a Square refund the storefront persists.
type Refund struct {
	ID          string
	Status      string
	AmountMinor int64
	Currency    string
	Raw         map[string]any
}

// snapshotOf renders an SDK object through its JSON wire form so callers can
// persist it as-is.
func snapshotOf(v any) map[string]any {
	if v == nil {
		return map[string]any{}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return map[string]any{}
	}
	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func paymentFromSnapshot(raw map[string]any) *Payment {
	amount, currency := moneyFromSnapshot(raw["amount_money"])
	return &Payment{
		ID:          stringField(raw, "id"),
		Status:      stringField(raw, "status"),
		AmountMinor: amount,
		Currency:    currency,
		Raw:         raw,
	}
}

func refundFromSnapshot(raw map[string]any) *Refund {
	amount, currency := moneyFromSnapshot(raw["amount_money"])
	return &Refund{
		ID:          stringField(raw, "id"),
		Status:      stringField(raw, "status"),
		AmountMinor: amount,
		Currency:    currency,
		Raw:         raw,
	}
}

func moneyFromSnapshot(v any) (int64, string) {
	m, ok := v.(map[string]any)
	if !ok {
		return 0, ""
	}
	var amount int64
	if f, ok := m["amount"].(float64); ok {
		amount = int64(f)
	}
	return amount, stringField(m, "currency")
}

func stringField(m map[string]any, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}

func ptrString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}

func currencyPtr(code string) *sq.Currency {
	trimmed := strings.ToUpper(strings.TrimSpace(code))
	if trimmed == "" {
		trimmed = "JPY"
	}
	c := sq.Currency(trimmed)
	return &c
}

func moneyPtr(amount int64, currency string) *sq.Money {
	if amount == 0 {
		return nil
	}
	return &sq.Money{
		Amount:   int64Ptr(amount),
		Currency: currencyPtr(currency),
	}
}
