package router

import (
	"strings"

	cbigquery "cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-payments/internal/analytics/types"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	"github.com/angelmondragon/storefront-payments/pkg/money"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/payloads"
)

func baseRow(envelope types.Envelope) types.PaymentEventRow {
	row := types.PaymentEventRow{
		EventID:    envelope.EventID,
		EventType:  string(envelope.EventType),
		OccurredAt: envelope.OccurredAt,
		OrderID:    envelope.AggregateID,
	}
	if len(envelope.Payload) > 0 {
		row.Payload = cbigquery.NullJSON{Valid: true, JSONVal: string(envelope.Payload)}
	}
	return row
}

func pendingRow(row *types.PaymentEventRow, event *payloads.PaymentPendingEvent) {
	row.OrderID = event.OrderID.String()
	row.CustomerID = uuidPtr(event.CustomerID)
	row.PaymentMethod = stringPtr(event.PaymentMethod.String())
	row.ToStatus = stringPtr(enums.PaymentStatusPending.String())
	row.Currency = stringPtr(event.Currency)
	row.AmountMinor = minorPtr(event.Amount, event.Currency)
}

func initiatedRow(row *types.PaymentEventRow, event *payloads.PaymentInitiatedEvent) {
	row.OrderID = event.OrderID.String()
	row.CustomerID = uuidPtr(event.CustomerID)
	row.Gateway = stringPtr(event.Gateway)
	row.PaymentID = stringPtr(event.PaymentID)
	row.PaymentMethod = stringPtr(event.PaymentMethod.String())
	row.ToStatus = stringPtr(event.Status.String())
	row.Currency = stringPtr(event.Currency)
	row.AmountMinor = minorPtr(event.Amount, event.Currency)
}

func statusChangedRow(row *types.PaymentEventRow, event *payloads.PaymentStatusChangedEvent) {
	row.OrderID = event.OrderID.String()
	row.Gateway = stringPtr(event.Gateway)
	row.PaymentID = stringPtr(event.PaymentID)
	row.FromStatus = stringPtr(event.From.String())
	row.ToStatus = stringPtr(event.To.String())
	row.Source = stringPtr(event.Source)
	if !event.ChangedAt.IsZero() {
		row.OccurredAt = event.ChangedAt.UTC()
	}
}

func refundedRow(row *types.PaymentEventRow, event *payloads.PaymentRefundedEvent) {
	row.OrderID = event.OrderID.String()
	row.Gateway = stringPtr(event.Gateway)
	row.PaymentID = stringPtr(event.PaymentID)
	row.RefundID = stringPtr(event.RefundID)
	row.ToStatus = stringPtr(event.Status.String())
	// Refund events carry no currency, so two-decimal minor units are assumed.
	row.AmountMinor = minorPtr(event.Amount, "")
	row.RefundedMinor = minorPtr(event.RefundedAmount, "")
}

func uuidPtr(id uuid.UUID) *string {
	if id == uuid.Nil {
		return nil
	}
	return stringPtr(id.String())
}

func minorPtr(amount decimal.Decimal, currency string) *int64 {
	minor, err := money.ToMinorUnits(amount, currency)
	if err != nil {
		return nil
	}
	return &minor
}

// stringPtr returns a trimmed pointer, or nil for blank input.
func stringPtr(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
