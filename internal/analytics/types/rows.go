package types

import (
	"time"

	cbigquery "cloud.google.com/go/bigquery"
)

// PaymentEventRow mirrors the payment_events BigQuery schema. Amounts are
// stored in minor units of Currency.
type PaymentEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       string             `bigquery:"order_id"`
	CustomerID    *string            `bigquery:"customer_id"`
	Gateway       *string            `bigquery:"gateway"`
	PaymentID     *string            `bigquery:"payment_id"`
	PaymentMethod *string            `bigquery:"payment_method"`
	FromStatus    *string            `bigquery:"from_status"`
	ToStatus      *string            `bigquery:"to_status"`
	Source        *string            `bigquery:"source"`
	Currency      *string            `bigquery:"currency"`
	AmountMinor   *int64             `bigquery:"amount_minor"`
	RefundedMinor *int64             `bigquery:"refunded_minor"`
	RefundID      *string            `bigquery:"refund_id"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// PaymentEventsPartitionField is the daily partition column of payment_events.
const PaymentEventsPartitionField = "occurred_at"

// PaymentEventsSchema is used when the worker provisions payment_events.
var PaymentEventsSchema = cbigquery.Schema{
	{Name: "event_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "event_type", Type: cbigquery.StringFieldType, Required: true},
	{Name: "occurred_at", Type: cbigquery.TimestampFieldType, Required: true},
	{Name: "order_id", Type: cbigquery.StringFieldType, Required: true},
	{Name: "customer_id", Type: cbigquery.StringFieldType},
	{Name: "gateway", Type: cbigquery.StringFieldType},
	{Name: "payment_id", Type: cbigquery.StringFieldType},
	{Name: "payment_method", Type: cbigquery.StringFieldType},
	{Name: "from_status", Type: cbigquery.StringFieldType},
	{Name: "to_status", Type: cbigquery.StringFieldType},
	{Name: "source", Type: cbigquery.StringFieldType},
	{Name: "currency", Type: cbigquery.StringFieldType},
	{Name: "amount_minor", Type: cbigquery.IntegerFieldType},
	{Name: "refunded_minor", Type: cbigquery.IntegerFieldType},
	{Name: "refund_id", Type: cbigquery.StringFieldType},
	{Name: "payload", Type: cbigquery.JSONFieldType},
}
