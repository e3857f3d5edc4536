package refunds

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	squareadapter "github.com/angelmondragon/storefront-payments/internal/gateways/square"
	"github.com/angelmondragon/storefront-payments/internal/orders"
	"github.com/angelmondragon/storefront-payments/internal/orders/orderstest"
	dbpkg "github.com/angelmondragon/storefront-payments/pkg/db"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-payments/pkg/square"
)

func newRefundService(t *testing.T) (Service, *gorm.DB, *orderstest.Adapter, *orderstest.Publisher) {
	t.Helper()

	db := orderstest.Open(t)
	repo := orders.NewRepository(db)
	transitions, err := orders.NewTransitioner(repo, nil)
	require.NoError(t, err)

	adapter := &orderstest.Adapter{GatewayName: "stripe"}
	registry, err := gateways.NewRegistry("stripe", adapter)
	require.NoError(t, err)

	publisher := &orderstest.Publisher{}
	svc, err := NewService(repo, dbpkg.NewFromGorm(db), publisher, registry, transitions, nil)
	require.NoError(t, err)
	return svc, db, adapter, publisher
}

func completedOrder(t *testing.T, db *gorm.DB) uuid.UUID {
	t.Helper()
	order, _ := orderstest.Seed(t, db, orderstest.Fixture{
		Status:    enums.PaymentStatusCompleted,
		Gateway:   "stripe",
		PaymentID: "pi_9",
		Total:     "100",
		Paid:      "100",
		Due:       "0",
		Currency:  "USD",
	})
	return order.ID
}

func amount(v string) *decimal.Decimal {
	d := decimal.RequireFromString(v)
	return &d
}

func TestRefundPaymentPartialThenFull(t *testing.T) {
	svc, db, adapter, publisher := newRefundService(t)
	orderID := completedOrder(t, db)
	adapter.Result = &gateways.Result{Success: true, RefundID: "re_1", Status: "succeeded", Snapshot: map[string]any{"id": "re_1"}}

	res, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID, Amount: amount("25"), Reason: "requested_by_customer"})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, res.Status)
	assert.True(t, res.RefundedAmount.Equal(decimal.NewFromInt(25)))
	require.Len(t, adapter.Refunds, 1)
	assert.Equal(t, "pi_9", adapter.Refunds[0].PaymentID)
	assert.Equal(t, "USD", adapter.Refunds[0].Currency)

	// A second partial accumulates.
	adapter.Result = &gateways.Result{Success: true, RefundID: "re_2", Status: "succeeded"}
	res, err = svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID, Amount: amount("30")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPartiallyRefunded, res.Status)
	assert.True(t, res.RefundedAmount.Equal(decimal.NewFromInt(55)))

	// No amount refunds the remainder.
	adapter.Result = &gateways.Result{Success: true, RefundID: "re_3", Status: "succeeded"}
	res, err = svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, res.Status)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(45)))
	require.NotNil(t, adapter.Refunds[2].Amount, "the remainder is sent explicitly after a partial refund")
	assert.True(t, adapter.Refunds[2].Amount.Equal(decimal.NewFromInt(45)))

	stored := orderstest.Reload(t, db, orderID)
	assert.Equal(t, enums.PaymentStatusRefunded, stored.PaymentStatus)
	require.NotNil(t, stored.RefundedAmount)
	assert.True(t, stored.RefundedAmount.Equal(decimal.NewFromInt(100)))
	require.NotNil(t, stored.RefundID)
	assert.Equal(t, "re_3", *stored.RefundID)

	require.Len(t, publisher.Events, 3)
	last, ok := publisher.Events[2].Data.(payloads.PaymentRefundedEvent)
	require.True(t, ok)
	assert.Equal(t, enums.EventPaymentRefunded, publisher.Events[2].EventType)
	assert.Equal(t, "re_3", last.RefundID)
}

func TestRefundPaymentFullRefundLeavesAmountToGateway(t *testing.T) {
	svc, db, adapter, _ := newRefundService(t)
	orderID := completedOrder(t, db)
	adapter.Result = &gateways.Result{Success: true, RefundID: "re_1"}

	res, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, res.Status)
	require.Len(t, adapter.Refunds, 1)
	assert.Nil(t, adapter.Refunds[0].Amount)
}

// squareAPI records refunds the way Square would see them.
type squareAPI struct {
	captured int64
	refunds  []int64
}

func (s *squareAPI) CreatePayment(context.Context, square.PaymentCreateParams) (*square.Payment, error) {
	return nil, nil
}

func (s *squareAPI) GetPayment(_ context.Context, id string) (*square.Payment, error) {
	return &square.Payment{ID: id, Status: "COMPLETED", AmountMinor: s.captured, Currency: "USD"}, nil
}

func (s *squareAPI) RefundPayment(_ context.Context, params square.RefundCreateParams) (*square.Refund, error) {
	s.refunds = append(s.refunds, params.AmountMinor)
	return &square.Refund{ID: fmt.Sprintf("sqr_%d", len(s.refunds)), Status: "PENDING", AmountMinor: params.AmountMinor, Currency: params.Currency}, nil
}

func TestRefundPaymentSquareRemainderAfterPartial(t *testing.T) {
	db := orderstest.Open(t)
	repo := orders.NewRepository(db)
	transitions, err := orders.NewTransitioner(repo, nil)
	require.NoError(t, err)

	api := &squareAPI{captured: 10000}
	adapter, err := squareadapter.NewAdapter(api, nil)
	require.NoError(t, err)
	registry, err := gateways.NewRegistry(squareadapter.Name, adapter)
	require.NoError(t, err)
	svc, err := NewService(repo, dbpkg.NewFromGorm(db), &orderstest.Publisher{}, registry, transitions, nil)
	require.NoError(t, err)

	order, _ := orderstest.Seed(t, db, orderstest.Fixture{
		Status:    enums.PaymentStatusCompleted,
		Gateway:   squareadapter.Name,
		PaymentID: "sq_pay_1",
		Total:     "100",
		Paid:      "100",
		Due:       "0",
		Currency:  "USD",
	})

	_, err = svc.RefundPayment(context.Background(), RefundInput{OrderID: order.ID, Amount: amount("25")})
	require.NoError(t, err)
	res, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: order.ID})
	require.NoError(t, err)

	assert.Equal(t, []int64{2500, 7500}, api.refunds)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(75)))
	assert.True(t, res.RefundedAmount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, enums.PaymentStatusRefunded, res.Status)
}

func TestRefundPaymentPartialCoveringEverythingIsFull(t *testing.T) {
	svc, db, adapter, _ := newRefundService(t)
	orderID := completedOrder(t, db)
	adapter.Result = &gateways.Result{Success: true, RefundID: "re_1"}

	res, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID, Amount: amount("100")})
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusRefunded, res.Status)
}

func TestRefundPaymentRejectsExcessAmount(t *testing.T) {
	svc, db, adapter, _ := newRefundService(t)
	orderID := completedOrder(t, db)

	for _, raw := range []string{"100.01", "0", "-3"} {
		_, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID, Amount: amount(raw)})
		require.Error(t, err, raw)
		typed := pkgerrors.As(err)
		require.NotNil(t, typed)
		assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
		assert.Contains(t, typed.Details(), "amount")
	}
	assert.Empty(t, adapter.Refunds)
}

func TestRefundPaymentRequiresGatewayPayment(t *testing.T) {
	svc, db, adapter, _ := newRefundService(t)
	order, _ := orderstest.Seed(t, db, orderstest.Fixture{Status: enums.PaymentStatusCompleted, Total: "10", Paid: "10", Method: enums.PaymentMethodCashOnDelivery})

	_, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: order.ID})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
	assert.Equal(t, "order cannot be refunded", typed.Message())
	assert.Empty(t, adapter.Refunds)
}

func TestRefundPaymentRequiresCapturedStatus(t *testing.T) {
	svc, db, adapter, _ := newRefundService(t)
	order, _ := orderstest.Seed(t, db, orderstest.Fixture{Status: enums.PaymentStatusInitiated, Gateway: "stripe", PaymentID: "pi_1", Total: "10", Due: "10"})

	_, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: order.ID})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, adapter.Refunds)
}

func TestRefundPaymentGatewayFailureKeepsOrder(t *testing.T) {
	svc, db, adapter, publisher := newRefundService(t)
	orderID := completedOrder(t, db)
	adapter.Result = gateways.Failure("refund failed")

	_, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: orderID, Amount: amount("10")})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	stored := orderstest.Reload(t, db, orderID)
	assert.Equal(t, enums.PaymentStatusCompleted, stored.PaymentStatus)
	assert.Nil(t, stored.RefundedAmount)
	assert.Empty(t, publisher.Events)
}

func TestRefundPaymentUnknownOrder(t *testing.T) {
	svc, _, _, _ := newRefundService(t)
	_, err := svc.RefundPayment(context.Background(), RefundInput{OrderID: uuid.New()})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
