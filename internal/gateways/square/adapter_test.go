package square

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/square"
)

type fakeSquare struct {
	created   square.PaymentCreateParams
	refunded  square.RefundCreateParams
	payment   *square.Payment
	refund    *square.Refund
	createErr error
	gets      int
}

func (f *fakeSquare) CreatePayment(_ context.Context, params square.PaymentCreateParams) (*square.Payment, error) {
	f.created = params
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.payment, nil
}

func (f *fakeSquare) GetPayment(context.Context, string) (*square.Payment, error) {
	f.gets++
	return f.payment, nil
}

func (f *fakeSquare) RefundPayment(_ context.Context, params square.RefundCreateParams) (*square.Refund, error) {
	f.refunded = params
	return f.refund, nil
}

func TestCreatePaymentRequiresSourceToken(t *testing.T) {
	fake := &fakeSquare{}
	adapter, err := NewAdapter(fake, nil)
	require.NoError(t, err)

	res, err := adapter.CreatePayment(context.Background(), gateways.PaymentRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(100), Currency: "JPY"})
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, fake.created.SourceID, "no call without a token")
}

func TestCreatePaymentMapsResult(t *testing.T) {
	fake := &fakeSquare{payment: &square.Payment{ID: "sq_1", Status: "APPROVED", AmountMinor: 1500, Currency: "JPY", Raw: map[string]any{"id": "sq_1"}}}
	adapter, err := NewAdapter(fake, nil)
	require.NoError(t, err)

	orderID := uuid.New()
	res, err := adapter.CreatePayment(context.Background(), gateways.PaymentRequest{
		OrderID:        orderID,
		Amount:         decimal.NewFromInt(1500),
		Currency:       "jpy",
		SourceToken:    "cnon:card-nonce-ok",
		IdempotencyKey: "idem-1",
	})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, int64(1500), fake.created.AmountMinor)
	assert.Equal(t, orderID.String(), fake.created.ReferenceID)
	assert.Equal(t, "idem-1", fake.created.IdempotencyKey)
	assert.Equal(t, "sq_1", res.PaymentID)
	assert.Equal(t, "APPROVED", res.Status)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(1500)))
}

func TestCreatePaymentDeclineVersusFault(t *testing.T) {
	declined := &fakeSquare{createErr: pkgerrors.New(pkgerrors.CodeValidation, "square create payment failed")}
	adapter, err := NewAdapter(declined, nil)
	require.NoError(t, err)
	res, err := adapter.CreatePayment(context.Background(), gateways.PaymentRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(1), Currency: "USD", SourceToken: "tok"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	broken := &fakeSquare{createErr: errors.New("dial tcp: timeout")}
	adapter, err = NewAdapter(broken, nil)
	require.NoError(t, err)
	_, err = adapter.CreatePayment(context.Background(), gateways.PaymentRequest{OrderID: uuid.New(), Amount: decimal.NewFromInt(1), Currency: "USD", SourceToken: "tok"})
	require.Error(t, err)
}

func TestFullRefundReadsCapturedAmount(t *testing.T) {
	fake := &fakeSquare{
		payment: &square.Payment{ID: "sq_1", Status: "COMPLETED", AmountMinor: 2000, Currency: "USD"},
		refund:  &square.Refund{ID: "rf_1", Status: "PENDING"},
	}
	adapter, err := NewAdapter(fake, nil)
	require.NoError(t, err)

	res, err := adapter.RefundPayment(context.Background(), gateways.RefundRequest{PaymentID: "sq_1", Currency: "USD"})
	require.NoError(t, err)
	require.True(t, res.Success)
	assert.Equal(t, 1, fake.gets)
	assert.Equal(t, int64(2000), fake.refunded.AmountMinor)
	assert.Equal(t, "rf_1", res.RefundID)
	assert.True(t, res.Amount.Equal(decimal.RequireFromString("20")))
}
