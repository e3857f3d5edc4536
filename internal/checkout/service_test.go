package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/internal/orders"
	"github.com/angelmondragon/storefront-payments/internal/orders/orderstest"
	dbpkg "github.com/angelmondragon/storefront-payments/pkg/db"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/payloads"
)

type harness struct {
	db        *gorm.DB
	svc       Service
	publisher *orderstest.Publisher
	stripe    *orderstest.Adapter
	square    *orderstest.Adapter
}

func newHarness(t *testing.T, registry func(stripe, square gateways.Adapter) (*gateways.Registry, error)) *harness {
	t.Helper()

	db := orderstest.Open(t)
	repo := orders.NewRepository(db)
	transitions, err := orders.NewTransitioner(repo, nil)
	require.NoError(t, err)

	h := &harness{
		db:        db,
		publisher: &orderstest.Publisher{},
		stripe:    &orderstest.Adapter{GatewayName: "stripe"},
		square:    &orderstest.Adapter{GatewayName: "square"},
	}
	if registry == nil {
		registry = func(stripe, square gateways.Adapter) (*gateways.Registry, error) {
			return gateways.NewRegistry("stripe", stripe, square)
		}
	}
	reg, err := registry(h.stripe, h.square)
	require.NoError(t, err)

	h.svc, err = NewService(ServiceParams{
		Orders:      repo,
		Tx:          dbpkg.NewFromGorm(db),
		Outbox:      h.publisher,
		Gateways:    reg,
		Transitions: transitions,
	})
	require.NoError(t, err)
	return h
}

func cardInput(orderID uuid.UUID) ProcessPaymentInput {
	return ProcessPaymentInput{
		OrderID:       orderID,
		Name:          "Hana Sato",
		Email:         "hana@example.com",
		Phone:         "090-1234-5678",
		PaymentMethod: enums.PaymentMethodCard,
		Currency:      "usd",
		Amount:        decimal.NewFromInt(1000),
	}
}

func TestProcessPaymentCardInitiatesOnDefaultGateway(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusPending, Total: "1000", Due: "1000"})
	h.stripe.Result = &gateways.Result{
		Success:        true,
		PaymentID:      "pi_123",
		ClientSecret:   "pi_123_secret",
		EphemeralKey:   "ek_1",
		CustomerHandle: "cus_1",
		Status:         "requires_payment_method",
		Amount:         decimal.NewFromInt(1000),
		Currency:       "usd",
		Snapshot:       map[string]any{"id": "pi_123"},
	}

	res, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	require.NoError(t, err)
	assert.Equal(t, "pi_123", res.PaymentID)
	assert.Equal(t, "pi_123_secret", res.PaymentIntent)
	assert.Equal(t, "ek_1", res.EphemeralKey)
	assert.Equal(t, "cus_1", res.Customer)
	assert.Equal(t, "USD", res.Currency)
	assert.Equal(t, "stripe", res.Gateway)
	assert.True(t, res.Amount.Equal(decimal.NewFromInt(1000)))

	stored := orderstest.Reload(t, h.db, order.ID)
	assert.Equal(t, enums.PaymentStatusInitiated, stored.PaymentStatus)
	assert.True(t, stored.PaidAmount.IsZero())
	assert.True(t, stored.DuePaymentAmount.Equal(decimal.NewFromInt(1000)))
	require.NotNil(t, stored.PaymentGateway)
	assert.Equal(t, "stripe", *stored.PaymentGateway)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pi_123", *stored.PaymentID)
	assert.Equal(t, "pi_123", stored.PaymentData["id"])
	require.NotNil(t, stored.PaymentMethod)
	assert.Equal(t, enums.PaymentMethodCard, *stored.PaymentMethod)

	require.Len(t, h.stripe.Creates, 1)
	req := h.stripe.Creates[0]
	assert.Equal(t, order.ID.String(), req.Metadata["order_id"])
	assert.Equal(t, "USD", req.Currency)
	assert.Equal(t, "hana@example.com", req.Customer.Email)

	require.Len(t, h.publisher.Events, 1)
	assert.Equal(t, enums.EventPaymentInitiated, h.publisher.Events[0].EventType)
	data, ok := h.publisher.Events[0].Data.(payloads.PaymentInitiatedEvent)
	require.True(t, ok)
	assert.Equal(t, "pi_123", data.PaymentID)
	assert.Equal(t, enums.PaymentStatusInitiated, data.Status)
}

func TestProcessPaymentNamedGateway(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusPending, Total: "20", Due: "20"})
	h.square.Result = &gateways.Result{Success: true, PaymentID: "sq_1", Status: "APPROVED", Amount: decimal.NewFromInt(20), Currency: "USD"}

	input := cardInput(order.ID)
	input.PaymentGateway = "Square"
	input.PaymentToken = "cnon:card-nonce-ok"
	input.Amount = decimal.NewFromInt(20)

	_, err := h.svc.ProcessPayment(context.Background(), input)
	require.NoError(t, err)
	assert.Empty(t, h.stripe.Creates)
	require.Len(t, h.square.Creates, 1)
	assert.Equal(t, "cnon:card-nonce-ok", h.square.Creates[0].SourceToken)
	stored := orderstest.Reload(t, h.db, order.ID)
	require.NotNil(t, stored.PaymentGateway)
	assert.Equal(t, "square", *stored.PaymentGateway)
}

func TestProcessPaymentReinitiatesInitiatedOrder(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusInitiated, Gateway: "stripe", PaymentID: "pi_old", Total: "1000", Due: "1000"})
	h.stripe.Poll = &gateways.Result{Success: true, PaymentID: "pi_old", Status: "canceled"}
	h.stripe.Result = &gateways.Result{Success: true, PaymentID: "pi_new", Amount: decimal.NewFromInt(1000), Currency: "USD"}

	_, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	require.NoError(t, err)
	assert.Equal(t, 1, h.stripe.Polls)
	require.Len(t, h.stripe.Creates, 1)
	stored := orderstest.Reload(t, h.db, order.ID)
	assert.Equal(t, enums.PaymentStatusInitiated, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pi_new", *stored.PaymentID)
}

func TestProcessPaymentReusesOpenPriorPayment(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusInitiated, Gateway: "stripe", PaymentID: "pi_old", Total: "1000", Due: "1000"})
	h.stripe.Poll = &gateways.Result{
		Success:        true,
		PaymentID:      "pi_old",
		Status:         "requires_payment_method",
		ClientSecret:   "pi_old_secret_abc",
		CustomerHandle: "cus_1",
		Amount:         decimal.NewFromInt(1000),
		Currency:       "usd",
	}

	res, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	require.NoError(t, err)
	assert.Empty(t, h.stripe.Creates)
	assert.Equal(t, "pi_old", res.PaymentID)
	assert.Equal(t, "pi_old_secret_abc", res.PaymentIntent)
	assert.Equal(t, "cus_1", res.Customer)
	assert.Equal(t, "stripe", res.Gateway)
	assert.Empty(t, h.publisher.Events)

	stored := orderstest.Reload(t, h.db, order.ID)
	require.NotNil(t, stored.PaymentID)
	assert.Equal(t, "pi_old", *stored.PaymentID)
}

func TestProcessPaymentRejectsReplacingOpenPriorPayment(t *testing.T) {
	cases := map[string]struct {
		poll  *gateways.Result
		input func(ProcessPaymentInput) ProcessPaymentInput
		msg   string
	}{
		"different amount": {
			poll: &gateways.Result{Success: true, PaymentID: "pi_old", Status: "requires_payment_method", Amount: decimal.NewFromInt(800), Currency: "usd"},
			msg:  "a payment is already in progress for this order",
		},
		"different gateway": {
			poll: &gateways.Result{Success: true, PaymentID: "pi_old", Status: "processing"},
			input: func(in ProcessPaymentInput) ProcessPaymentInput {
				in.PaymentGateway = "square"
				return in
			},
			msg: "a payment is already in progress for this order",
		},
		"offline method": {
			poll: &gateways.Result{Success: true, PaymentID: "pi_old", Status: "requires_action"},
			input: func(in ProcessPaymentInput) ProcessPaymentInput {
				in.PaymentMethod = enums.PaymentMethodBankTransfer
				return in
			},
			msg: "a payment is already in progress for this order",
		},
		"already captured": {
			poll: &gateways.Result{Success: true, PaymentID: "pi_old", Status: "succeeded"},
			msg:  "order has already been paid; refresh its payment status",
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, nil)
			order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusInitiated, Gateway: "stripe", PaymentID: "pi_old", Total: "1000", Due: "1000"})
			h.stripe.Poll = tc.poll
			h.stripe.Result = &gateways.Result{Success: true, PaymentID: "pi_new"}
			h.square.Result = &gateways.Result{Success: true, PaymentID: "sq_new"}

			input := cardInput(order.ID)
			if tc.input != nil {
				input = tc.input(input)
			}
			_, err := h.svc.ProcessPayment(context.Background(), input)
			require.Error(t, err)
			typed := pkgerrors.As(err)
			require.NotNil(t, typed)
			assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())
			assert.Equal(t, tc.msg, typed.Message())
			details, ok := typed.Details().(map[string]any)
			require.True(t, ok)
			assert.Equal(t, "pi_old", details["payment_id"])

			assert.Empty(t, h.stripe.Creates)
			assert.Empty(t, h.square.Creates)
			assert.Empty(t, h.publisher.Events)
			stored := orderstest.Reload(t, h.db, order.ID)
			assert.Equal(t, enums.PaymentStatusInitiated, stored.PaymentStatus)
			require.NotNil(t, stored.PaymentID)
			assert.Equal(t, "pi_old", *stored.PaymentID)
		})
	}
}

func TestProcessPaymentPriorLookupFailureIsGatewayError(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusInitiated, Gateway: "stripe", PaymentID: "pi_old", Total: "1000", Due: "1000"})
	h.stripe.Poll = gateways.Failure("No such payment_intent: 'pi_old'")

	_, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	assert.Empty(t, h.stripe.Creates)
}

func TestProcessPaymentCashOnDeliverySkipsGateway(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusPending, Total: "300", Due: "0"})

	input := cardInput(order.ID)
	input.PaymentMethod = "Cash_On_Delivery"
	input.Currency = "jpy"

	res, err := h.svc.ProcessPayment(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentMethodCashOnDelivery, res.PaymentMethod)
	assert.Equal(t, "Cash on Delivery", res.PaymentMethodLabel)
	assert.Empty(t, res.PaymentID)
	assert.Empty(t, h.stripe.Creates)

	stored := orderstest.Reload(t, h.db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	require.NotNil(t, stored.PaymentMethod)
	assert.Equal(t, enums.PaymentMethodCashOnDelivery, *stored.PaymentMethod)
	assert.True(t, stored.DuePaymentAmount.Equal(decimal.NewFromInt(300)))
	assert.True(t, stored.PaidAmount.IsZero())
	assert.Nil(t, stored.PaymentGateway)

	require.Len(t, h.publisher.Events, 1)
	assert.Equal(t, enums.EventPaymentPending, h.publisher.Events[0].EventType)
}

func TestProcessPaymentOfflineClearsEarlierGatewayAttempt(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusInitiated, Gateway: "stripe", PaymentID: "pi_abandoned", Total: "50", Due: "50"})

	h.stripe.Poll = &gateways.Result{Success: true, PaymentID: "pi_abandoned", Status: "canceled"}

	input := cardInput(order.ID)
	input.PaymentMethod = enums.PaymentMethodBankTransfer

	_, err := h.svc.ProcessPayment(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, 1, h.stripe.Polls)
	stored := orderstest.Reload(t, h.db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.PaymentGateway)
	assert.Nil(t, stored.PaymentID)
}

func TestProcessPaymentGatewayFailureLeavesOrderUntouched(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusPending, Total: "1000", Due: "1000"})
	h.stripe.Result = gateways.Failure("Your card was declined.")

	_, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeGateway, typed.Code())
	assert.Equal(t, "Your card was declined.", typed.Message())
	assert.Equal(t, map[string]any{"order_id": order.ID.String()}, typed.Details())

	stored := orderstest.Reload(t, h.db, order.ID)
	assert.Equal(t, enums.PaymentStatusPending, stored.PaymentStatus)
	assert.Nil(t, stored.PaymentID)
	assert.Empty(t, h.publisher.Events)
}

type slowAdapter struct{ orderstest.Adapter }

func (s *slowAdapter) CreatePayment(ctx context.Context, req gateways.PaymentRequest) (*gateways.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestProcessPaymentTimeoutIsGatewayFailure(t *testing.T) {
	slow := &slowAdapter{Adapter: orderstest.Adapter{GatewayName: "stripe"}}
	h := newHarness(t, func(_, square gateways.Adapter) (*gateways.Registry, error) {
		return gateways.NewRegistry("stripe", gateways.WithTimeout(slow, 10*time.Millisecond), square)
	})
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusPending, Total: "1000", Due: "1000"})

	_, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))
	assert.True(t, errors.Is(err, gateways.ErrGatewayTimeout))
	assert.Equal(t, enums.PaymentStatusPending, orderstest.Reload(t, h.db, order.ID).PaymentStatus)
}

func TestProcessPaymentUnknownGateway(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusPending, Total: "10", Due: "10"})

	input := cardInput(order.ID)
	input.PaymentGateway = "paypal"
	_, err := h.svc.ProcessPayment(context.Background(), input)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnsupportedGateway, typed.Code())
	assert.Equal(t, 422, pkgerrors.MetadataFor(typed.Code()).HTTPStatus)
}

func TestProcessPaymentRejectsSettledOrder(t *testing.T) {
	h := newHarness(t, nil)
	order, _ := orderstest.Seed(t, h.db, orderstest.Fixture{Status: enums.PaymentStatusCompleted, Gateway: "stripe", PaymentID: "pi_done", Total: "10", Due: "0"})

	_, err := h.svc.ProcessPayment(context.Background(), cardInput(order.ID))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, h.stripe.Creates)

	input := cardInput(order.ID)
	input.PaymentMethod = enums.PaymentMethodCashOnDelivery
	_, err = h.svc.ProcessPayment(context.Background(), input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
}

func TestProcessPaymentValidation(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.svc.ProcessPayment(context.Background(), ProcessPaymentInput{
		OrderID:       uuid.New(),
		Email:         "not-an-email",
		PaymentMethod: "crypto",
		Currency:      "dollars",
		Amount:        decimal.NewFromInt(-5),
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeValidation, typed.Code())
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	for _, field := range []string{"name", "email", "payment_method", "currency", "amount"} {
		assert.Contains(t, details, field)
	}
	assert.Empty(t, h.stripe.Creates)
}

func TestProcessPaymentMissingOrder(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.svc.ProcessPayment(context.Background(), cardInput(uuid.New()))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
