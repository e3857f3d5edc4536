package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/internal/orders"
	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/outbox"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-payments/pkg/types"
	"github.com/angelmondragon/storefront-payments/pkg/validation"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service dispatches an order to its payment method.
type Service interface {
	ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*ProcessPaymentResult, error)
}

// ServiceParams packages the collaborators of the checkout service.
type ServiceParams struct {
	Orders      orders.Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Gateways    orders.AdapterResolver
	Transitions *orders.Transitioner
	Logger      *logger.Logger
}

type service struct {
	orders      orders.Repository
	tx          txRunner
	outbox      outboxPublisher
	gateways    orders.AdapterResolver
	transitions *orders.Transitioner
	logg        *logger.Logger
}

// NewService builds the checkout payment service.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Gateways == nil {
		return nil, fmt.Errorf("gateway resolver required")
	}
	if params.Transitions == nil {
		return nil, fmt.Errorf("transitioner required")
	}
	return &service{
		orders:      params.Orders,
		tx:          params.Tx,
		outbox:      params.Outbox,
		gateways:    params.Gateways,
		transitions: params.Transitions,
		logg:        params.Logger,
	}, nil
}

func (s *service) ProcessPayment(ctx context.Context, input ProcessPaymentInput) (*ProcessPaymentResult, error) {
	input.Email = strings.TrimSpace(input.Email)
	input.Currency = strings.ToUpper(strings.TrimSpace(input.Currency))
	input.PaymentMethod = enums.PaymentMethod(strings.ToLower(strings.TrimSpace(string(input.PaymentMethod))))
	if err := validation.Struct(input); err != nil {
		return nil, err
	}

	order, err := s.loadOrder(ctx, input)
	if err != nil {
		return nil, err
	}
	if s.logg != nil {
		ctx = s.logg.WithOrderID(ctx, order.ID.String())
	}

	if !input.PaymentMethod.RequiresGateway() {
		return s.settleOffline(ctx, order, input)
	}

	adapter, err := s.gateways.Resolve(input.PaymentGateway)
	if err != nil {
		return nil, err
	}
	gateway := strings.ToLower(adapter.Name())
	if s.logg != nil {
		ctx = s.logg.WithGateway(ctx, gateway)
	}
	if !canInitiate(order.PaymentStatus) {
		return nil, notPayable(order)
	}
	if order.PaymentStatus == enums.PaymentStatusInitiated && order.HasGatewayPayment() {
		open, err := s.priorPayment(ctx, order)
		if err != nil {
			return nil, err
		}
		if open != nil {
			if !reusable(order, open, gateway, input) {
				return nil, paymentInProgress(order)
			}
			return s.reuse(ctx, order, open, input), nil
		}
	}

	res, err := adapter.CreatePayment(ctx, gateways.PaymentRequest{
		OrderID:  order.ID,
		Amount:   input.Amount,
		Currency: input.Currency,
		Customer: gateways.Customer{
			Name:  input.Name,
			Email: input.Email,
			Phone: input.Phone,
		},
		Metadata:       map[string]string{"order_id": order.ID.String()},
		SourceToken:    input.PaymentToken,
		IdempotencyKey: input.IdempotencyKey,
	})
	if gateways.Failed(res, err) {
		s.logGatewayFailure(ctx, "create payment failed", res, err)
		return nil, gateways.FailureError(order.ID, res, err)
	}

	amount := res.Amount
	if amount.IsZero() {
		amount = input.Amount
	}
	currency := strings.ToUpper(res.Currency)
	if currency == "" {
		currency = input.Currency
	}

	from := order.PaymentStatus
	var applied bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		applied, err = s.transitions.Apply(ctx, tx, order, enums.PaymentStatusInitiated, map[string]any{
			"payment_method":     input.PaymentMethod,
			"payment_gateway":    gateway,
			"payment_id":         res.PaymentID,
			"payment_data":       types.JSONMap(res.Snapshot),
			"due_payment_amount": amount,
			"paid_amount":        decimal.Zero,
			"currency":           currency,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentInitiated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{CustomerID: order.CustomerID},
			Data: payloads.PaymentInitiatedEvent{
				OrderID:       order.ID,
				CustomerID:    order.CustomerID,
				PaymentMethod: input.PaymentMethod,
				Gateway:       gateway,
				PaymentID:     res.PaymentID,
				Status:        order.PaymentStatus,
				Amount:        amount,
				Currency:      currency,
			},
		})
	})
	if err != nil {
		return nil, s.internal(ctx, err, "record payment initiation")
	}
	if applied {
		s.transitions.Committed(from, enums.PaymentStatusInitiated)
	}

	return &ProcessPaymentResult{
		OrderID:            order.ID,
		PaymentMethod:      input.PaymentMethod,
		PaymentMethodLabel: input.PaymentMethod.Label(),
		Gateway:            gateway,
		PaymentID:          res.PaymentID,
		PaymentIntent:      res.ClientSecret,
		EphemeralKey:       res.EphemeralKey,
		Customer:           res.CustomerHandle,
		Amount:             amount,
		Currency:           currency,
		Order:              order,
	}, nil
}

// settleOffline parks the order in PENDING for methods confirmed out of band.
func (s *service) settleOffline(ctx context.Context, order *models.Order, input ProcessPaymentInput) (*ProcessPaymentResult, error) {
	if !canInitiate(order.PaymentStatus) {
		return nil, notPayable(order)
	}
	if order.PaymentStatus == enums.PaymentStatusInitiated && order.HasGatewayPayment() {
		open, err := s.priorPayment(ctx, order)
		if err != nil {
			return nil, err
		}
		if open != nil {
			return nil, paymentInProgress(order)
		}
	}
	from := order.PaymentStatus
	var applied bool
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		if applied, err = s.transitions.Apply(ctx, tx, order, enums.PaymentStatusPending, map[string]any{
			"payment_method":     input.PaymentMethod,
			"payment_gateway":    nil,
			"payment_id":         nil,
			"payment_data":       nil,
			"due_payment_amount": order.Total,
			"paid_amount":        decimal.Zero,
			"currency":           input.Currency,
		}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentPending,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{CustomerID: order.CustomerID},
			Data: payloads.PaymentPendingEvent{
				OrderID:       order.ID,
				CustomerID:    order.CustomerID,
				PaymentMethod: input.PaymentMethod,
				Amount:        order.Total,
				Currency:      input.Currency,
			},
		})
	})
	if err != nil {
		return nil, s.internal(ctx, err, "record offline payment")
	}
	if applied {
		s.transitions.Committed(from, enums.PaymentStatusPending)
	}
	if s.logg != nil {
		s.logg.Info(ctx, "order awaiting offline payment")
	}
	return &ProcessPaymentResult{
		OrderID:            order.ID,
		PaymentMethod:      input.PaymentMethod,
		PaymentMethodLabel: input.PaymentMethod.Label(),
		Amount:             order.Total,
		Currency:           input.Currency,
		Order:              order,
	}, nil
}

func (s *service) loadOrder(ctx context.Context, input ProcessPaymentInput) (*models.Order, error) {
	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, s.internal(ctx, err, "load order")
	}
	return order, nil
}

// priorPayment asks the processor about the payment an INITIATED order already
// carries. A nil result means the processor reports it dead and a new payment
// may replace it; anything still open is returned so it is never orphaned.
func (s *service) priorPayment(ctx context.Context, order *models.Order) (*gateways.Result, error) {
	adapter, err := s.gateways.Resolve(*order.PaymentGateway)
	if err != nil {
		return nil, err
	}
	res, err := adapter.GetPaymentStatus(ctx, *order.PaymentID)
	if gateways.Failed(res, err) {
		s.logGatewayFailure(ctx, "look up prior payment failed", res, err)
		return nil, gateways.FailureError(order.ID, res, err)
	}
	switch mapped, _ := gateways.MapStatus(res.Status); mapped {
	case enums.PaymentStatusFailed:
		return nil, nil
	case enums.PaymentStatusCompleted:
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has already been paid; refresh its payment status").
			WithDetails(priorDetails(order))
	}
	return res, nil
}

// reusable reports whether an open prior payment can stand in for the one
// being requested.
func reusable(order *models.Order, open *gateways.Result, gateway string, input ProcessPaymentInput) bool {
	if !strings.EqualFold(*order.PaymentGateway, gateway) {
		return false
	}
	if !open.Amount.IsZero() && !open.Amount.Equal(input.Amount) {
		return false
	}
	return open.Currency == "" || strings.EqualFold(open.Currency, input.Currency)
}

// reuse hands the open payment back to the client instead of creating a second
// one the customer could also confirm.
func (s *service) reuse(ctx context.Context, order *models.Order, open *gateways.Result, input ProcessPaymentInput) *ProcessPaymentResult {
	if s.logg != nil {
		s.logg.Info(ctx, "reusing open gateway payment")
	}
	return &ProcessPaymentResult{
		OrderID:            order.ID,
		PaymentMethod:      input.PaymentMethod,
		PaymentMethodLabel: input.PaymentMethod.Label(),
		Gateway:            strings.ToLower(*order.PaymentGateway),
		PaymentID:          *order.PaymentID,
		PaymentIntent:      open.ClientSecret,
		EphemeralKey:       open.EphemeralKey,
		Customer:           open.CustomerHandle,
		Amount:             input.Amount,
		Currency:           input.Currency,
		Order:              order,
	}
}

func paymentInProgress(order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "a payment is already in progress for this order").
		WithDetails(priorDetails(order))
}

func priorDetails(order *models.Order) map[string]any {
	return map[string]any{
		"order_id":   order.ID,
		"gateway":    *order.PaymentGateway,
		"payment_id": *order.PaymentID,
	}
}

func canInitiate(status enums.PaymentStatus) bool {
	return status == enums.PaymentStatusPending || status == enums.PaymentStatusInitiated
}

func notPayable(order *models.Order) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
		WithDetails(map[string]any{"order_id": order.ID, "payment_status": order.PaymentStatus})
}

// internal passes typed errors through and hides everything else behind a
// generic message after logging it.
func (s *service) internal(ctx context.Context, err error, msg string) error {
	if typed := pkgerrors.As(err); typed != nil {
		return typed
	}
	if s.logg != nil {
		s.logg.Error(ctx, msg, err)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func (s *service) logGatewayFailure(ctx context.Context, msg string, res *gateways.Result, err error) {
	if s.logg == nil {
		return
	}
	if err == nil && res != nil {
		err = errors.New(res.ErrorMessage)
	}
	if err == nil {
		err = errors.New("gateway returned no result")
	}
	s.logg.Error(ctx, msg, err)
}
