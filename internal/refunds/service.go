package refunds

import (
	"context"
	"errors"
	"fmt"

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

// Service refunds captured payments through the gateway that took them.
type Service interface {
	RefundPayment(ctx context.Context, input RefundInput) (*RefundResult, error)
}

type service struct {
	orders      orders.Repository
	tx          txRunner
	outbox      outboxPublisher
	gateways    orders.AdapterResolver
	transitions *orders.Transitioner
	logg        *logger.Logger
}

// NewService wires the refund coordinator.
func NewService(repo orders.Repository, tx txRunner, publisher outboxPublisher, resolver orders.AdapterResolver, transitions *orders.Transitioner, logg *logger.Logger) (Service, error) {
	switch {
	case repo == nil:
		return nil, fmt.Errorf("orders repository required")
	case tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case publisher == nil:
		return nil, fmt.Errorf("outbox publisher required")
	case resolver == nil:
		return nil, fmt.Errorf("gateway resolver required")
	case transitions == nil:
		return nil, fmt.Errorf("transitioner required")
	}
	return &service{
		orders:      repo,
		tx:          tx,
		outbox:      publisher,
		gateways:    resolver,
		transitions: transitions,
		logg:        logg,
	}, nil
}

func (s *service) RefundPayment(ctx context.Context, input RefundInput) (*RefundResult, error) {
	if err := validation.Struct(input); err != nil {
		return nil, err
	}
	order, err := s.orders.FindByID(ctx, input.OrderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !order.HasGatewayPayment() {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be refunded").
			WithDetails(map[string]any{"order_id": order.ID.String()})
	}
	if order.PaymentStatus != enums.PaymentStatusCompleted && order.PaymentStatus != enums.PaymentStatusPartiallyRefunded {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order cannot be refunded").
			WithDetails(map[string]any{"order_id": order.ID.String(), "payment_status": order.PaymentStatus})
	}

	refunded := decimal.Zero
	if order.RefundedAmount != nil {
		refunded = *order.RefundedAmount
	}
	remaining := order.PaidAmount.Sub(refunded)
	if err := checkAmount(input.Amount, remaining); err != nil {
		return nil, err
	}

	gateway := *order.PaymentGateway
	if s.logg != nil {
		ctx = s.logg.WithGateway(s.logg.WithOrderID(ctx, order.ID.String()), gateway)
	}
	adapter, err := s.gateways.Resolve(gateway)
	if err != nil {
		return nil, err
	}

	currency := ""
	if order.Currency != nil {
		currency = *order.Currency
	}
	// After a partial refund "the rest" must be spelled out: a nil amount
	// means the full captured amount to the processors.
	requested := input.Amount
	if requested == nil && refunded.IsPositive() {
		requested = &remaining
	}
	res, err := adapter.RefundPayment(ctx, gateways.RefundRequest{
		PaymentID:      *order.PaymentID,
		Amount:         requested,
		Currency:       currency,
		Reason:         input.Reason,
		IdempotencyKey: input.IdempotencyKey,
	})
	if gateways.Failed(res, err) {
		if s.logg != nil {
			logErr := err
			if logErr == nil && res != nil {
				logErr = errors.New(res.ErrorMessage)
			}
			s.logg.Error(ctx, "refund failed", logErr)
		}
		return nil, gateways.FailureError(order.ID, res, err)
	}

	amount := remaining
	if input.Amount != nil {
		amount = *input.Amount
	}
	cumulative := refunded.Add(amount)
	target := enums.PaymentStatusRefunded
	if input.Amount != nil && cumulative.LessThan(order.PaidAmount) {
		target = enums.PaymentStatusPartiallyRefunded
	}

	from := order.PaymentStatus
	var applied bool
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		applied, err = s.transitions.Apply(ctx, tx, order, target, map[string]any{
			"refund_id":       res.RefundID,
			"refund_data":     types.JSONMap(res.Snapshot),
			"refunded_amount": cumulative,
		})
		if err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, refundedEvent(order, res.RefundID, amount, cumulative))
	})
	if err != nil {
		// The processor already moved the money; the order row is now behind.
		if s.logg != nil {
			s.logg.Error(s.logg.WithField(ctx, "refund_id", res.RefundID), "record refund failed", err)
		}
		if typed := pkgerrors.As(err); typed != nil {
			return nil, typed
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}
	if applied {
		s.transitions.Committed(from, target)
	}

	return &RefundResult{
		OrderID:        order.ID,
		RefundID:       res.RefundID,
		Amount:         amount,
		RefundedAmount: cumulative,
		Status:         order.PaymentStatus,
		Order:          order,
	}, nil
}

func checkAmount(amount *decimal.Decimal, remaining decimal.Decimal) error {
	fields := validation.FieldErrors{}
	switch {
	case amount == nil:
		if !remaining.IsPositive() {
			fields.Add("amount", "nothing left to refund")
		}
	case !amount.IsPositive():
		fields.Add("amount", "must be greater than 0")
	case amount.GreaterThan(remaining):
		fields.Add("amount", fmt.Sprintf("must be at most %s", remaining.StringFixed(2)))
	}
	return fields.Err()
}

func refundedEvent(order *models.Order, refundID string, amount, cumulative decimal.Decimal) outbox.DomainEvent {
	return outbox.DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{CustomerID: order.CustomerID},
		Data: payloads.PaymentRefundedEvent{
			OrderID:        order.ID,
			Gateway:        *order.PaymentGateway,
			PaymentID:      *order.PaymentID,
			RefundID:       refundID,
			Amount:         amount,
			RefundedAmount: cumulative,
			Status:         order.PaymentStatus,
		},
	}
}
