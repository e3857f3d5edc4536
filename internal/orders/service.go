package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/pkg/db/models"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/outbox"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/payloads"
)

// Service advances orders through the payment status machine.
type Service interface {
	// AfterPayment records the outcome reported by the client after it
	// confirmed a payment.
	AfterPayment(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error)
	// GetPaymentStatus asks the gateway for the current status and applies it
	// when the move is legal.
	GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*PaymentStatusResult, error)
	// ApplyGatewayStatus is the webhook funnel. Stale, duplicate and unknown
	// statuses are ignored rather than rejected.
	ApplyGatewayStatus(ctx context.Context, gateway, paymentID, rawStatus string) (*ApplyResult, error)
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	gateways    AdapterResolver
	transitions *Transitioner
	logg        *logger.Logger
}

// NewService builds the order status service.
func NewService(repo Repository, tx txRunner, publisher outboxPublisher, resolver AdapterResolver, transitions *Transitioner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("gateway resolver required")
	}
	if transitions == nil {
		return nil, fmt.Errorf("transitioner required")
	}
	return &service{
		repo:        repo,
		tx:          tx,
		outbox:      publisher,
		gateways:    resolver,
		transitions: transitions,
		logg:        logg,
	}, nil
}

func (s *service) AfterPayment(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	target, err := enums.ParsePaymentStatus(status)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "validation failed").
			WithDetails(map[string]string{"status": "must be a valid payment status"})
	}

	var (
		updated *models.Order
		from    enums.PaymentStatus
		applied bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := loadOrder(ctx, s.repo.WithTx(tx), orderID)
		if err != nil {
			return err
		}
		from = order.PaymentStatus
		applied, err = s.transitions.Apply(ctx, tx, order, target, nil)
		if err != nil {
			return err
		}
		if applied {
			if err := s.emitStatusChanged(ctx, tx, order, from, SourceClient); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if applied {
		s.transitions.Committed(from, target)
	}
	return updated, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	return s.AfterPayment(ctx, orderID, status)
}

func (s *service) GetPaymentStatus(ctx context.Context, orderID uuid.UUID) (*PaymentStatusResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := loadOrder(ctx, s.repo, orderID)
	if err != nil {
		return nil, err
	}
	result := &PaymentStatusResult{OrderID: order.ID, Status: order.PaymentStatus, Order: order}
	if !order.HasGatewayPayment() {
		return result, nil
	}

	gateway, paymentID := *order.PaymentGateway, *order.PaymentID
	result.Gateway, result.PaymentID = gateway, paymentID
	adapter, err := s.gateways.Resolve(gateway)
	if err != nil {
		return nil, err
	}

	logCtx := s.logContext(ctx, order.ID, gateway)
	res, err := adapter.GetPaymentStatus(ctx, paymentID)
	if gateways.Failed(res, err) {
		s.logFailure(logCtx, "payment status lookup failed", res, err)
		return nil, gateways.FailureError(order.ID, res, err)
	}
	result.GatewayStatus = res.Status

	mapped, ok := gateways.MapStatus(res.Status)
	if !ok {
		s.ignore(logCtx, SourcePoll, IgnoredUnknownStatus, res.Status)
		return result, nil
	}
	if mapped == order.PaymentStatus {
		return result, nil
	}
	if !CanTransition(order.PaymentStatus, mapped) {
		s.ignore(logCtx, SourcePoll, IgnoredIllegal, res.Status)
		return result, nil
	}

	var from enums.PaymentStatus
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := loadOrder(ctx, s.repo.WithTx(tx), order.ID)
		if err != nil {
			return err
		}
		from = fresh.PaymentStatus
		applied, err := s.transitions.Apply(ctx, tx, fresh, mapped, nil)
		if err != nil {
			if reason := ignorable(err); reason != "" {
				s.ignore(logCtx, SourcePoll, reason, res.Status)
				return nil
			}
			return err
		}
		if applied {
			if err := s.emitStatusChanged(ctx, tx, fresh, from, SourcePoll); err != nil {
				return err
			}
		}
		result.Updated = applied
		result.Order = fresh
		result.Status = fresh.PaymentStatus
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result.Updated {
		s.transitions.Committed(from, mapped)
	}
	return result, nil
}

func (s *service) ApplyGatewayStatus(ctx context.Context, gateway, paymentID, rawStatus string) (*ApplyResult, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	paymentID = strings.TrimSpace(paymentID)
	if gateway == "" || paymentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "gateway and payment id required")
	}

	order, err := s.repo.FindByGatewayPayment(ctx, gateway, paymentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found for gateway payment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by gateway payment")
	}
	logCtx := s.logContext(ctx, order.ID, gateway)

	mapped, ok := gateways.MapStatus(rawStatus)
	if !ok {
		s.ignore(logCtx, SourceWebhook, IgnoredUnknownStatus, rawStatus)
		return &ApplyResult{Order: order, IgnoredReason: IgnoredUnknownStatus}, nil
	}

	result := &ApplyResult{Order: order}
	var from enums.PaymentStatus
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		fresh, err := loadOrder(ctx, s.repo.WithTx(tx), order.ID)
		if err != nil {
			return err
		}
		result.Order = fresh
		from = fresh.PaymentStatus
		applied, err := s.transitions.Apply(ctx, tx, fresh, mapped, nil)
		if err != nil {
			if reason := ignorable(err); reason != "" {
				result.IgnoredReason = reason
				return nil
			}
			return err
		}
		if !applied {
			result.IgnoredReason = IgnoredSameStatus
			return nil
		}
		result.Applied = true
		return s.emitStatusChanged(ctx, tx, fresh, from, SourceWebhook)
	})
	if err != nil {
		return nil, err
	}
	if !result.Applied {
		s.ignore(logCtx, SourceWebhook, result.IgnoredReason, rawStatus)
		return result, nil
	}
	s.transitions.Committed(from, mapped)
	return result, nil
}

func (s *service) emitStatusChanged(ctx context.Context, tx *gorm.DB, order *models.Order, from enums.PaymentStatus, source string) error {
	return s.outbox.Emit(ctx, tx, StatusChangedEvent(order, from, source))
}

// StatusChangedEvent builds the outbox event for a committed transition.
func StatusChangedEvent(order *models.Order, from enums.PaymentStatus, source string) outbox.DomainEvent {
	data := payloads.PaymentStatusChangedEvent{
		OrderID:   order.ID,
		From:      from,
		To:        order.PaymentStatus,
		Source:    source,
		ChangedAt: time.Now().UTC(),
	}
	if order.PaymentGateway != nil {
		data.Gateway = *order.PaymentGateway
	}
	if order.PaymentID != nil {
		data.PaymentID = *order.PaymentID
	}
	return outbox.DomainEvent{
		EventType:     enums.EventPaymentStatusChanged,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Version:       1,
		Actor:         &outbox.ActorRef{CustomerID: order.CustomerID},
		Data:          data,
	}
}

func loadOrder(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	order, err := repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func ignorable(err error) string {
	switch {
	case errors.Is(err, ErrIllegalTransition):
		return IgnoredIllegal
	case errors.Is(err, ErrStaleStatus):
		return IgnoredStale
	}
	return ""
}

func (s *service) logContext(ctx context.Context, orderID uuid.UUID, gateway string) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithGateway(s.logg.WithOrderID(ctx, orderID.String()), gateway)
}

func (s *service) ignore(ctx context.Context, source, reason, rawStatus string) {
	s.transitions.metrics.IncIgnored(source, reason)
	if s.logg == nil {
		return
	}
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"source":         source,
		"reason":         reason,
		"gateway_status": rawStatus,
	}), "payment status update ignored")
}

func (s *service) logFailure(ctx context.Context, msg string, res *gateways.Result, err error) {
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
