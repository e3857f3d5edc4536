package router

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-payments/internal/analytics/types"
	"github.com/angelmondragon/storefront-payments/pkg/enums"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

var ErrUnsupportedEventType = errors.New("unsupported analytics event type")

// Writer delivers BigQuery rows produced by analytics handlers.
type Writer interface {
	InsertPaymentEvent(ctx context.Context, row types.PaymentEventRow) error
}

// Handler receives an envelope plus its decoded payload.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope, payload any) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope, payload any) error

func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope, payload any) error {
	return fn(ctx, envelope, payload)
}

type route struct {
	decode  func(json.RawMessage) (any, error)
	handler Handler
}

// paymentRoute decodes the payload into T and writes one fact row built
// from it.
func paymentRoute[T any](writer Writer, build func(*types.PaymentEventRow, *T)) route {
	return route{
		decode: func(raw json.RawMessage) (any, error) {
			var event T
			if err := json.Unmarshal(raw, &event); err != nil {
				return nil, err
			}
			return &event, nil
		},
		handler: HandlerFunc(func(ctx context.Context, envelope types.Envelope, payload any) error {
			event, ok := payload.(*T)
			if !ok {
				return fmt.Errorf("unexpected payload %T", payload)
			}
			row := baseRow(envelope)
			build(&row, event)
			if err := writer.InsertPaymentEvent(ctx, row); err != nil {
				return fmt.Errorf("insert payment event: %w", err)
			}
			return nil
		}),
	}
}

// Router dispatches analytics envelopes by event type. Customer events are
// not tracked and report ErrUnsupportedEventType.
type Router struct {
	routes map[enums.OutboxEventType]route
	logg   *logger.Logger
}

// NewRouter wires the payment fact handlers. overrides replace the handler
// of an already routed event type; unknown types in overrides are ignored.
func NewRouter(writer Writer, logg *logger.Logger, overrides map[enums.OutboxEventType]Handler) (*Router, error) {
	if writer == nil {
		return nil, errors.New("writer is required")
	}
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	routes := map[enums.OutboxEventType]route{
		enums.EventPaymentPending:       paymentRoute(writer, pendingRow),
		enums.EventPaymentInitiated:     paymentRoute(writer, initiatedRow),
		enums.EventPaymentStatusChanged: paymentRoute(writer, statusChangedRow),
		enums.EventPaymentRefunded:      paymentRoute(writer, refundedRow),
	}
	for eventType, custom := range overrides {
		r, ok := routes[eventType]
		if !ok || custom == nil {
			continue
		}
		r.handler = custom
		routes[eventType] = r
	}
	return &Router{routes: routes, logg: logg}, nil
}

// Handle decodes the envelope payload and dispatches it.
func (r *Router) Handle(ctx context.Context, envelope types.Envelope) error {
	rt, ok := r.routes[envelope.EventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedEventType, envelope.EventType)
	}
	if len(envelope.Payload) == 0 {
		return fmt.Errorf("empty payload for %s", envelope.EventType)
	}
	payload, err := rt.decode(envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", envelope.EventType, err)
	}
	return rt.handler.Handle(ctx, envelope, payload)
}
