// Package webhooks authenticates gateway callbacks and funnels payment
// status changes into the order status machine.
package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-payments/internal/orders"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

// Notification is the gateway-neutral form of a payment callback.
type Notification struct {
	EventID   string
	PaymentID string
	Status    string
}

// Source verifies and decodes callbacks from one gateway. Parse returns a nil
// Notification for event types that carry no payment status.
type Source interface {
	Name() string
	Verify(headers http.Header, body []byte) error
	Parse(body []byte) (*Notification, error)
}

type statusApplier interface {
	ApplyGatewayStatus(ctx context.Context, gateway, paymentID, rawStatus string) (*orders.ApplyResult, error)
}

// Outcome describes what a delivery did.
type Outcome struct {
	Gateway   string `json:"gateway"`
	EventID   string `json:"event_id,omitempty"`
	PaymentID string `json:"payment_id,omitempty"`
	Status    string `json:"status,omitempty"`
	Applied   bool   `json:"applied"`
	Duplicate bool   `json:"duplicate,omitempty"`
	Ignored   string `json:"ignored,omitempty"`
}

const ignoredEventType = "event_type"

// Service routes deliveries to their source and applies them once.
type Service struct {
	sources map[string]Source
	guard   *Guard
	orders  statusApplier
	logg    *logger.Logger
}

func NewService(guard *Guard, applier statusApplier, logg *logger.Logger, sources ...Source) (*Service, error) {
	if guard == nil {
		return nil, errors.New("webhook guard required")
	}
	if applier == nil {
		return nil, errors.New("status applier required")
	}
	table := make(map[string]Source, len(sources))
	for _, src := range sources {
		if src == nil {
			continue
		}
		table[strings.ToLower(src.Name())] = src
	}
	if len(table) == 0 {
		return nil, errors.New("at least one webhook source required")
	}
	return &Service{sources: table, guard: guard, orders: applier, logg: logg}, nil
}

// Process handles one raw delivery for the named gateway.
func (s *Service) Process(ctx context.Context, gateway string, headers http.Header, body []byte) (*Outcome, error) {
	gateway = strings.ToLower(strings.TrimSpace(gateway))
	src, ok := s.sources[gateway]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedGateway, "unsupported webhook gateway").
			WithDetails(map[string]any{"payment_gateway": gateway})
	}
	if s.logg != nil {
		ctx = s.logg.WithGateway(ctx, gateway)
	}

	if err := src.Verify(headers, body); err != nil {
		if s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "webhook signature rejected")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature")
	}

	n, err := src.Parse(body)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed webhook payload")
	}
	out := &Outcome{Gateway: gateway}
	if n == nil {
		out.Ignored = ignoredEventType
		return out, nil
	}
	out.EventID, out.PaymentID, out.Status = n.EventID, n.PaymentID, n.Status

	seen, err := s.guard.CheckAndMark(ctx, gateway, n)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		out.Duplicate = true
		return out, nil
	}

	res, err := s.orders.ApplyGatewayStatus(ctx, gateway, n.PaymentID, n.Status)
	if err != nil {
		if relErr := s.guard.Release(ctx, gateway, n); relErr != nil && s.logg != nil {
			s.logg.Error(ctx, "release webhook key", relErr)
		}
		return nil, err
	}
	out.Applied = res.Applied
	out.Ignored = res.IgnoredReason
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":   n.EventID,
			"payment_id": n.PaymentID,
			"status":     n.Status,
			"applied":    res.Applied,
		}), "webhook processed")
	}
	return out, nil
}
