package worker

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/internal/analytics/router"
	"github.com/angelmondragon/storefront-payments/internal/analytics/types"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/metrics"
)

const (
	consumerName         = "analytics"
	workerName           = "analytics_worker"
	defaultFlushInterval = 5 * time.Second
)

// Handler turns a decoded envelope into analytics rows.
type Handler interface {
	Handle(ctx context.Context, envelope types.Envelope) error
}

// HandlerFunc adapts functions to the Handler interface.
type HandlerFunc func(ctx context.Context, envelope types.Envelope) error

// Handle calls the underlying function.
func (fn HandlerFunc) Handle(ctx context.Context, envelope types.Envelope) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, envelope)
}

type idempotencyChecker interface {
	CheckAndMarkProcessed(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Delete(ctx context.Context, consumer string, eventID uuid.UUID) error
}

// Flusher drains rows the handler buffered.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Options carries the optional collaborators of the worker.
type Options struct {
	Flusher       Flusher
	FlushInterval time.Duration
	Metrics       *metrics.WorkerMetrics
}

// Service consumes payment events from Pub/Sub. Each event id is claimed in
// Redis before handling so redeliveries do not double-count payments.
type Service struct {
	subscription  *gcppubsub.Subscriber
	handler       Handler
	manager       idempotencyChecker
	logg          *logger.Logger
	flusher       Flusher
	flushInterval time.Duration
	metrics       *metrics.WorkerMetrics
}

// NewService creates a new analytics worker service.
func NewService(subscription *gcppubsub.Subscriber, handler Handler, manager idempotencyChecker, logg *logger.Logger, opts Options) (*Service, error) {
	switch {
	case subscription == nil:
		return nil, errors.New("analytics subscription is required")
	case handler == nil:
		return nil, errors.New("analytics handler is required")
	case manager == nil:
		return nil, errors.New("idempotency manager is required")
	case logg == nil:
		return nil, errors.New("logger is required")
	}
	interval := opts.FlushInterval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Service{
		subscription:  subscription,
		handler:       handler,
		manager:       manager,
		logg:          logg,
		flusher:       opts.Flusher,
		flushInterval: interval,
		metrics:       opts.Metrics,
	}, nil
}

// outcome is what happens to a delivered message.
type outcome int

const (
	outcomeAck outcome = iota
	outcomeNack
)

// Run consumes until ctx is canceled. Buffered rows are flushed on a timer
// so a quiet subscription does not hold rows indefinitely.
func (s *Service) Run(ctx context.Context) error {
	if s.flusher != nil {
		go s.flushLoop(ctx)
	}
	return s.subscription.Receive(ctx, func(msgCtx context.Context, msg *gcppubsub.Message) {
		started := time.Now()
		result := s.process(msgCtx, msg)
		if result == outcomeNack {
			s.metrics.ObserveBatch(workerName, metrics.BatchError, time.Since(started))
			msg.Nack()
			return
		}
		s.metrics.ObserveBatch(workerName, metrics.BatchOK, time.Since(started))
		msg.Ack()
	})
}

func (s *Service) flushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.flusher.Flush(ctx); err != nil {
				s.logg.Error(ctx, "periodic analytics flush failed", err)
			}
		}
	}
}

// process never returns an error: undecodable messages are acked and
// dropped, transient failures are nacked for redelivery.
func (s *Service) process(ctx context.Context, msg *gcppubsub.Message) outcome {
	ctx = s.logg.WithField(ctx, "message_id", msg.ID)

	envelope, err := types.DecodeMessage(msg.Data, msg.Attributes)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "invalid analytics envelope")
		return outcomeAck
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":       envelope.EventID,
		"event_type":     envelope.EventType,
		"aggregate_type": envelope.AggregateType,
		"aggregate_id":   envelope.AggregateID,
		"occurred_at":    envelope.OccurredAt.Format(time.RFC3339Nano),
	})

	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		s.logg.Warn(ctx, "invalid event id")
		return outcomeAck
	}

	seen, err := s.manager.CheckAndMarkProcessed(ctx, consumerName, eventID)
	switch {
	case err != nil:
		s.logg.Error(ctx, "idempotency check failed", err)
		return outcomeNack
	case seen:
		s.logg.Info(ctx, "event already processed")
		return outcomeAck
	}

	err = s.handler.Handle(ctx, *envelope)
	switch {
	case err == nil:
		s.logg.Info(ctx, "analytics event handled")
		return outcomeAck
	case errors.Is(err, router.ErrUnsupportedEventType):
		s.logg.Info(ctx, "event not tracked by analytics")
		return outcomeAck
	default:
		s.logg.Error(ctx, "handler error", err)
		// release the claim so the redelivery is handled
		if delErr := s.manager.Delete(ctx, consumerName, eventID); delErr != nil {
			s.logg.Error(ctx, "failed to release idempotency claim", delErr)
		}
		return outcomeNack
	}
}
