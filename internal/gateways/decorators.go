package gateways

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-payments/pkg/metrics"
)

const (
	opCreatePayment = "create_payment"
	opGetStatus     = "get_payment_status"
	opRefund        = "refund_payment"
)

type timeoutAdapter struct {
	next    Adapter
	timeout time.Duration
}

// WithTimeout bounds every call on the adapter. A deadline surfaces as a
// declined Result plus ErrGatewayTimeout, never as success.
func WithTimeout(adapter Adapter, timeout time.Duration) Adapter {
	if adapter == nil || timeout <= 0 {
		return adapter
	}
	return &timeoutAdapter{next: adapter, timeout: timeout}
}

func (a *timeoutAdapter) Name() string { return a.next.Name() }

func (a *timeoutAdapter) CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	return a.call(ctx, opCreatePayment, func(ctx context.Context) (*Result, error) {
		return a.next.CreatePayment(ctx, req)
	})
}

func (a *timeoutAdapter) GetPaymentStatus(ctx context.Context, paymentID string) (*Result, error) {
	return a.call(ctx, opGetStatus, func(ctx context.Context) (*Result, error) {
		return a.next.GetPaymentStatus(ctx, paymentID)
	})
}

func (a *timeoutAdapter) RefundPayment(ctx context.Context, req RefundRequest) (*Result, error) {
	return a.call(ctx, opRefund, func(ctx context.Context) (*Result, error) {
		return a.next.RefundPayment(ctx, req)
	})
}

func (a *timeoutAdapter) call(ctx context.Context, op string, fn func(context.Context) (*Result, error)) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := fn(ctx)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failure("gateway timeout"), fmt.Errorf("%s %s: %w", a.next.Name(), op, ErrGatewayTimeout)
		}
		return out.res, out.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Failure("gateway timeout"), fmt.Errorf("%s %s: %w", a.next.Name(), op, ErrGatewayTimeout)
		}
		return Failure("gateway call canceled"), fmt.Errorf("%s %s: %w", a.next.Name(), op, ctx.Err())
	}
}

type metricsAdapter struct {
	next    Adapter
	metrics *metrics.GatewayMetrics
}

// WithMetrics records latency and outcome for each call.
func WithMetrics(adapter Adapter, gm *metrics.GatewayMetrics) Adapter {
	if adapter == nil || gm == nil {
		return adapter
	}
	return &metricsAdapter{next: adapter, metrics: gm}
}

func (a *metricsAdapter) Name() string { return a.next.Name() }

func (a *metricsAdapter) CreatePayment(ctx context.Context, req PaymentRequest) (*Result, error) {
	start := time.Now()
	res, err := a.next.CreatePayment(ctx, req)
	a.metrics.Observe(a.next.Name(), opCreatePayment, outcomeOf(res, err), time.Since(start))
	return res, err
}

func (a *metricsAdapter) GetPaymentStatus(ctx context.Context, paymentID string) (*Result, error) {
	start := time.Now()
	res, err := a.next.GetPaymentStatus(ctx, paymentID)
	a.metrics.Observe(a.next.Name(), opGetStatus, outcomeOf(res, err), time.Since(start))
	return res, err
}

func (a *metricsAdapter) RefundPayment(ctx context.Context, req RefundRequest) (*Result, error) {
	start := time.Now()
	res, err := a.next.RefundPayment(ctx, req)
	a.metrics.Observe(a.next.Name(), opRefund, outcomeOf(res, err), time.Since(start))
	return res, err
}

func outcomeOf(res *Result, err error) string {
	switch {
	case errors.Is(err, ErrGatewayTimeout):
		return "timeout"
	case err != nil:
		return "error"
	case res == nil || !res.Success:
		return "declined"
	default:
		return "success"
	}
}
