package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/money"
	"github.com/angelmondragon/storefront-payments/pkg/square"
)

// Name is the registry key of the Square adapter.
const Name = "square"

// api is the subset of pkg/square.Client the adapter calls.
type api interface {
	CreatePayment(ctx context.Context, params square.PaymentCreateParams) (*square.Payment, error)
	GetPayment(ctx context.Context, paymentID string) (*square.Payment, error)
	RefundPayment(ctx context.Context, params square.RefundCreateParams) (*square.Refund, error)
}

// Adapter takes card-on-file or tokenized payments through Square.
type Adapter struct {
	client api
	logg   *logger.Logger
}

func NewAdapter(client api, logg *logger.Logger) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("square client is required")
	}
	return &Adapter{client: client, logg: logg}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.PaymentRequest) (*gateways.Result, error) {
	source := strings.TrimSpace(req.SourceToken)
	if source == "" {
		return gateways.Failure("square payments require a payment_token"), nil
	}
	currency := money.NormalizeCurrency(req.Currency)
	amount, err := money.ToMinorUnits(req.Amount, currency)
	if err != nil {
		return gateways.Failure(err.Error()), nil
	}

	payment, err := a.client.CreatePayment(ctx, square.PaymentCreateParams{
		AmountMinor:    amount,
		Currency:       currency,
		SourceID:       source,
		IdempotencyKey: req.IdempotencyKey,
		ReferenceID:    req.OrderID.String(),
		Note:           fmt.Sprintf("order %s", req.OrderID),
	})
	if res, err := declineOrError(err, "create payment"); res != nil || err != nil {
		return res, err
	}

	res := paymentResult(payment)
	if res.Currency == "" {
		res.Currency = currency
	}
	if res.Amount.IsZero() {
		res.Amount = req.Amount
	}
	a.log(ctx, "square payment created", map[string]any{
		"payment_id": payment.ID,
		"status":     payment.Status,
		"order_id":   req.OrderID.String(),
	})
	return res, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, paymentID string) (*gateways.Result, error) {
	payment, err := a.client.GetPayment(ctx, paymentID)
	if res, err := declineOrError(err, "get payment"); res != nil || err != nil {
		return res, err
	}
	return paymentResult(payment), nil
}

// RefundPayment refunds the requested amount. Square always needs an explicit
// amount, so a full refund first reads the captured amount back.
func (a *Adapter) RefundPayment(ctx context.Context, req gateways.RefundRequest) (*gateways.Result, error) {
	currency := money.NormalizeCurrency(req.Currency)
	var amount int64
	if req.Amount != nil {
		minor, err := money.ToMinorUnits(*req.Amount, currency)
		if err != nil {
			return gateways.Failure(err.Error()), nil
		}
		amount = minor
	} else {
		payment, err := a.client.GetPayment(ctx, req.PaymentID)
		if res, err := declineOrError(err, "get payment"); res != nil || err != nil {
			return res, err
		}
		amount = payment.AmountMinor
		if payment.Currency != "" {
			currency = money.NormalizeCurrency(payment.Currency)
		}
	}

	refund, err := a.client.RefundPayment(ctx, square.RefundCreateParams{
		PaymentID:      req.PaymentID,
		AmountMinor:    amount,
		Currency:       currency,
		Reason:         req.Reason,
		IdempotencyKey: req.IdempotencyKey,
	})
	if res, err := declineOrError(err, "refund payment"); res != nil || err != nil {
		return res, err
	}

	status := strings.ToUpper(refund.Status)
	res := &gateways.Result{
		Success:   status != "REJECTED" && status != "FAILED",
		PaymentID: req.PaymentID,
		RefundID:  refund.ID,
		Status:    refund.Status,
		Amount:    money.FromMinorUnits(amount, currency),
		Currency:  currency,
		Snapshot:  refund.Raw,
	}
	if !res.Success {
		res.ErrorMessage = fmt.Sprintf("refund %s", strings.ToLower(status))
	}
	a.log(ctx, "square refund created", map[string]any{
		"payment_id": req.PaymentID,
		"refund_id":  refund.ID,
		"status":     refund.Status,
	})
	return res, nil
}

func paymentResult(payment *square.Payment) *gateways.Result {
	currency := money.NormalizeCurrency(payment.Currency)
	return &gateways.Result{
		Success:   true,
		PaymentID: payment.ID,
		Status:    payment.Status,
		Amount:    money.FromMinorUnits(payment.AmountMinor, currency),
		Currency:  currency,
		Snapshot:  payment.Raw,
	}
}

// declineOrError treats client-side rejections from Square (4xx mapped to
// validation or state codes) as declines and everything else as a fault.
func declineOrError(err error, op string) (*gateways.Result, error) {
	if err == nil {
		return nil, nil
	}
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeValidation), pkgerrors.IsCode(err, pkgerrors.CodeStateConflict):
		return gateways.Failure(fmt.Sprintf("square declined the %s request", op)), nil
	}
	return nil, fmt.Errorf("square %s: %w", op, err)
}

func (a *Adapter) log(ctx context.Context, msg string, fields map[string]any) {
	if a.logg == nil {
		return
	}
	a.logg.Info(a.logg.WithFields(a.logg.WithGateway(ctx, Name), fields), msg)
}
