package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-payments/internal/gateways"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/money"
)

// Name is the registry key of the Stripe adapter.
const Name = "stripe"

// api is the subset of pkg/stripe.Client the adapter calls.
type api interface {
	CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error)
	CreateEphemeralKey(ctx context.Context, customerID string) (*stripe.EphemeralKey, error)
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error)
}

// Adapter routes card and wallet payments through Stripe PaymentIntents.
type Adapter struct {
	client api
	logg   *logger.Logger
}

func NewAdapter(client api, logg *logger.Logger) (*Adapter, error) {
	if client == nil {
		return nil, errors.New("stripe client is required")
	}
	return &Adapter{client: client, logg: logg}, nil
}

func (a *Adapter) Name() string { return Name }

func (a *Adapter) CreatePayment(ctx context.Context, req gateways.PaymentRequest) (*gateways.Result, error) {
	currency := money.NormalizeCurrency(req.Currency)
	amount, err := money.ToMinorUnits(req.Amount, currency)
	if err != nil {
		return gateways.Failure(err.Error()), nil
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	var customerID, ephemeralSecret string
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		params := &stripe.CustomerParams{
			Email: stripe.String(email),
		}
		if name := strings.TrimSpace(req.Customer.Name); name != "" {
			params.Name = stripe.String(name)
		}
		if phone := strings.TrimSpace(req.Customer.Phone); phone != "" {
			params.Phone = stripe.String(phone)
		}
		params.AddMetadata("order_id", req.OrderID.String())
		// A retried checkout must land on the same customer, not a duplicate.
		if key != "" {
			params.SetIdempotencyKey(key + ":customer")
		}
		cust, err := a.client.CreateCustomer(ctx, params)
		if res, err := declineOrError(err, "create customer"); res != nil || err != nil {
			return res, err
		}
		customerID = cust.ID

		ephemeral, err := a.client.CreateEphemeralKey(ctx, customerID)
		if res, err := declineOrError(err, "create ephemeral key"); res != nil || err != nil {
			return res, err
		}
		ephemeralSecret = ephemeral.Secret
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amount),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	if customerID != "" {
		params.Customer = stripe.String(customerID)
	}
	if email := strings.TrimSpace(req.Customer.Email); email != "" {
		params.ReceiptEmail = stripe.String(email)
	}
	params.AddMetadata("order_id", req.OrderID.String())
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	if key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := a.client.CreatePaymentIntent(ctx, params)
	if res, err := declineOrError(err, "create payment intent"); res != nil || err != nil {
		return res, err
	}

	res := intentResult(intent)
	res.ClientSecret = intent.ClientSecret
	res.EphemeralKey = ephemeralSecret
	res.CustomerHandle = customerID
	a.log(ctx, "stripe payment intent created", map[string]any{
		"payment_id": intent.ID,
		"status":     string(intent.Status),
		"order_id":   req.OrderID.String(),
	})
	return res, nil
}

func (a *Adapter) GetPaymentStatus(ctx context.Context, paymentID string) (*gateways.Result, error) {
	intent, err := a.client.GetPaymentIntent(ctx, paymentID)
	if res, err := declineOrError(err, "retrieve payment intent"); res != nil || err != nil {
		return res, err
	}
	res := intentResult(intent)
	res.ClientSecret = intent.ClientSecret
	if intent.Customer != nil {
		res.CustomerHandle = intent.Customer.ID
	}
	return res, nil
}

func (a *Adapter) RefundPayment(ctx context.Context, req gateways.RefundRequest) (*gateways.Result, error) {
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentID),
	}
	if req.Amount != nil {
		amount, err := money.ToMinorUnits(*req.Amount, req.Currency)
		if err != nil {
			return gateways.Failure(err.Error()), nil
		}
		params.Amount = stripe.Int64(amount)
	}
	if reason := refundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	refund, err := a.client.CreateRefund(ctx, params)
	if res, err := declineOrError(err, "create refund"); res != nil || err != nil {
		return res, err
	}

	status := string(refund.Status)
	res := &gateways.Result{
		Success:   refund.Status != stripe.RefundStatusFailed && refund.Status != stripe.RefundStatusCanceled,
		PaymentID: req.PaymentID,
		RefundID:  refund.ID,
		Status:    status,
		Amount:    money.FromMinorUnits(refund.Amount, string(refund.Currency)),
		Currency:  money.NormalizeCurrency(string(refund.Currency)),
		Snapshot:  gateways.Snapshot(refund),
	}
	if !res.Success {
		res.ErrorMessage = fmt.Sprintf("refund %s", status)
	}
	a.log(ctx, "stripe refund created", map[string]any{
		"payment_id": req.PaymentID,
		"refund_id":  refund.ID,
		"status":     status,
	})
	return res, nil
}

func intentResult(intent *stripe.PaymentIntent) *gateways.Result {
	currency := money.NormalizeCurrency(string(intent.Currency))
	return &gateways.Result{
		Success:   true,
		PaymentID: intent.ID,
		Status:    string(intent.Status),
		Amount:    money.FromMinorUnits(intent.Amount, currency),
		Currency:  currency,
		Snapshot:  gateways.Snapshot(intent, "client_secret"),
	}
}

// declineOrError splits card declines (reported as results) from transport
// and API faults (reported as errors). Both nil means the call succeeded.
func declineOrError(err error, op string) (*gateways.Result, error) {
	if err == nil {
		return nil, nil
	}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.Type == stripe.ErrorTypeCard || stripeErr.Type == stripe.ErrorTypeInvalidRequest {
			msg := stripeErr.Msg
			if msg == "" {
				msg = "payment was declined"
			}
			return gateways.Failure(msg), nil
		}
	}
	return nil, fmt.Errorf("stripe %s: %w", op, err)
}

func refundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}

func (a *Adapter) log(ctx context.Context, msg string, fields map[string]any) {
	if a.logg == nil {
		return
	}
	a.logg.Info(a.logg.WithFields(a.logg.WithGateway(ctx, Name), fields), msg)
}
