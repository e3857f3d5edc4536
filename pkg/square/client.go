package square

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqclient "github.com/square/square-go-sdk/client"
	sqcore "github.com/square/square-go-sdk/core"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

// sensitiveKeys never reach the logs verbatim.
var sensitiveKeys = []string{"card", "nonce", "token", "cvv", "cvc", "secret", "email", "phone", "source"}

// statusCodes maps Square HTTP statuses onto domain error codes. Unlisted 4xx
// statuses are validation failures; everything else is a dependency failure.
var statusCodes = map[int]pkgerrors.Code{
	http.StatusBadRequest:          pkgerrors.CodeValidation,
	http.StatusUnauthorized:        pkgerrors.CodeUnauthorized,
	http.StatusForbidden:           pkgerrors.CodeForbidden,
	http.StatusNotFound:            pkgerrors.CodeNotFound,
	http.StatusConflict:            pkgerrors.CodeConflict,
	http.StatusUnprocessableEntity: pkgerrors.CodeStateConflict,
	http.StatusTooManyRequests:     pkgerrors.CodeRateLimit,
}

// Client wraps the Square SDK with logging, idempotency keys and error
// mapping for the payment and refund calls the storefront makes.
type Client struct {
	sdk             *sqclient.Client
	env             string
	signatureKey    string
	notificationURL string
	locationID      string
	logg            *logger.Logger
}

// NewClient validates the Square credentials and builds the SDK client.
func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	endpoint, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("unsupported square environment %q", env)
	}
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, errors.New("square access token is required")
	}
	signatureKey := strings.TrimSpace(cfg.WebhookKey)
	if signatureKey == "" {
		return nil, errors.New("square webhook signature key is required")
	}

	logg.Info(logg.WithField(ctx, "square_env", env), "square client initialized")
	return &Client{
		sdk:             sqclient.NewClient(sqoption.WithBaseURL(endpoint), sqoption.WithToken(token)),
		env:             env,
		signatureKey:    signatureKey,
		notificationURL: strings.TrimSpace(cfg.NotificationURL),
		locationID:      strings.TrimSpace(cfg.LocationID),
		logg:            logg,
	}, nil
}

// CreatePayment charges a card nonce or stored card. The configured location
// is used when params carry none.
func (c *Client) CreatePayment(ctx context.Context, params PaymentCreateParams) (*Payment, error) {
	if strings.TrimSpace(params.LocationID) == "" {
		params.LocationID = c.locationID
	}
	req := params.toSquareRequest(idempotencyKey("payment", params.IdempotencyKey))
	fields := map[string]any{
		"location_id":  params.LocationID,
		"customer_id":  params.CustomerID,
		"reference_id": params.ReferenceID,
		"amount":       params.AmountMinor,
	}
	snapshot, err := call(ctx, c, "create payment", fields, func() (any, error) {
		resp, err := c.sdk.Payments.Create(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
	if err != nil {
		return nil, err
	}
	return paymentFromSnapshot(snapshot), nil
}

// GetPayment fetches the current state of a payment.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (*Payment, error) {
	snapshot, err := call(ctx, c, "get payment", map[string]any{"payment_id": paymentID}, func() (any, error) {
		resp, err := c.sdk.Payments.Get(ctx, &sq.GetPaymentsRequest{PaymentID: paymentID})
		if err != nil {
			return nil, err
		}
		return resp.GetPayment(), nil
	})
	if err != nil {
		return nil, err
	}
	return paymentFromSnapshot(snapshot), nil
}

// RefundPayment refunds all or part of a completed payment.
func (c *Client) RefundPayment(ctx context.Context, params RefundCreateParams) (*Refund, error) {
	req := params.toSquareRequest(idempotencyKey("refund", params.IdempotencyKey))
	fields := map[string]any{
		"payment_id": params.PaymentID,
		"amount":     params.AmountMinor,
	}
	snapshot, err := call(ctx, c, "refund payment", fields, func() (any, error) {
		resp, err := c.sdk.Refunds.RefundPayment(ctx, req)
		if err != nil {
			return nil, err
		}
		return resp.GetRefund(), nil
	})
	if err != nil {
		return nil, err
	}
	return refundFromSnapshot(snapshot), nil
}

// call logs the request, runs it and maps failures to domain errors. The SDK
// response is returned as its JSON snapshot.
func call(ctx context.Context, c *Client, op string, fields map[string]any, do func() (any, error)) (map[string]any, error) {
	ctx = c.logg.WithFields(ctx, redactFields(op, fields))
	c.logg.Debug(ctx, "square request")

	out, err := do()
	if err != nil {
		mapped := mapError(err, op)
		c.logg.Error(ctx, "square request failed", mapped)
		return nil, mapped
	}
	snapshot := snapshotOf(out)
	c.logg.Info(c.logg.WithFields(ctx, map[string]any{
		"square_id": stringField(snapshot, "id"),
		"status":    stringField(snapshot, "status"),
	}), "square response")
	return snapshot, nil
}

func idempotencyKey(prefix, provided string) string {
	if key := strings.TrimSpace(provided); key != "" {
		return key
	}
	return prefix + "-" + uuid.NewString()
}

func redactFields(op string, fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	out["operation"] = op
	for k, v := range fields {
		out[k] = redact(k, v)
	}
	return out
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func mapError(err error, op string) error {
	msg := "square " + op + " failed"
	var apiErr *sqcore.APIError
	if !errors.As(err, &apiErr) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
	}
	code := codeForStatus(apiErr.StatusCode)
	for _, detail := range squareErrors(apiErr) {
		switch {
		case detail == nil:
			continue
		case detail.Code == sq.ErrorCodeIdempotencyKeyReused:
			return pkgerrors.Wrap(pkgerrors.CodeIdempotency, err, msg)
		case detail.Category == sq.ErrorCategoryAuthenticationError:
			return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, msg)
		}
	}
	return pkgerrors.Wrap(code, err, msg)
}

// squareErrors decodes the error list carried in the API error body.
func squareErrors(apiErr *sqcore.APIError) []*sq.Error {
	inner := apiErr.Unwrap()
	if inner == nil {
		return nil
	}
	var body struct {
		Errors []*sq.Error `json:"errors"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(inner.Error())), &body); err != nil {
		return nil
	}
	return body.Errors
}

func codeForStatus(status int) pkgerrors.Code {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	if status >= 400 && status < 500 {
		return pkgerrors.CodeValidation
	}
	return pkgerrors.CodeDependency
}
