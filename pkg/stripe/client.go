// Package stripe is the thin Stripe API surface the payment gateway uses:
// customers, ephemeral keys, payment intents and refunds.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/ephemeralkey"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/refund"

	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

// keyPrefixes lists the secret and restricted key prefixes each mode accepts.
var keyPrefixes = map[string][]string{
	"test": {"sk_test_", "rk_test_"},
	"live": {"sk_live_", "rk_live_"},
}

var (
	errAPIKeyRequired = errors.New("stripe api key is required")
	errSecretRequired = errors.New("stripe webhook secret is required")
)

// Client holds the webhook secret and calls Stripe with the configured key.
type Client struct {
	mode                string
	webhookSecret       string
	ephemeralKeyVersion string
	logg                *logger.Logger
}

// NewClient checks the key against the configured mode before installing it.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode := cfg.Environment()
	prefixes, ok := keyPrefixes[mode]
	if !ok {
		return nil, fmt.Errorf("stripe environment must be test or live, got %q", mode)
	}
	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)
	switch {
	case key == "":
		return nil, errAPIKeyRequired
	case secret == "":
		return nil, errSecretRequired
	case !hasAnyPrefix(key, prefixes):
		return nil, fmt.Errorf("stripe %s mode needs a %s key", mode, strings.Join(prefixes, " or "))
	}

	stripe.Key = key
	c := &Client{
		mode:                mode,
		webhookSecret:       secret,
		ephemeralKeyVersion: strings.TrimSpace(cfg.EphemeralKeyVersion),
		logg:                logg,
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "mode", mode), "stripe client ready")
	}
	return c, nil
}

// Environment is "test" or "live".
func (c *Client) Environment() string {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret verifies Stripe-Signature headers on webhooks.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.webhookSecret
}

func (c *Client) CreateCustomer(ctx context.Context, params *stripe.CustomerParams) (*stripe.Customer, error) {
	params = orNew(params)
	params.Context = ctx
	return send(ctx, c, "customer.create", func() (*stripe.Customer, error) { return customer.New(params) })
}

// CreateEphemeralKey issues the short-lived customer key mobile SDKs need,
// pinned to the configured API version.
func (c *Client) CreateEphemeralKey(ctx context.Context, customerID string) (*stripe.EphemeralKey, error) {
	params := &stripe.EphemeralKeyParams{Customer: stripe.String(customerID)}
	if c != nil && c.ephemeralKeyVersion != "" {
		params.StripeVersion = stripe.String(c.ephemeralKeyVersion)
	}
	params.Context = ctx
	return send(ctx, c, "ephemeral_key.create", func() (*stripe.EphemeralKey, error) { return ephemeralkey.New(params) })
}

func (c *Client) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	params = orNew(params)
	params.Context = ctx
	return send(ctx, c, "payment_intent.create", func() (*stripe.PaymentIntent, error) { return paymentintent.New(params) })
}

func (c *Client) GetPaymentIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	return send(ctx, c, "payment_intent.get", func() (*stripe.PaymentIntent, error) { return paymentintent.Get(id, params) })
}

// CreateRefund refunds all of a PaymentIntent, or Amount of it when set.
func (c *Client) CreateRefund(ctx context.Context, params *stripe.RefundParams) (*stripe.Refund, error) {
	params = orNew(params)
	params.Context = ctx
	return send(ctx, c, "refund.create", func() (*stripe.Refund, error) { return refund.New(params) })
}

// send times a Stripe call and logs its outcome. Errors come back unchanged
// so callers can inspect *stripe.Error.
func send[T any](ctx context.Context, c *Client, op string, call func() (*T, error)) (*T, error) {
	started := time.Now()
	out, err := call()
	if c == nil || c.logg == nil {
		return out, err
	}
	fields := map[string]any{"operation": op, "elapsed_ms": time.Since(started).Milliseconds()}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		fields["stripe_type"] = string(stripeErr.Type)
		fields["stripe_code"] = string(stripeErr.Code)
		fields["http_status"] = stripeErr.HTTPStatusCode
		fields["request_id"] = stripeErr.RequestID
	}
	logCtx := c.logg.WithFields(c.logg.WithGateway(ctx, "stripe"), fields)
	if err != nil {
		c.logg.Error(logCtx, "stripe call failed", err)
		return out, err
	}
	c.logg.Debug(logCtx, "stripe call succeeded")
	return out, nil
}

func orNew[T any](params *T) *T {
	if params == nil {
		return new(T)
	}
	return params
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
