package stripewebhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-payments/internal/webhooks"
)

// SignatureHeader is the header Stripe signs deliveries with.
const SignatureHeader = "Stripe-Signature"

var errMissingSignature = errors.New("stripe signature missing")

type signingClient interface {
	SigningSecret() string
}

// Source reads payment intent events.
type Source struct {
	client signingClient
}

func NewSource(client signingClient) (*Source, error) {
	if client == nil {
		return nil, errors.New("stripe client required")
	}
	return &Source{client: client}, nil
}

func (s *Source) Name() string { return "stripe" }

func (s *Source) Verify(headers http.Header, body []byte) error {
	sig := headers.Get(SignatureHeader)
	if sig == "" {
		return errMissingSignature
	}
	_, err := webhook.ConstructEvent(body, sig, s.client.SigningSecret())
	return err
}

func (s *Source) Parse(body []byte) (*webhooks.Notification, error) {
	var event stripe.Event
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(string(event.Type), "payment_intent.") || event.Data == nil {
		return nil, nil
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, err
	}
	if intent.ID == "" {
		return nil, errors.New("payment intent id missing")
	}
	return &webhooks.Notification{
		EventID:   event.ID,
		PaymentID: intent.ID,
		Status:    string(intent.Status),
	}, nil
}
