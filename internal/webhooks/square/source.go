package squarewebhook

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-payments/internal/webhooks"
	"github.com/angelmondragon/storefront-payments/pkg/square"
)

type signatureVerifier interface {
	VerifyWebhookSignature(body []byte, signature string) error
}

type event struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Type   string `json:"type"`
		ID     string `json:"id"`
		Object struct {
			Payment *struct {
				ID     string `json:"id"`
				Status string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// Source reads payment.created and payment.updated notifications.
type Source struct {
	verifier signatureVerifier
}

func NewSource(verifier signatureVerifier) (*Source, error) {
	if verifier == nil {
		return nil, errors.New("square client required")
	}
	return &Source{verifier: verifier}, nil
}

func (s *Source) Name() string { return "square" }

func (s *Source) Verify(headers http.Header, body []byte) error {
	return s.verifier.VerifyWebhookSignature(body, headers.Get(square.SignatureHeader))
}

func (s *Source) Parse(body []byte) (*webhooks.Notification, error) {
	var evt event
	if err := json.Unmarshal(body, &evt); err != nil {
		return nil, err
	}
	if !strings.HasPrefix(evt.Type, "payment.") {
		return nil, nil
	}
	payment := evt.Data.Object.Payment
	if payment == nil || payment.ID == "" {
		return nil, errors.New("payment id missing")
	}
	return &webhooks.Notification{
		EventID:   evt.EventID,
		PaymentID: payment.ID,
		Status:    payment.Status,
	}, nil
}
