package squarewebhook

import (
	"net/http"
	"testing"

	"github.com/angelmondragon/storefront-payments/pkg/square"
)

const (
	testKey = "sig_key"
	testURL = "https://shop.example.com/api/v1/webhooks/square"
)

type keyVerifier struct{}

func (keyVerifier) VerifyWebhookSignature(body []byte, signature string) error {
	return square.VerifySignature(testKey, testURL, body, signature)
}

const paymentUpdated = `{
  "merchant_id": "M1",
  "type": "payment.updated",
  "event_id": "evt-sq-1",
  "data": {
    "type": "payment",
    "id": "sq_pay_1",
    "object": {"payment": {"id": "sq_pay_1", "status": "COMPLETED"}}
  }
}`

func TestSourceVerifiesSignature(t *testing.T) {
	src, err := NewSource(keyVerifier{})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	body := []byte(paymentUpdated)

	headers := http.Header{}
	headers.Set(square.SignatureHeader, square.Sign(testKey, testURL, body))
	if err := src.Verify(headers, body); err != nil {
		t.Fatalf("verify: %v", err)
	}

	headers.Set(square.SignatureHeader, square.Sign("wrong", testURL, body))
	if err := src.Verify(headers, body); err == nil {
		t.Fatal("expected signature mismatch")
	}
}

func TestSourceParsesPaymentNotifications(t *testing.T) {
	src, _ := NewSource(keyVerifier{})
	n, err := src.Parse([]byte(paymentUpdated))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n == nil || n.PaymentID != "sq_pay_1" || n.Status != "COMPLETED" || n.EventID != "evt-sq-1" {
		t.Fatalf("unexpected notification %+v", n)
	}

	n, err = src.Parse([]byte(`{"type":"refund.created","event_id":"evt-2","data":{}}`))
	if err != nil || n != nil {
		t.Fatalf("expected refund events to be skipped, got %+v %v", n, err)
	}

	if _, err := src.Parse([]byte(`{"type":"payment.updated","data":{"object":{}}}`)); err == nil {
		t.Fatal("expected error when payment is missing")
	}
}
