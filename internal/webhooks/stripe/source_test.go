package stripewebhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"
)

type fakeSigningClient struct {
	secret string
}

func (c *fakeSigningClient) SigningSecret() string {
	return c.secret
}

func TestSourceVerifiesAndParsesPaymentIntentEvents(t *testing.T) {
	src, err := NewSource(&fakeSigningClient{secret: "whsec_test"})
	if err != nil {
		t.Fatalf("new source: %v", err)
	}
	payload := buildEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_123", Status: stripe.PaymentIntentStatusSucceeded})

	headers := http.Header{}
	headers.Set(SignatureHeader, signatureHeader(payload, "whsec_test", time.Now().Unix()))
	if err := src.Verify(headers, payload); err != nil {
		t.Fatalf("verify: %v", err)
	}

	n, err := src.Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n == nil || n.PaymentID != "pi_123" || n.Status != "succeeded" || n.EventID != "evt_1" {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestSourceRejectsForgedSignature(t *testing.T) {
	src, _ := NewSource(&fakeSigningClient{secret: "whsec_test"})
	payload := buildEvent(t, stripe.EventTypePaymentIntentSucceeded, &stripe.PaymentIntent{ID: "pi_1"})

	headers := http.Header{}
	if err := src.Verify(headers, payload); err == nil {
		t.Fatal("expected missing signature to fail")
	}
	headers.Set(SignatureHeader, signatureHeader(payload, "whsec_other", time.Now().Unix()))
	if err := src.Verify(headers, payload); err == nil {
		t.Fatal("expected signature from another secret to fail")
	}
}

func TestSourceIgnoresNonPaymentEvents(t *testing.T) {
	src, _ := NewSource(&fakeSigningClient{secret: "whsec_test"})
	payload := buildEvent(t, stripe.EventTypeCustomerCreated, &stripe.Customer{ID: "cus_1"})
	n, err := src.Parse(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if n != nil {
		t.Fatalf("expected no notification, got %+v", n)
	}
}

func buildEvent(t *testing.T, typ stripe.EventType, object any) []byte {
	t.Helper()
	raw, err := json.Marshal(object)
	if err != nil {
		t.Fatalf("marshal object: %v", err)
	}
	event := &stripe.Event{
		ID:         "evt_1",
		Type:       typ,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data:       &stripe.EventData{Raw: raw},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func signatureHeader(payload []byte, secret string, ts int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(fmt.Sprintf("%d.%s", ts, payload)))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}
