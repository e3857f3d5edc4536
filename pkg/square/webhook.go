package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 signature Square attaches to webhook
// notifications.
const SignatureHeader = "x-square-hmacsha256-signature"

var ErrInvalidSignature = errors.New("square webhook signature mismatch")

// VerifyWebhookSignature checks the notification signature, computed over the
// subscription's notification URL followed by the raw request body.
func (c *Client) VerifyWebhookSignature(body []byte, signature string) error {
	if c == nil {
		return ErrInvalidSignature
	}
	return VerifySignature(c.signatureKey, c.notificationURL, body, signature)
}

func VerifySignature(key, notificationURL string, body []byte, signature string) error {
	signature = strings.TrimSpace(signature)
	if key == "" || signature == "" {
		return ErrInvalidSignature
	}
	expected := Sign(key, notificationURL, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign returns the base64 signature Square would send for the payload.
func Sign(key, notificationURL string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
