package gateways

import (
	"strings"

	"github.com/angelmondragon/storefront-payments/pkg/enums"
)

// MapStatus translates processor vocabulary into the local payment status.
// The boolean is false for vocabulary with no local meaning, which callers
// must treat as "no change".
func MapStatus(raw string) (enums.PaymentStatus, bool) {
	status := strings.ToLower(strings.TrimSpace(raw))
	switch status {
	case "succeeded", "captured", "completed":
		return enums.PaymentStatusCompleted, true
	case "pending", "processing", "approved":
		return enums.PaymentStatusPending, true
	case "failed", "canceled", "cancelled":
		return enums.PaymentStatusFailed, true
	}
	if strings.HasPrefix(status, "requires_") {
		return enums.PaymentStatusPending, true
	}
	return "", false
}
