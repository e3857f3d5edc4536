package gateways

import (
	"errors"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
)

const defaultFailureMessage = "payment gateway request failed"

// FailureError converts a failed adapter call (a declined result, a fault or
// both) into the CodeGateway error returned to callers.
func FailureError(orderID uuid.UUID, res *Result, err error) *pkgerrors.Error {
	msg := defaultFailureMessage
	switch {
	case res != nil && res.ErrorMessage != "":
		msg = res.ErrorMessage
	case errors.Is(err, ErrGatewayTimeout):
		msg = "gateway timeout"
	}
	return pkgerrors.Wrap(pkgerrors.CodeGateway, err, msg).
		WithDetails(map[string]any{"order_id": orderID.String()})
}

// Failed reports whether an adapter call must be treated as a failure.
func Failed(res *Result, err error) bool {
	return err != nil || res == nil || !res.Success
}
