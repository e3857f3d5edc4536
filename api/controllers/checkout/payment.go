package checkout

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/api/responses"
	"github.com/angelmondragon/storefront-payments/api/validators"
	checkoutsvc "github.com/angelmondragon/storefront-payments/internal/checkout"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

// Payment starts payment for an existing order. Gateway failures come back as
// 502 with the processor message and the order id in details.
func Payment(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		orderID, err := validators.URLUUID(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}

		var input checkoutsvc.ProcessPaymentInput
		if err := validators.DecodeJSONBody(r, &input, false); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if input.OrderID != uuid.Nil && input.OrderID != orderID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id mismatch").
				WithDetails(map[string]string{"order_id": "does not match the order in the path"}))
			return
		}
		input.OrderID = orderID
		input.IdempotencyKey = strings.TrimSpace(r.Header.Get("Idempotency-Key"))

		result, err := svc.ProcessPayment(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
