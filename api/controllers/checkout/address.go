package checkout

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-payments/api/middleware"
	"github.com/angelmondragon/storefront-payments/api/responses"
	"github.com/angelmondragon/storefront-payments/api/validators"
	"github.com/angelmondragon/storefront-payments/internal/identity"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

// DeviceIDHeader scopes guest tokens to the browser or app that checked out.
const DeviceIDHeader = "X-Device-Id"

// Address resolves the checkout customer and shipping address.
func Address(svc identity.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "identity service unavailable"))
			return
		}

		var input identity.ResolveInput
		if err := validators.DecodeJSONBody(r, &input, false); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if raw := middleware.CustomerIDFromContext(ctx); raw != "" {
			subject, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token subject"))
				return
			}
			input.Subject = &subject
		}
		input.DeviceID = strings.TrimSpace(r.Header.Get(DeviceIDHeader))
		if input.DeviceID == "" {
			input.DeviceID = middleware.DeviceIDFromContext(ctx)
		}

		result, err := svc.Resolve(ctx, input)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
