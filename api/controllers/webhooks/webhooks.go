package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/storefront-payments/api/responses"
	"github.com/angelmondragon/storefront-payments/internal/webhooks"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

const maxPayloadBytes = 1 << 20

// Processor verifies and applies one raw delivery.
type Processor interface {
	Process(ctx context.Context, gateway string, headers http.Header, body []byte) (*webhooks.Outcome, error)
}

// Receive authenticates and applies a processor callback for the gateway named
// in the path. Duplicates and irrelevant events are acknowledged with 200 so
// the processor stops retrying.
func Receive(svc Processor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		gateway := strings.ToLower(strings.TrimSpace(chi.URLParam(r, "gateway")))
		if logg != nil {
			ctx = logg.WithGateway(ctx, gateway)
		}

		payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		outcome, err := svc.Process(ctx, gateway, r.Header, payload)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, outcome)
	}
}
