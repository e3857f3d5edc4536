package middleware

import (
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-payments/api/responses"
	pkgAuth "github.com/angelmondragon/storefront-payments/pkg/auth"
	"github.com/angelmondragon/storefront-payments/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-payments/pkg/errors"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
)

// OptionalAuth lets anonymous checkout traffic through. When an
// Authorization header is sent it must carry a valid token; its claims are
// then available through CustomerIDFromContext and friends.
func OptionalAuth(cfg config.JWTConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := strings.TrimSpace(r.Header.Get("Authorization"))
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			token := bearerToken(header)
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}
			claims, err := pkgAuth.ParseAccessToken(cfg, token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}

			p := principal{
				customerID:   claims.CustomerID.String(),
				customerType: string(claims.CustomerType),
				deviceID:     claims.DeviceID,
			}
			ctx := withPrincipal(r.Context(), p)
			if logg != nil {
				ctx = logg.WithFields(logg.WithCustomerID(ctx, p.customerID), map[string]any{"customer_type": p.customerType})
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken accepts "Bearer <token>" in any case, or a bare token.
func bearerToken(header string) string {
	scheme, rest, found := strings.Cut(header, " ")
	if found && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(rest)
	}
	if found {
		return ""
	}
	return header
}
