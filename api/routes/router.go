package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-payments/api/controllers"
	checkoutcontrollers "github.com/angelmondragon/storefront-payments/api/controllers/checkout"
	ordercontrollers "github.com/angelmondragon/storefront-payments/api/controllers/orders"
	webhookcontrollers "github.com/angelmondragon/storefront-payments/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-payments/api/middleware"
	"github.com/angelmondragon/storefront-payments/internal/checkout"
	"github.com/angelmondragon/storefront-payments/internal/identity"
	"github.com/angelmondragon/storefront-payments/internal/orders"
	"github.com/angelmondragon/storefront-payments/internal/refunds"
	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/redis"
)

// redisStore is the slice of the redis client the middleware chain needs.
type redisStore interface {
	redis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	store redisStore,
	gatherer prometheus.Gatherer,
	identityService identity.Service,
	checkoutService checkout.Service,
	ordersService orders.Service,
	refundService refunds.Service,
	webhookService webhookcontrollers.Processor,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.AllowedOrigins),
	)

	addressPolicy := middleware.NewRateLimitPolicy(
		"checkout_address",
		cfg.RateLimit.CheckoutWindow,
		cfg.RateLimit.CheckoutIPLimit,
		cfg.RateLimit.CheckoutEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// processors authenticate with signatures, not bearer tokens
	r.Post("/api/v1/webhooks/{gateway}", webhookcontrollers.Receive(webhookService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))

		r.With(middleware.RateLimit(addressPolicy, store, logg)).
			Post("/checkout/address", checkoutcontrollers.Address(identityService, logg))

		// money-moving routes replay for longer than status updates
		moneyMoving := middleware.Idempotent(store, cfg.Redis.PaymentIdempotencyTTL, logg)
		statusUpdate := middleware.Idempotent(store, cfg.Redis.IdempotencyTTL, logg)

		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.With(moneyMoving).Post("/payment", checkoutcontrollers.Payment(checkoutService, logg))
			r.With(moneyMoving).Post("/refund", ordercontrollers.Refund(refundService, logg))
			r.With(statusUpdate).Post("/status", ordercontrollers.UpdateStatus(ordersService, logg))
			r.Get("/payment-status", ordercontrollers.PaymentStatus(ordersService, logg))
		})
	})

	return r
}
