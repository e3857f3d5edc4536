package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-payments/api/controllers"
	"github.com/angelmondragon/storefront-payments/api/routes"
	"github.com/angelmondragon/storefront-payments/internal/checkout"
	"github.com/angelmondragon/storefront-payments/internal/gateways"
	squaregateway "github.com/angelmondragon/storefront-payments/internal/gateways/square"
	stripegateway "github.com/angelmondragon/storefront-payments/internal/gateways/stripe"
	"github.com/angelmondragon/storefront-payments/internal/identity"
	"github.com/angelmondragon/storefront-payments/internal/orders"
	"github.com/angelmondragon/storefront-payments/internal/refunds"
	"github.com/angelmondragon/storefront-payments/internal/webhooks"
	squarewebhook "github.com/angelmondragon/storefront-payments/internal/webhooks/square"
	stripewebhook "github.com/angelmondragon/storefront-payments/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/db"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/metrics"
	"github.com/angelmondragon/storefront-payments/pkg/migrate"
	"github.com/angelmondragon/storefront-payments/pkg/outbox"
	"github.com/angelmondragon/storefront-payments/pkg/redis"
	pkgsquare "github.com/angelmondragon/storefront-payments/pkg/square"
	pkgstripe "github.com/angelmondragon/storefront-payments/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)
	cfg.Service.Kind = "api"

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(context.Background(), logg, "database", err)

	err = migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient)
	requireResource(context.Background(), logg, "dev migrations", err)

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(context.Background(), logg, "redis", err)

	defer func() {
		var closeErr error
		closeErr = multierr.Append(closeErr, redisClient.Close())
		closeErr = multierr.Append(closeErr, dbClient.Close())
		if closeErr != nil {
			logg.Error(context.Background(), "error closing api resources", closeErr)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	gatewayMetrics := metrics.NewGatewayMetrics(reg)
	transitionMetrics := metrics.NewTransitionMetrics(reg)

	candidates, sources := buildGateways(context.Background(), cfg, logg)
	registry, err := gateways.NewRegistryFromConfig(cfg.Gateways, gatewayMetrics, candidates...)
	requireResource(context.Background(), logg, "gateway registry", err)

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	identityService, err := identity.NewService(identity.ServiceParams{
		Tx:       dbClient,
		Outbox:   outboxService,
		JWT:      cfg.JWT,
		Password: cfg.Password,
		Logger:   logg,
	})
	requireResource(context.Background(), logg, "identity service", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	transitioner, err := orders.NewTransitioner(ordersRepo, transitionMetrics)
	requireResource(context.Background(), logg, "order transitioner", err)

	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, registry, transitioner, logg)
	requireResource(context.Background(), logg, "orders service", err)

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Orders:      ordersRepo,
		Tx:          dbClient,
		Outbox:      outboxService,
		Gateways:    registry,
		Transitions: transitioner,
		Logger:      logg,
	})
	requireResource(context.Background(), logg, "checkout service", err)

	refundService, err := refunds.NewService(ordersRepo, dbClient, outboxService, registry, transitioner, logg)
	requireResource(context.Background(), logg, "refund service", err)

	guard, err := webhooks.NewGuard(redisClient, cfg.Eventing.WebhookDedupTTL)
	requireResource(context.Background(), logg, "webhook guard", err)

	webhookService, err := webhooks.NewService(guard, ordersService, logg, sources...)
	requireResource(context.Background(), logg, "webhook service", err)

	readiness := map[string]controllers.Pinger{
		"db":    dbClient,
		"redis": redisClient,
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
		"gateways": cfg.Gateways.Enabled,
	})

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			readiness,
			redisClient,
			reg,
			identityService,
			checkoutService,
			ordersService,
			refundService,
			webhookService,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-runCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
	}
}

// buildGateways constructs the provider clients for every enabled gateway
// along with their webhook sources.
func buildGateways(ctx context.Context, cfg *config.Config, logg *logger.Logger) ([]gateways.Adapter, []webhooks.Source) {
	var (
		adapters []gateways.Adapter
		sources  []webhooks.Source
	)

	if cfg.Gateways.IsEnabled(stripegateway.Name) {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		requireResource(ctx, logg, "stripe client", err)
		adapter, err := stripegateway.NewAdapter(client, logg)
		requireResource(ctx, logg, "stripe adapter", err)
		source, err := stripewebhook.NewSource(client)
		requireResource(ctx, logg, "stripe webhook source", err)
		adapters = append(adapters, adapter)
		sources = append(sources, source)
	}

	if cfg.Gateways.IsEnabled(squaregateway.Name) {
		client, err := pkgsquare.NewClient(ctx, cfg.Square, logg)
		requireResource(ctx, logg, "square client", err)
		adapter, err := squaregateway.NewAdapter(client, logg)
		requireResource(ctx, logg, "square adapter", err)
		source, err := squarewebhook.NewSource(client)
		requireResource(ctx, logg, "square webhook source", err)
		adapters = append(adapters, adapter)
		sources = append(sources, source)
	}

	return adapters, sources
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
