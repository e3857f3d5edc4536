package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-payments/internal/analytics/router"
	"github.com/angelmondragon/storefront-payments/internal/analytics/types"
	"github.com/angelmondragon/storefront-payments/internal/analytics/worker"
	"github.com/angelmondragon/storefront-payments/internal/analytics/writer"
	"github.com/angelmondragon/storefront-payments/pkg/bigquery"
	"github.com/angelmondragon/storefront-payments/pkg/config"
	"github.com/angelmondragon/storefront-payments/pkg/logger"
	"github.com/angelmondragon/storefront-payments/pkg/metrics"
	"github.com/angelmondragon/storefront-payments/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-payments/pkg/pubsub"
	"github.com/angelmondragon/storefront-payments/pkg/redis"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "analytics-worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)

	cfg.Service.Kind = "analytics-worker"

	logg = logger.New(logger.Options{
		ServiceName: "analytics-worker",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)

	bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg, bigquery.TableSpec{
		Name:           cfg.BigQuery.PaymentEventsTable,
		Schema:         types.PaymentEventsSchema,
		PartitionField: types.PaymentEventsPartitionField,
	})
	requireResource(ctx, logg, "bigquery client", err)

	defer func() {
		var closeErr error
		closeErr = multierr.Append(closeErr, bqClient.Close())
		closeErr = multierr.Append(closeErr, pubsubClient.Close())
		closeErr = multierr.Append(closeErr, redisClient.Close())
		if closeErr != nil {
			logg.Error(ctx, "failed to close analytics worker resources", closeErr)
		}
	}()

	subscription := pubsubClient.AnalyticsSubscription()
	if subscription == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	writerConfig := writer.Config{
		PaymentEventsTable: cfg.BigQuery.PaymentEventsTable,
		BatchSize:          cfg.BigQuery.InsertBatchSize,
	}
	analyticsWriter, err := writer.New(bqClient, writerConfig)
	requireResource(ctx, logg, "analytics bigquery writer", err)

	routingHandler, err := router.NewRouter(analyticsWriter, logg, nil)
	requireResource(ctx, logg, "analytics router", err)

	reg := prometheus.NewRegistry()
	service, err := worker.NewService(subscription, routingHandler, manager, logg, worker.Options{
		Flusher: analyticsWriter,
		Metrics: metrics.NewWorkerMetrics(reg),
	})
	requireResource(ctx, logg, "analytics worker service", err)

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	go func() {
		if err := metrics.Serve(runCtx, cfg.App.MetricsAddr, reg, logg); err != nil {
			logg.Error(runCtx, "metrics listener stopped", err)
		}
	}()
	logg.Info(runCtx, "analytics worker ready")

	runErr := service.Run(runCtx)
	// rows still buffered by the writer are flushed on a fresh context
	if err := analyticsWriter.Flush(context.Background()); err != nil {
		logg.Error(ctx, "failed to flush buffered payment events", err)
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logg.Error(runCtx, "analytics worker failed", runErr)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
