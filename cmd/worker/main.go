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

	"github.com/angelmondragon/trackvault-backend/internal/analytics"
	"github.com/angelmondragon/trackvault-backend/internal/analytics/types"
	"github.com/angelmondragon/trackvault-backend/internal/analytics/writer"
	"github.com/angelmondragon/trackvault-backend/internal/library"
	"github.com/angelmondragon/trackvault-backend/pkg/bigquery"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/trackvault-backend/pkg/pubsub"
	"github.com/angelmondragon/trackvault-backend/pkg/redis"
	"github.com/angelmondragon/trackvault-backend/pkg/telemetry"
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "worker"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	shutdownTracer, err := telemetry.SetupTracer(ctx, "trackvault-worker", cfg.App.Env, cfg.Tracing)
	requireResource(ctx, logg, "tracing", err)
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Error(ctx, "failed to flush traces", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg,
		cfg.PubSub.FulfillmentSubscription,
		cfg.PubSub.AnalyticsSubscription,
	)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}()

	bqClient, err := bigquery.NewClient(ctx, cfg.GCP, cfg.BigQuery, logg, bigquery.TableSpec{
		Name:           cfg.BigQuery.SalesTable,
		Row:            types.SalesEventRow{},
		PartitionField: "occurred_at",
	})
	requireResource(ctx, logg, "bigquery client", err)
	defer func() {
		if err := bqClient.Close(); err != nil {
			logg.Error(ctx, "failed to close bigquery client", err)
		}
	}()

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.ConsumerLease, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	paymentMetrics := metrics.NewPaymentMetrics(prometheus.DefaultRegisterer)
	libraryService, err := library.NewService(library.NewRepository(dbClient.DB()), dbClient, paymentMetrics, logg)
	requireResource(ctx, logg, "library service", err)

	fulfillmentHandler, err := library.NewFulfillmentHandler(libraryService, logg)
	requireResource(ctx, logg, "fulfillment handler", err)

	fulfillmentSub := pubsubClient.FulfillmentSubscription()
	if fulfillmentSub == nil {
		requireResource(ctx, logg, "fulfillment subscription", errors.New("subscription not configured"))
	}
	fulfillmentConsumer, err := pubsub.NewConsumer(library.FulfillmentConsumerName, fulfillmentSub, fulfillmentHandler, manager, logg)
	requireResource(ctx, logg, "fulfillment consumer", err)

	salesWriter, err := writer.New(bqClient, writer.Config{SalesTable: cfg.BigQuery.SalesTable})
	requireResource(ctx, logg, "analytics bigquery writer", err)
	salesHandler, err := analytics.NewSalesHandler(salesWriter, logg)
	requireResource(ctx, logg, "sales handler", err)

	analyticsSub := pubsubClient.AnalyticsSubscription()
	if analyticsSub == nil {
		requireResource(ctx, logg, "analytics subscription", errors.New("subscription not configured"))
	}
	analyticsConsumer, err := pubsub.NewConsumer(analytics.ConsumerName, analyticsSub, salesHandler, manager, logg)
	requireResource(ctx, logg, "analytics consumer", err)

	service, err := NewService(ServiceParams{
		Logger: logg,
		Readiness: map[string]pinger{
			"database": dbClient,
			"redis":    redisClient,
			"pubsub":   pubsubClient,
			"bigquery": bqClient,
		},
		Consumers: workerRunners(cfg, logg, fulfillmentConsumer, analyticsConsumer),
	})
	requireResource(ctx, logg, "worker service", err)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(runCtx, "worker ready")

	if err := service.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}

// workerRunners appends the metrics listener when one is configured.
func workerRunners(cfg *config.Config, logg *logger.Logger, consumers ...consumer) []consumer {
	if srv := metrics.NewServer(cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); srv != nil {
		return append(consumers, srv)
	}
	return consumers
}
