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
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/trackvault-backend/internal/cron"
	"github.com/angelmondragon/trackvault-backend/internal/library"
	"github.com/angelmondragon/trackvault-backend/internal/notifications"
	"github.com/angelmondragon/trackvault-backend/internal/orders"
	"github.com/angelmondragon/trackvault-backend/internal/payments"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/migrate"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/redis"
)

const lockPrefixFormat = "tv:cron:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	locker, err := cron.NewRedisLocker(redisClient, lockPrefix(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron locker", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	g, gctx := errgroup.WithContext(ctx)
	if srv := metrics.NewServer(cfg.Service.MetricsAddr, prometheus.DefaultGatherer, logg); srv != nil {
		g.Go(func() error { return srv.Run(gctx) })
	}
	g.Go(func() error { return service.Run(gctx) })
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())

	libraryService, err := library.NewService(library.NewRepository(dbClient.DB()), dbClient, nil, logg)
	if err != nil {
		return nil, err
	}
	paymentsService, err := payments.NewService(payments.Config{
		Repo:    payments.NewRepository(dbClient.DB()),
		Orders:  orders.NewRepository(dbClient.DB()),
		Tx:      dbClient,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Gateway: payments.NewSimulatedGateway(cfg.Payments),
		Granter: libraryService,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	outboxJob, err := cron.NewOutboxRetentionJob(logg, outboxRepo.DeletePublishedBefore, cfg.Outbox.Retention)
	if err != nil {
		return nil, err
	}
	notificationJob, err := cron.NewNotificationRetentionJob(logg, notifications.NewRepository(dbClient.DB()).DeleteReadBefore, cfg.Cron.NotificationRetention)
	if err != nil {
		return nil, err
	}
	staleJob, err := cron.NewStalePaymentJob(cron.StalePaymentJobParams{
		Logger:     logg,
		Reaper:     paymentsService,
		StaleAfter: cfg.Payments.StaleProcessingAfter,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(outboxJob, notificationJob, staleJob)
}

func lockPrefix(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockPrefixFormat, env)
}
