package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/angelmondragon/trackvault-backend/api/controllers"
	"github.com/angelmondragon/trackvault-backend/api/routes"
	"github.com/angelmondragon/trackvault-backend/internal/cart"
	"github.com/angelmondragon/trackvault-backend/internal/library"
	"github.com/angelmondragon/trackvault-backend/internal/notifications"
	"github.com/angelmondragon/trackvault-backend/internal/orders"
	"github.com/angelmondragon/trackvault-backend/internal/payments"
	"github.com/angelmondragon/trackvault-backend/internal/ratings"
	"github.com/angelmondragon/trackvault-backend/internal/receipts"
	"github.com/angelmondragon/trackvault-backend/pkg/catalog"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/db"
	"github.com/angelmondragon/trackvault-backend/pkg/entitlements"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	"github.com/angelmondragon/trackvault-backend/pkg/metrics"
	"github.com/angelmondragon/trackvault-backend/pkg/migrate"
	"github.com/angelmondragon/trackvault-backend/pkg/outbound"
	"github.com/angelmondragon/trackvault-backend/pkg/outbox"
	"github.com/angelmondragon/trackvault-backend/pkg/profiles"
	"github.com/angelmondragon/trackvault-backend/pkg/push"
	"github.com/angelmondragon/trackvault-backend/pkg/redis"
	"github.com/angelmondragon/trackvault-backend/pkg/telemetry"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.SetupTracer(ctx, "trackvault-api", cfg.App.Env, cfg.Tracing)
	if err != nil {
		logg.Error(ctx, "failed to set up tracing", err)
		os.Exit(1)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logg.Error(context.Background(), "error flushing traces", err)
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dependencyMetrics := metrics.NewDependencyMetrics(registry)
	paymentMetrics := metrics.NewPaymentMetrics(registry)

	httpClient := outbound.NewHTTPClient(cfg.Dependencies.OutboundTimeout)
	catalogClient, err := catalog.NewClient(cfg.Dependencies.CatalogURL, cfg.Dependencies.OutboundTimeout,
		catalog.WithHTTPClient(httpClient),
		catalog.WithCache(redisClient, cfg.Dependencies.CatalogCacheTTL),
		catalog.WithMetrics(dependencyMetrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to create catalog client", err)
		os.Exit(1)
	}
	profilesClient, err := profiles.NewClient(cfg.Dependencies.ProfilesURL, cfg.Dependencies.OutboundTimeout,
		profiles.WithHTTPClient(httpClient),
		profiles.WithMetrics(dependencyMetrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to create profiles client", err)
		os.Exit(1)
	}
	pushClient, err := push.NewClient(cfg.Dependencies.PushURL, cfg.Dependencies.OutboundTimeout,
		push.WithHTTPClient(httpClient),
		push.WithMetrics(dependencyMetrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to create push client", err)
		os.Exit(1)
	}
	entitlementsClient, err := entitlements.NewClient(cfg.Dependencies.EntitlementsURL, cfg.Dependencies.OutboundTimeout,
		entitlements.WithHTTPClient(httpClient),
		entitlements.WithMetrics(dependencyMetrics),
	)
	if err != nil {
		logg.Error(ctx, "failed to create entitlements client", err)
		os.Exit(1)
	}

	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	notificationsRepo := notifications.NewRepository(dbClient.DB())
	dispatcher, err := notifications.NewDispatcher(notificationsRepo, catalogClient, pushClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create notification dispatcher", err)
		os.Exit(1)
	}
	notificationsService, err := notifications.NewService(notificationsRepo)
	if err != nil {
		logg.Error(ctx, "failed to create notifications service", err)
		os.Exit(1)
	}

	cartService, err := cart.NewService(cart.NewRepository(dbClient.DB()), dbClient, logg)
	if err != nil {
		logg.Error(ctx, "failed to create cart service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	ordersService, err := orders.NewService(ordersRepo, dbClient, outboxService, dispatcher, logg)
	if err != nil {
		logg.Error(ctx, "failed to create orders service", err)
		os.Exit(1)
	}

	libraryService, err := library.NewService(library.NewRepository(dbClient.DB()), dbClient, paymentMetrics, logg)
	if err != nil {
		logg.Error(ctx, "failed to create library service", err)
		os.Exit(1)
	}

	paymentsRepo := payments.NewRepository(dbClient.DB())
	paymentsService, err := payments.NewService(payments.Config{
		Repo:           paymentsRepo,
		Orders:         ordersRepo,
		Tx:             dbClient,
		Outbox:         outboxService,
		Gateway:        payments.NewSimulatedGateway(cfg.Payments),
		Granter:        libraryService,
		Notifier:       dispatcher,
		Metrics:        paymentMetrics,
		GatewayTimeout: cfg.Payments.GatewayTimeout,
		Logger:         logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create payments service", err)
		os.Exit(1)
	}

	composer, err := receipts.NewComposer(paymentsRepo, ordersRepo, catalogClient, profilesClient, cfg.Receipts, logg)
	if err != nil {
		logg.Error(ctx, "failed to create receipt composer", err)
		os.Exit(1)
	}

	gate := ratings.NewGate(entitlementsClient, dependencyMetrics, logg)
	ratingsService, err := ratings.NewService(ratings.NewRepository(dbClient.DB()), gate, logg)
	if err != nil {
		logg.Error(ctx, "failed to create ratings service", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("HOSTNAME")
	if id == "" {
		id = "local"
	}
	runCtx := logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})

	router := routes.NewRouter(
		cfg,
		logg,
		map[string]controllers.Pinger{"db": dbClient, "redis": redisClient},
		redisClient,
		registry,
		cartService,
		ordersService,
		paymentsService,
		composer,
		libraryService,
		notificationsService,
		ratingsService,
		outbox.NewDLQRepository(dbClient.DB()),
	)

	server := &http.Server{
		Addr:              addr,
		Handler:           otelhttp.NewHandler(router, "trackvault-api"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logg.Info(runCtx, "starting api server")
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logg.Info(runCtx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(runCtx, "graceful shutdown failed", err)
		}
	}
}
