package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/trackvault-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/trackvault-backend/api/controllers/cart"
	librarycontrollers "github.com/angelmondragon/trackvault-backend/api/controllers/library"
	ordercontrollers "github.com/angelmondragon/trackvault-backend/api/controllers/orders"
	paymentcontrollers "github.com/angelmondragon/trackvault-backend/api/controllers/payments"
	ratingcontrollers "github.com/angelmondragon/trackvault-backend/api/controllers/ratings"
	"github.com/angelmondragon/trackvault-backend/api/middleware"
	"github.com/angelmondragon/trackvault-backend/internal/cart"
	"github.com/angelmondragon/trackvault-backend/internal/library"
	"github.com/angelmondragon/trackvault-backend/internal/notifications"
	"github.com/angelmondragon/trackvault-backend/internal/orders"
	"github.com/angelmondragon/trackvault-backend/internal/payments"
	"github.com/angelmondragon/trackvault-backend/internal/ratings"
	"github.com/angelmondragon/trackvault-backend/pkg/config"
	"github.com/angelmondragon/trackvault-backend/pkg/enums"
	"github.com/angelmondragon/trackvault-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/trackvault-backend/pkg/redis"
)

// RequestStore backs idempotency replay and rate limiting.
type RequestStore interface {
	pkgredis.IdempotencyStore
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness map[string]controllers.Pinger,
	store RequestStore,
	gatherer prometheus.Gatherer,
	cartService cart.Service,
	ordersService orders.Service,
	paymentsService payments.Service,
	receiptGenerator paymentcontrollers.ReceiptGenerator,
	libraryService library.Service,
	notificationsService notifications.Service,
	ratingsService ratings.Service,
	deadLetters controllers.DeadLetterStore,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSAllowedOrigins),
	)

	purchasePolicy := middleware.NewRateLimitPolicy(
		"purchase",
		cfg.RateLimit.PurchaseWindow,
		cfg.RateLimit.PurchaseUserLimit,
		cfg.RateLimit.PurchaseIPLimit,
	)
	purchaseLimit := middleware.RateLimit(purchasePolicy, store, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Get("/purchased/{userId}/{itemType}/{itemId}", librarycontrollers.Purchased(libraryService, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(store, logg))

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", cartcontrollers.CartFetch(cartService, logg))
			r.Delete("/", cartcontrollers.CartClear(cartService, logg))
			r.Post("/items", cartcontrollers.CartAddItem(cartService, logg))
			r.Patch("/items/{itemType}/{itemId}", cartcontrollers.CartUpdateItem(cartService, logg))
			r.Delete("/items/{itemType}/{itemId}", cartcontrollers.CartRemoveItem(cartService, logg))
		})

		r.Route("/orders", func(r chi.Router) {
			r.With(purchaseLimit).Post("/", ordercontrollers.Create(ordersService, logg))
			r.Get("/", ordercontrollers.List(ordersService, logg))
			r.Get("/number/{orderNumber}", ordercontrollers.ByNumber(ordersService, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(ordersService, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.With(purchaseLimit).Post("/", paymentcontrollers.Process(paymentsService, logg))
			r.Get("/", paymentcontrollers.List(paymentsService, logg))
			r.Get("/transaction/{transactionId}", paymentcontrollers.ByTransaction(paymentsService, logg))
			r.Get("/{paymentId}", paymentcontrollers.Detail(paymentsService, logg))
			r.With(purchaseLimit).Post("/{paymentId}/retry", paymentcontrollers.Retry(paymentsService, logg))
			r.Get("/{paymentId}/attempts", paymentcontrollers.Attempts(paymentsService, logg))
			r.Get("/{paymentId}/receipt", paymentcontrollers.Receipt(receiptGenerator, logg))
		})

		r.Route("/library", func(r chi.Router) {
			r.Get("/", librarycontrollers.List(libraryService, logg))
			r.Get("/{itemType}/{itemId}", librarycontrollers.Owned(libraryService, logg))
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", controllers.ListNotifications(notificationsService, logg))
			r.Get("/unread-count", controllers.UnreadNotificationCount(notificationsService, logg))
			r.Post("/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
			r.Post("/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		})

		r.Route("/ratings", func(r chi.Router) {
			r.Post("/", ratingcontrollers.Rate(ratingsService, logg))
			r.Get("/{entityType}/{entityId}", ratingcontrollers.Summary(ratingsService, logg))
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
			r.Get("/orders", ordercontrollers.AdminList(ordersService, logg))
			r.Patch("/orders/{orderId}/status", ordercontrollers.AdminUpdateStatus(ordersService, logg))
			r.Post("/payments/{paymentId}/refund", paymentcontrollers.Refund(paymentsService, logg))
			r.Delete("/library/{entitlementId}", librarycontrollers.AdminDelete(libraryService, logg))
			if deadLetters != nil {
				r.Get("/outbox/dead-letters", controllers.ListDeadLetters(deadLetters, logg))
				r.Post("/outbox/dead-letters/{entryId}/replay", controllers.ReplayDeadLetter(deadLetters, logg))
			}
		})
	})

	return r
}
