package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/riceup-labs/riceup-backend/api/controllers"
	"github.com/riceup-labs/riceup-backend/api/middleware"
	"github.com/riceup-labs/riceup-backend/internal/deliveries"
	"github.com/riceup-labs/riceup-backend/internal/inventory"
	"github.com/riceup-labs/riceup-backend/internal/notifications"
	"github.com/riceup-labs/riceup-backend/internal/orders"
	"github.com/riceup-labs/riceup-backend/internal/payments"
	"github.com/riceup-labs/riceup-backend/pkg/config"
	"github.com/riceup-labs/riceup-backend/pkg/db"
	"github.com/riceup-labs/riceup-backend/pkg/enums"
	"github.com/riceup-labs/riceup-backend/pkg/logger"
	"github.com/riceup-labs/riceup-backend/pkg/metrics"
	pkgredis "github.com/riceup-labs/riceup-backend/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *pkgredis.Client,
	metricsRegistry *metrics.Registry,
	ordersService orders.Service,
	inventoryService inventory.Service,
	paymentsService payments.Service,
	deliveriesService deliveries.Service,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	var cachePinger pkgredis.Pinger
	if redisClient != nil {
		cachePinger = redisClient
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, cachePinger))
	})

	if metricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", metricsRegistry.Handler())
	}

	// Gateway callback; the HMAC signature is the only proof of origin, so
	// the route sits outside Auth. Throttle it per remote host instead.
	var limiter middleware.RateLimiter
	if redisClient != nil {
		limiter = redisClient
	}
	r.With(middleware.RateLimit(limiter, logg, "gateway-verify", cfg.Gateway.CallbackRateLimit, cfg.Gateway.CallbackRateWindow)).
		Post("/api/v1/payments/gateway/verify", controllers.VerifyCallback(paymentsService, logg))

	// A nil *redis.Client must stay a nil interface or the middleware's
	// disabled check never fires.
	var idemStore pkgredis.IdempotencyStore
	if redisClient != nil {
		idemStore = redisClient
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		operations := middleware.RequireOperations(logg)
		fieldRoles := middleware.RequireRoles(logg, enums.UserRoleAgent, enums.UserRoleStaff, enums.UserRoleAdmin)

		r.Post("/v1/orders", controllers.CreateOrder(ordersService, logg))
		r.Get("/v1/orders", controllers.ListOrders(ordersService, logg))
		r.Get("/v1/orders/{orderId}", controllers.GetOrder(ordersService, logg))
		r.With(operations).Put("/v1/orders/{orderId}/status", controllers.UpdateOrderStatus(ordersService, logg))
		r.Put("/v1/orders/{orderId}/cancel", controllers.CancelOrder(ordersService, logg))
		r.With(operations).Put("/v1/orders/{orderId}/tracking", controllers.SetOrderTracking(ordersService, logg))

		r.With(operations).Post("/v1/inventory/purchase", controllers.RecordPurchase(inventoryService, logg))
		r.With(operations).Get("/v1/inventory", controllers.ListInventory(inventoryService, logg))
		r.With(operations).Get("/v1/inventory/{ledgerId}", controllers.GetLedger(inventoryService, logg))
		r.With(operations).Post("/v1/inventory/{ledgerId}/adjust", controllers.AdjustStock(inventoryService, logg))
		r.With(operations).Get("/v1/inventory/{ledgerId}/forecast", controllers.ForecastLedger(inventoryService, logg))
		r.With(operations).Post("/v1/inventory/forecast", controllers.BulkForecast(inventoryService, logg))

		r.Post("/v1/payments/gateway/create", controllers.CreateGatewayOrder(paymentsService, logg))
		r.With(operations).Post("/v1/payments/{paymentId}/refund", controllers.RefundPayment(paymentsService, logg))
		r.With(operations).Post("/v1/payments/farmer-payout", controllers.FarmerPayout(paymentsService, logg))
		r.Get("/v1/payments/{paymentId}", controllers.GetPayment(paymentsService, logg))
		r.Get("/v1/payments/{paymentId}/invoice", controllers.GetInvoice(paymentsService, logg))

		r.With(operations).Post("/v1/deliveries", controllers.CreateDelivery(deliveriesService, logg))
		r.Get("/v1/deliveries", controllers.ListDeliveries(deliveriesService, logg))
		r.Get("/v1/deliveries/{deliveryId}", controllers.GetDelivery(deliveriesService, logg))
		r.With(fieldRoles).Put("/v1/deliveries/{deliveryId}/status", controllers.UpdateDeliveryStatus(deliveriesService, logg))
		r.With(fieldRoles).Put("/v1/deliveries/{deliveryId}/reschedule", controllers.RescheduleDelivery(deliveriesService, logg))

		r.Get("/v1/notifications", controllers.ListNotifications(notificationsService, logg))
		r.Post("/v1/notifications/{notificationId}/read", controllers.MarkNotificationRead(notificationsService, logg))
		r.Post("/v1/notifications/read-all", controllers.MarkAllNotificationsRead(notificationsService, logg))
	})

	return r
}
