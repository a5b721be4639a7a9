package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/scentmarket-backend/api/controllers"
	cartcontrollers "github.com/angelmondragon/scentmarket-backend/api/controllers/cart"
	ordercontrollers "github.com/angelmondragon/scentmarket-backend/api/controllers/orders"
	"github.com/angelmondragon/scentmarket-backend/api/middleware"
	"github.com/angelmondragon/scentmarket-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/scentmarket-backend/internal/checkout"
	"github.com/angelmondragon/scentmarket-backend/internal/orders"
	product "github.com/angelmondragon/scentmarket-backend/internal/products"
	"github.com/angelmondragon/scentmarket-backend/pkg/config"
	"github.com/angelmondragon/scentmarket-backend/pkg/enums"
	"github.com/angelmondragon/scentmarket-backend/pkg/logger"
	"github.com/angelmondragon/scentmarket-backend/pkg/metrics"
)

// Store is the redis surface the HTTP layer needs.
type Store interface {
	middleware.ResponseStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Store    Store
	Gatherer prometheus.Gatherer
	HTTP     *metrics.HTTPMetrics

	Products product.Service
	Cart     cart.Service
	Checkout checkoutsvc.Service
	Orders   orders.Service
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Metrics(deps.HTTP),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	checkoutPolicy := middleware.RateLimitPolicy{
		Name:   "checkout",
		Limit:  cfg.Checkout.RateLimitPerMinute,
		Window: time.Minute,
	}

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": deps.DB,
			"redis":    deps.Store,
		}))
	})
	r.Handle("/metrics", metrics.Handler(deps.Gatherer))

	idempotent := middleware.Idempotency(deps.Store, cfg.Idempotency, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		// Throttled checkouts are rejected before they claim an Idempotency-Key.
		r.With(middleware.UserRateLimit(checkoutPolicy, deps.Store, logg), idempotent).
			Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Group(func(r chi.Router) {
			r.Use(idempotent)
			r.Get("/products/{productId}", controllers.ProductDetail(deps.Products, logg))
			r.Route("/cart", func(r chi.Router) {
				r.Get("/", cartcontrollers.CartFetch(deps.Cart, logg))
				r.Post("/items", cartcontrollers.CartAddItem(deps.Cart, logg))
				r.Put("/items/{itemId}", cartcontrollers.CartUpdateItem(deps.Cart, logg))
				r.Delete("/items/{itemId}", cartcontrollers.CartRemoveItem(deps.Cart, logg))
			})
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(deps.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
		r.Use(idempotent)
		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.AdminListOrders(deps.Orders, logg))
			r.Get("/summary", controllers.AdminSalesSummary(deps.Orders, logg))
			r.Put("/{orderId}/status", controllers.AdminUpdateOrderStatus(deps.Orders, logg))
		})
	})

	return r
}
