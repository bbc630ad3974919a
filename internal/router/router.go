package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/inventory-reservation/internal/config"
	"github.com/iliyamo/inventory-reservation/internal/handler"
	"github.com/iliyamo/inventory-reservation/internal/middleware"
)

// Deps carries everything the routes need.  Redis may be nil, which
// turns off the response cache and the rate limiter.
type Deps struct {
	JWTSecret    string
	Health       *handler.HealthHandler
	Products     *handler.ProductHandler
	Reservations *handler.ReservationHandler
	Orders       *handler.OrderHandler
	Redis        *redis.Client
	RateLimit    config.RateLimitConfig
	Cache        config.CacheConfig
	Log          *zap.Logger
}

// RegisterRoutes mounts the public, customer and admin routes.
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/healthz", d.Health.Health)

	// Public product reads, cached in Redis.
	e.GET("/v1/products/:id", d.Products.GetProduct, middleware.NewResponseCache(d.Cache, d.Redis))

	auth := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	shopper := middleware.RequireRole(middleware.RoleCustomer, middleware.RoleAdmin)
	admin := middleware.RequireRole(middleware.RoleAdmin)

	auth.POST("/products", d.Products.CreateProduct, admin)

	auth.POST("/products/:id/reservations", d.Reservations.Reserve,
		shopper, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	auth.GET("/reservations/:id", d.Reservations.Get, shopper)
	auth.DELETE("/reservations/:id", d.Reservations.Release, shopper)

	auth.POST("/orders", d.Orders.Place, shopper)
	auth.GET("/orders/:id", d.Orders.Get, shopper)
	auth.PATCH("/orders/:id/status", d.Orders.ChangeStatus, admin)

	auth.POST("/admin/reservations/sweep", d.Reservations.Sweep, admin)
}
