package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/bookstore/services/order/internal/metrics"
	"github.com/bookstore/services/order/internal/orders"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthChecker reports whether the service's dependencies are reachable
type HealthChecker interface {
	Healthy(ctx context.Context) error
}

// NewRouter wires the order API under /api/orders plus /healthz and /metrics
func NewRouter(h *Handler, health HealthChecker, m *metrics.Metrics, gatherer prometheus.Gatherer, requestTimeout time.Duration) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), Correlation(), Logging(h.log, m))

	router.GET("/healthz", func(c *gin.Context) {
		if health != nil {
			if err := health.Healthy(c.Request.Context()); err != nil {
				c.String(http.StatusServiceUnavailable, "unhealthy: %s", err.Error())
				return
			}
		}
		c.String(http.StatusOK, "healthy")
	})
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	api := router.Group("/api/orders", Identity(), Timeout(requestTimeout))

	api.GET("/cart", h.GetCart)
	api.POST("/cart", h.AddToCart)
	api.PATCH("/cart/:itemId", h.UpdateCartItem)
	api.DELETE("/cart/:itemId", h.RemoveFromCart)
	api.DELETE("/cart", h.ClearCart)

	api.POST("", h.CreateOrder)
	api.GET("", h.ListMyOrders)
	api.GET("/:id", h.GetOrder)
	api.PATCH("/:id/cancel", h.CancelOrder)

	admin := api.Group("/admin", RestrictTo(orders.RoleAdmin))
	admin.GET("/all", h.ListAllOrders)
	admin.PATCH("/:id", h.UpdateOrderStatus)

	return router
}
