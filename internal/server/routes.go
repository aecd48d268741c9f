package server

import (
	"net/http"

	"storefront/internal/config"
	"storefront/internal/handler"
	"storefront/internal/logging"
	"storefront/internal/ratelimit"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Coupons     *handler.CouponHandler
	Orders      *handler.OrderHandler
	AdminOrders *handler.AdminOrderHandler
	Checkout    *handler.CheckoutHandler
}

func RegisterRoutes(e *echo.Echo, cfg config.Config, limiter *ratelimit.Limiter, h Handlers) {
	e.GET("/healthz", func(c echo.Context) error {
		logging.From(c).Debug("health check")
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	h.Coupons.RegisterRoutes(e, limiter)
	h.Orders.RegisterRoutes(e, cfg, limiter)
	h.AdminOrders.RegisterRoutes(e, cfg)
	h.Checkout.RegisterRoutes(e, cfg, limiter)
}
