package server

import (
	"context"
	"errors"
	"net/http"

	"storefront/internal/config"
	"storefront/internal/logging"
	"storefront/internal/middleware"
	"storefront/internal/ratelimit"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
)

func New(cfg config.Config, limiter *ratelimit.Limiter, h Handlers) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logging.New("http")))
	e.Use(middleware.Metrics())
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e, cfg, limiter, h)
	return e
}

// Start はShutdownされるまでブロックする
func Start(e *echo.Echo, addr string) error {
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func Shutdown(ctx context.Context, e *echo.Echo) error {
	return e.Shutdown(ctx)
}
