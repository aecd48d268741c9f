package handler

import (
	"net/http"
	"strconv"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/ratelimit"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
)

type OrderHandler struct {
	uc *usecase.OrderUsecase
}

func NewOrderHandler(uc *usecase.OrderUsecase) *OrderHandler {
	return &OrderHandler{uc: uc}
}

// ゲストも見られるのでJWTは任意。一覧だけusecase側でログイン必須にする。
func (h *OrderHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, limiter *ratelimit.Limiter) {
	g := e.Group("/orders")

	//レート制限を先に通す（不正なトークンでも回数に数える）
	auth := middleware.OptionalAuthJWT(cfg.JWT)
	lookup := middleware.RateLimit(limiter, ratelimit.ClassOrderLookup)

	g.GET("", h.list, auth)
	g.GET("/lookup", h.lookup, lookup, auth)
	g.GET("/:id", h.detail, lookup, auth)
}

func (h *OrderHandler) list(c echo.Context) error {
	page := 1
	if v := c.QueryParam("page"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid page"})
		}
		page = p
	}

	limit := 20
	if v := c.QueryParam("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
		}
		limit = l
	}

	out, err := h.uc.ListMyOrders(c.Request().Context(), callerFromContext(c), page, limit)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *OrderHandler) detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	}

	out, err := h.uc.GetOrder(c.Request().Context(), callerFromContext(c), id)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// GET /orders/lookup?order_number=ORD-...&token=...
func (h *OrderHandler) lookup(c echo.Context) error {
	out, err := h.uc.LookupByNumber(c.Request().Context(), callerFromContext(c), c.QueryParam("order_number"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
