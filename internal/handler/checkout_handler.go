package handler

import (
	"crypto/subtle"
	"net/http"

	"storefront/internal/config"
	"storefront/internal/middleware"
	"storefront/internal/ratelimit"
	"storefront/internal/usecase"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

const headerWebhookSecret = "X-Webhook-Secret"

type CheckoutHandler struct {
	uc            *usecase.CheckoutUsecase
	webhookSecret string
}

func NewCheckoutHandler(uc *usecase.CheckoutUsecase, cfg config.PaymentConfig) *CheckoutHandler {
	return &CheckoutHandler{uc: uc, webhookSecret: cfg.WebhookSecret}
}

type CheckoutItemRequest struct {
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
}

type CheckoutSessionRequest struct {
	Items         []CheckoutItemRequest `json:"items"`
	ShippingCost  decimal.Decimal       `json:"shipping_cost"`
	TaxAmount     decimal.Decimal       `json:"tax_amount"`
	CouponCode    string                `json:"coupon_code"`
	CustomerEmail string                `json:"customer_email"`
}

// 決済サービスからのwebhook
type CheckoutCompleteRequest struct {
	PaymentReference string          `json:"payment_reference"`
	UserID           *int64          `json:"user_id"`
	CustomerEmail    string          `json:"customer_email"`
	ShippingName     string          `json:"shipping_name"`
	ShippingAddress  string          `json:"shipping_address"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	ShippingCost     decimal.Decimal `json:"shipping_cost"`
	TaxAmount        decimal.Decimal `json:"tax_amount"`
	CouponCode       string          `json:"coupon_code"`
}

func (h *CheckoutHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, limiter *ratelimit.Limiter) {
	g := e.Group("/checkout")

	g.POST("/sessions", h.createSession,
		middleware.RateLimit(limiter, ratelimit.ClassCheckout),
		middleware.OptionalAuthJWT(cfg.JWT),
	)
	g.POST("/complete", h.complete, h.requireWebhookSecret)
}

func (h *CheckoutHandler) createSession(c echo.Context) error {
	var req CheckoutSessionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	items := make([]usecase.CheckoutItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, usecase.CheckoutItem{Name: it.Name, UnitPrice: it.UnitPrice, Quantity: it.Quantity})
	}

	out, err := h.uc.CreateSession(c.Request().Context(), callerFromContext(c), usecase.CreateSessionInput{
		Items:         items,
		ShippingCost:  req.ShippingCost,
		TaxAmount:     req.TaxAmount,
		CouponCode:    req.CouponCode,
		CustomerEmail: req.CustomerEmail,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *CheckoutHandler) complete(c echo.Context) error {
	var req CheckoutCompleteRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.uc.CompleteCheckout(c.Request().Context(), usecase.CompleteCheckoutInput{
		PaymentReference: req.PaymentReference,
		UserID:           req.UserID,
		CustomerEmail:    req.CustomerEmail,
		ShippingName:     req.ShippingName,
		ShippingAddress:  req.ShippingAddress,
		Subtotal:         req.Subtotal,
		ShippingCost:     req.ShippingCost,
		TaxAmount:        req.TaxAmount,
		CouponCode:       req.CouponCode,
	})
	if err != nil {
		return writeError(c, err)
	}

	status := http.StatusOK
	if out.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, out)
}

// 共有シークレットが未設定ならwebhookは受け付けない
func (h *CheckoutHandler) requireWebhookSecret(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		got := c.Request().Header.Get(headerWebhookSecret)
		if h.webhookSecret == "" || got == "" ||
			subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
			return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		}
		return next(c)
	}
}
