package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	repo "storefront/internal/repository"
)

// OrderUsecase は注文の参照側（購入者・ゲスト向け）
type OrderUsecase struct {
	orders repo.OrderRepository
	log    *slog.Logger
}

func NewOrderUsecase(orders repo.OrderRepository) *OrderUsecase {
	return &OrderUsecase{orders: orders, log: logging.New("order")}
}

// OrderOutput はレスポンス用。access_tokenとpayment_referenceは持たない。
type OrderOutput struct {
	ID              int64      `json:"id"`
	OrderNumber     string     `json:"order_number"`
	Status          string     `json:"status"`
	UserID          *int64     `json:"user_id"`
	CustomerEmail   string     `json:"customer_email"`
	ShippingName    string     `json:"shipping_name"`
	ShippingAddress string     `json:"shipping_address"`
	CouponCode      *string    `json:"coupon_code"`
	Subtotal        Money      `json:"subtotal"`
	ShippingCost    Money      `json:"shipping_cost"`
	TaxAmount       Money      `json:"tax_amount"`
	DiscountAmount  Money      `json:"discount_amount"`
	Total           Money      `json:"total"`
	TrackingNumber  *string    `json:"tracking_number"`
	Carrier         *string    `json:"carrier"`
	TrackingURL     *string    `json:"tracking_url"`
	ShippedAt       *time.Time `json:"shipped_at"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type OrderPage struct {
	Items []OrderOutput `json:"items"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

// GetOrder は注文詳細。見てよいかは AuthorizeOrderRead で判定する。
func (u *OrderUsecase) GetOrder(ctx context.Context, caller Caller, orderID int64) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, ValidationError("invalid id")
	}

	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NotFoundError("order not found")
	}
	if err != nil {
		u.log.Error("find order", "order_id", orderID, "err", err)
		return OrderOutput{}, UpstreamError()
	}

	if err := AuthorizeOrderRead(caller, o); err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o), nil
}

// LookupByNumber は注文番号での照会（確認メールのリンクから来る）
func (u *OrderUsecase) LookupByNumber(ctx context.Context, caller Caller, orderNumber string) (OrderOutput, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	if orderNumber == "" || len(orderNumber) > 40 {
		return OrderOutput{}, ValidationError("invalid order_number")
	}

	o, err := u.orders.FindByOrderNumber(ctx, orderNumber)
	if errors.Is(err, repo.ErrNotFound) {
		return OrderOutput{}, NotFoundError("order not found")
	}
	if err != nil {
		u.log.Error("find order by number", "order_number", orderNumber, "err", err)
		return OrderOutput{}, UpstreamError()
	}

	if err := AuthorizeOrderRead(caller, o); err != nil {
		return OrderOutput{}, err
	}
	return toOrderOutput(o), nil
}

// ListMyOrders はログインユーザー自身の注文（新しい順）
func (u *OrderUsecase) ListMyOrders(ctx context.Context, caller Caller, page, limit int) (OrderPage, error) {
	if !caller.Authenticated() {
		return OrderPage{}, UnauthorizedError()
	}
	if page < 1 {
		return OrderPage{}, ValidationError("invalid page")
	}
	if limit < 1 || limit > 100 {
		return OrderPage{}, ValidationError("invalid limit")
	}

	orders, total, err := u.orders.ListByUserID(ctx, *caller.UserID, page, limit)
	if err != nil {
		u.log.Error("list orders", "user_id", *caller.UserID, "err", err)
		return OrderPage{}, UpstreamError()
	}
	return OrderPage{Items: toOrderOutputs(orders), Total: total, Page: page, Limit: limit}, nil
}

func toOrderOutput(o model.Order) OrderOutput {
	return OrderOutput{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		Status:          string(o.Status),
		UserID:          o.UserID,
		CustomerEmail:   o.CustomerEmail,
		ShippingName:    o.ShippingName,
		ShippingAddress: o.ShippingAddress,
		CouponCode:      o.CouponCode,
		Subtotal:        NewMoney(o.Subtotal),
		ShippingCost:    NewMoney(o.ShippingCost),
		TaxAmount:       NewMoney(o.TaxAmount),
		DiscountAmount:  NewMoney(o.DiscountAmount),
		Total:           NewMoney(o.Total),
		TrackingNumber:  o.TrackingNumber,
		Carrier:         o.Carrier,
		TrackingURL:     o.TrackingURL,
		ShippedAt:       o.ShippedAt,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toOrderOutputs(orders []model.Order) []OrderOutput {
	outs := make([]OrderOutput, 0, len(orders))
	for _, o := range orders {
		outs = append(outs, toOrderOutput(o))
	}
	return outs
}
