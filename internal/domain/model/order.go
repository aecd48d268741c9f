package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// 許可する遷移。ここに無い組み合わせは全部不正。
// delivered / cancelled / refunded は終端。
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled, OrderStatusRefunded},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusRefunded},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusRefunded:   {},
}

// 文字列から既知のステータスへ変換する（前後の空白と大文字小文字は無視）
func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := orderTransitions[st]; !ok {
		return "", false
	}
	return st, true
}

func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// from -> to が許可された遷移かどうか
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type Order struct {
	ID          int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderNumber string      `gorm:"type:varchar(40);not null;uniqueIndex" json:"order_number"`
	Status      OrderStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	// nilならゲスト注文
	UserID *int64 `gorm:"index" json:"user_id"`
	// ゲスト注文の閲覧用トークン。レスポンスには絶対に出さない
	AccessToken *string `gorm:"type:varchar(100)" json:"-"`

	CustomerEmail   string `gorm:"type:varchar(255);not null" json:"customer_email"`
	ShippingName    string `gorm:"type:varchar(255);not null" json:"shipping_name"`
	ShippingAddress string `gorm:"type:text;not null" json:"shipping_address"`

	CouponCode     *string         `gorm:"type:varchar(64)" json:"coupon_code"`
	Subtotal       decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"subtotal"`
	ShippingCost   decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"shipping_cost"`
	TaxAmount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"tax_amount"`
	DiscountAmount decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"discount_amount"`
	Total          decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total"`

	// 発送時以降にだけ入る
	TrackingNumber *string    `gorm:"type:varchar(100)" json:"tracking_number"`
	Carrier        *string    `gorm:"type:varchar(100)" json:"carrier"`
	TrackingURL    *string    `gorm:"type:text" json:"tracking_url"`
	ShippedAt      *time.Time `json:"shipped_at"`

	PaymentReference string `gorm:"type:varchar(255);not null;uniqueIndex" json:"-"`

	// 条件付き更新のたびに+1。読んだ時点の値と違えば他の更新が先に入っている。
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (o Order) IsGuest() bool {
	return o.UserID == nil
}

// total = subtotal + shipping + tax - discount（0未満にはしない）
func ComputeTotal(subtotal, shipping, tax, discount decimal.Decimal) decimal.Decimal {
	total := subtotal.Add(shipping).Add(tax).Sub(discount)
	if total.IsNegative() {
		return decimal.Zero
	}
	return total.Round(2)
}
