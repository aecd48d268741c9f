package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

type AdminOrderListFilter struct {
	Page   int
	Limit  int
	Status string
	UserID *int64
	From   *time.Time
	To     *time.Time
}

// 発送時にまとめて書き込む項目
type ShipmentUpdate struct {
	TrackingNumber string
	Carrier        string
	TrackingURL    *string
	ShippedAt      time.Time

	// 読んだときの Order.Version。発送済みの訂正が同時に来ても後勝ちにしない。
	ExpectedVersion int64
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error)
	//決済側の参照IDで検索（同じ決済なら同じ注文を返す）
	FindByPaymentReference(ctx context.Context, ref string) (model.Order, bool, error)
	ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error)
	//管理者用の注文一覧
	ListAdmin(ctx context.Context, f AdminOrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (model.Order, error)

	//statusが expected のままのときだけ更新する。
	//行が無ければ ErrNotFound、statusが変わっていれば ErrConflict。
	UpdateStatusIfCurrent(ctx context.Context, orderID int64, expected model.OrderStatus, next model.OrderStatus) error
	//status + 追跡情報を1回の条件付き更新で書く。status と version の両方が一致したときだけ。
	//エラーは UpdateStatusIfCurrent と同じ。
	MarkShippedIfCurrent(ctx context.Context, orderID int64, expected model.OrderStatus, s ShipmentUpdate) error
}
