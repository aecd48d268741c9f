package usecase

import (
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	repo "storefront/internal/repository"
)

const msgInvalidTransition = "invalid status transition"

// OrderLifecycleUsecase は管理者による注文ステータスの変更
type OrderLifecycleUsecase struct {
	orders   repo.OrderRepository
	activity *ActivityLogUsecase
	notifier NotificationDispatcher
	clock    Clock
	log      *slog.Logger
}

func NewOrderLifecycleUsecase(orders repo.OrderRepository, activity *ActivityLogUsecase, notifier NotificationDispatcher, clock Clock) *OrderLifecycleUsecase {
	return &OrderLifecycleUsecase{
		orders:   orders,
		activity: activity,
		notifier: notifier,
		clock:    clock,
		log:      logging.New("order_lifecycle"),
	}
}

type StatusChangeResult struct {
	Order      OrderOutput `json:"order"`
	AlreadySet bool        `json:"already_set"`
	Previous   string      `json:"previous_status"`
}

type MarkShippedInput struct {
	TrackingNumber string
	Carrier        string
	TrackingURL    string
}

type ShipmentResult struct {
	Order OrderOutput `json:"order"`
	// 発送済みの注文に追跡情報を入れ直しただけのとき true
	Corrected bool `json:"corrected"`
}

// 管理画面の注文一覧
func (u *OrderLifecycleUsecase) List(ctx context.Context, caller Caller, f repo.AdminOrderListFilter) (OrderPage, error) {
	if err := AuthorizeOrderMutation(caller); err != nil {
		return OrderPage{}, err
	}
	if f.Page < 1 {
		return OrderPage{}, ValidationError("invalid page")
	}
	if f.Limit < 1 || f.Limit > 100 {
		return OrderPage{}, ValidationError("invalid limit")
	}
	if f.Status != "" {
		st, ok := model.ParseOrderStatus(f.Status)
		if !ok {
			return OrderPage{}, ValidationError("invalid status")
		}
		f.Status = string(st)
	}

	orders, total, err := u.orders.ListAdmin(ctx, f)
	if err != nil {
		u.log.Error("list admin orders", "err", err)
		return OrderPage{}, UpstreamError()
	}
	return OrderPage{Items: toOrderOutputs(orders), Total: total, Page: f.Page, Limit: f.Limit}, nil
}

// ChangeStatus は遷移表に沿ってステータスを変える。
// 同じステータスへの変更は何もせず AlreadySet を返す（監査ログも書かない）。
// 読んでから書くまでに他で変わっていたら 409 を返し、リトライはしない。
func (u *OrderLifecycleUsecase) ChangeStatus(ctx context.Context, caller Caller, orderID int64, requested string) (StatusChangeResult, error) {
	if err := AuthorizeOrderMutation(caller); err != nil {
		return StatusChangeResult{}, err
	}
	if orderID <= 0 {
		return StatusChangeResult{}, ValidationError("invalid id")
	}
	next, ok := model.ParseOrderStatus(requested)
	if !ok {
		return StatusChangeResult{}, ValidationError("invalid status")
	}

	o, err := u.load(ctx, orderID)
	if err != nil {
		return StatusChangeResult{}, err
	}
	prev := o.Status

	if prev == next {
		return StatusChangeResult{Order: toOrderOutput(o), AlreadySet: true, Previous: string(prev)}, nil
	}
	if !model.CanTransition(prev, next) {
		return StatusChangeResult{}, ValidationError(msgInvalidTransition)
	}

	if err := u.orders.UpdateStatusIfCurrent(ctx, orderID, prev, next); err != nil {
		return StatusChangeResult{}, u.writeError(orderID, err)
	}
	metrics.OrderTransitions.WithLabelValues(string(prev), string(next)).Inc()

	o.Status = next
	o.Version++
	o.UpdatedAt = u.clock.Now()

	u.activity.RecordBestEffort(ctx, ActivityEntry{
		OrderID:     orderID,
		PerformedBy: caller.ActorID(),
		Action:      model.ActivityActionStatusChanged,
		Previous:    map[string]string{"status": string(prev)},
		New:         map[string]string{"status": string(next)},
	})

	if next == model.OrderStatusShipped {
		u.notifyShipped(o)
	}

	return StatusChangeResult{Order: toOrderOutput(o), Previous: string(prev)}, nil
}

// MarkShipped は status=shipped と追跡情報を1回の条件付き更新で書く。
// 既に shipped なら追跡情報だけ直す（通知は2回目を送らない）。
func (u *OrderLifecycleUsecase) MarkShipped(ctx context.Context, caller Caller, orderID int64, in MarkShippedInput) (ShipmentResult, error) {
	if err := AuthorizeOrderMutation(caller); err != nil {
		return ShipmentResult{}, err
	}
	if orderID <= 0 {
		return ShipmentResult{}, ValidationError("invalid id")
	}

	tn := strings.TrimSpace(in.TrackingNumber)
	carrier := strings.TrimSpace(in.Carrier)
	if tn == "" || len(tn) > 100 {
		return ShipmentResult{}, ValidationError("tracking_number is required")
	}
	if carrier == "" || len(carrier) > 100 {
		return ShipmentResult{}, ValidationError("carrier is required")
	}
	trackingURL, err := parseTrackingURL(in.TrackingURL)
	if err != nil {
		return ShipmentResult{}, err
	}

	o, err := u.load(ctx, orderID)
	if err != nil {
		return ShipmentResult{}, err
	}
	prev := o.Status

	correction := prev == model.OrderStatusShipped
	if !correction && !model.CanTransition(prev, model.OrderStatusShipped) {
		return ShipmentResult{}, ValidationError(msgInvalidTransition)
	}

	shippedAt := u.clock.Now()
	if correction && o.ShippedAt != nil {
		shippedAt = *o.ShippedAt
	}

	upd := repo.ShipmentUpdate{
		TrackingNumber: tn,
		Carrier:        carrier,
		TrackingURL:    trackingURL,
		ShippedAt:      shippedAt,

		//訂正どうしが同じ状態を読んでいたら片方は409にする
		ExpectedVersion: o.Version,
	}
	if err := u.orders.MarkShippedIfCurrent(ctx, orderID, prev, upd); err != nil {
		return ShipmentResult{}, u.writeError(orderID, err)
	}
	if !correction {
		metrics.OrderTransitions.WithLabelValues(string(prev), string(model.OrderStatusShipped)).Inc()
	}

	before := shipmentSnapshot(o)
	o.Status = model.OrderStatusShipped
	o.TrackingNumber = &tn
	o.Carrier = &carrier
	o.TrackingURL = trackingURL
	o.ShippedAt = &shippedAt
	o.Version++
	o.UpdatedAt = u.clock.Now()

	u.activity.RecordBestEffort(ctx, ActivityEntry{
		OrderID:     orderID,
		PerformedBy: caller.ActorID(),
		Action:      model.ActivityActionOrderShipped,
		Previous:    before,
		New:         shipmentSnapshot(o),
		Metadata: map[string]interface{}{
			"tracking_number": tn,
			"carrier":         carrier,
			"tracking_url":    trackingURL,
			"correction":      correction,
		},
	})

	if !correction {
		u.notifyShipped(o)
	}

	return ShipmentResult{Order: toOrderOutput(o), Corrected: correction}, nil
}

func (u *OrderLifecycleUsecase) load(ctx context.Context, orderID int64) (model.Order, error) {
	o, err := u.orders.FindByID(ctx, orderID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Order{}, NotFoundError("order not found")
	}
	if err != nil {
		u.log.Error("find order", "order_id", orderID, "err", err)
		return model.Order{}, UpstreamError()
	}
	return o, nil
}

// 条件付き更新のエラーをHTTPErrorにする
func (u *OrderLifecycleUsecase) writeError(orderID int64, err error) error {
	switch {
	case errors.Is(err, repo.ErrConflict):
		metrics.OrderConflicts.Inc()
		u.log.Warn("order changed concurrently", "order_id", orderID)
		return ConflictError("order was modified concurrently")
	case errors.Is(err, repo.ErrNotFound):
		return NotFoundError("order not found")
	default:
		u.log.Error("update order", "order_id", orderID, "err", err)
		return UpstreamError()
	}
}

// 宛先は注文に保存されたメールアドレス。送信結果は待たない。
func (u *OrderLifecycleUsecase) notifyShipped(o model.Order) {
	if u.notifier == nil || o.CustomerEmail == "" {
		return
	}
	payload := map[string]interface{}{
		"order_number":  o.OrderNumber,
		"shipping_name": o.ShippingName,
	}
	if o.TrackingNumber != nil {
		payload["tracking_number"] = *o.TrackingNumber
	}
	if o.Carrier != nil {
		payload["carrier"] = *o.Carrier
	}
	if o.TrackingURL != nil {
		payload["tracking_url"] = *o.TrackingURL
	}
	if o.ShippedAt != nil {
		payload["shipped_at"] = o.ShippedAt.UTC().Format(time.RFC3339)
	}
	u.notifier.Dispatch(notify.New(notify.KindOrderShipped, o.CustomerEmail, payload))
}

func shipmentSnapshot(o model.Order) map[string]interface{} {
	return map[string]interface{}{
		"status":          string(o.Status),
		"tracking_number": o.TrackingNumber,
		"carrier":         o.Carrier,
		"tracking_url":    o.TrackingURL,
	}
}

// 空なら nil。入っていれば http(s) の絶対URLだけ許す。
func parseTrackingURL(s string) (*string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, ValidationError("invalid tracking_url")
	}
	return &s, nil
}
