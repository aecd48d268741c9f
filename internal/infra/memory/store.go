// Package memory はDB無しで動かすためのインメモリ実装。
// repository の各interfaceを1つのStoreで満たす。ローカル開発とテスト用。
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"storefront/internal/domain/model"
	repo "storefront/internal/repository"
)

type Store struct {
	mu sync.Mutex

	nextOrderID  int64
	nextCouponID int64
	nextLogID    int64

	orders  map[int64]model.Order
	coupons map[int64]model.Coupon
	logs    []model.ActivityLog
}

func NewStore() *Store {
	return &Store{
		nextOrderID:  1,
		nextCouponID: 1,
		nextLogID:    1,
		orders:       make(map[int64]model.Order),
		coupons:      make(map[int64]model.Coupon),
	}
}

var (
	_ repo.OrderRepository       = (*orderRepo)(nil)
	_ repo.CouponRepository      = (*couponRepo)(nil)
	_ repo.ActivityLogRepository = (*activityLogRepo)(nil)
	_ repo.TransactionManager    = (*Store)(nil)
)

func (s *Store) Orders() repo.OrderRepository             { return &orderRepo{s: s} }
func (s *Store) Coupons() repo.CouponRepository           { return &couponRepo{s: s} }
func (s *Store) ActivityLogs() repo.ActivityLogRepository { return &activityLogRepo{s: s} }

// SeedCoupon はクーポンを直接登録する（管理画面のCRUDは外部）。
func (s *Store) SeedCoupon(c model.Coupon) model.Coupon {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.ID = s.nextCouponID
	s.nextCouponID++
	c.Code = model.NormalizeCouponCode(c.Code)
	now := time.Now()
	c.CreatedAt, c.UpdatedAt = now, now
	s.coupons[c.ID] = c
	return c
}

func (s *Store) SeedOrder(o model.Order) model.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertOrder(o)
}

// Coupon はテストからcurrent_usesを確認するためのもの
func (s *Store) Coupon(id int64) (model.Coupon, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.coupons[id]
	return c, ok
}

// =====================
// TransactionManager
// =====================

type txRepos struct {
	orders  *orderRepo
	coupons *couponRepo
}

func (r *txRepos) Orders() repo.OrderRepository   { return r.orders }
func (r *txRepos) Coupons() repo.CouponRepository { return r.coupons }

// Tx中はStore全体をロックしたまま動かし、エラーならスナップショットに戻す。
func (s *Store) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	err := fn(&txRepos{
		orders:  &orderRepo{s: s, inTx: true},
		coupons: &couponRepo{s: s, inTx: true},
	})
	if err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	nextOrderID  int64
	nextCouponID int64
	orders       map[int64]model.Order
	coupons      map[int64]model.Coupon
}

func (s *Store) snapshot() snapshot {
	orders := make(map[int64]model.Order, len(s.orders))
	for k, v := range s.orders {
		orders[k] = v
	}
	coupons := make(map[int64]model.Coupon, len(s.coupons))
	for k, v := range s.coupons {
		coupons[k] = v
	}
	return snapshot{
		nextOrderID:  s.nextOrderID,
		nextCouponID: s.nextCouponID,
		orders:       orders,
		coupons:      coupons,
	}
}

func (s *Store) restore(sn snapshot) {
	s.nextOrderID = sn.nextOrderID
	s.nextCouponID = sn.nextCouponID
	s.orders = sn.orders
	s.coupons = sn.coupons
}

func (s *Store) insertOrder(o model.Order) model.Order {
	o.ID = s.nextOrderID
	s.nextOrderID++
	now := time.Now()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	s.orders[o.ID] = o
	return o
}

// =====================
// Orders
// =====================

type orderRepo struct {
	s    *Store
	inTx bool
}

func (r *orderRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *orderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	defer r.lock()()
	o, ok := r.s.orders[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (r *orderRepo) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	defer r.lock()()
	for _, o := range r.s.orders {
		if o.OrderNumber == orderNumber {
			return o, nil
		}
	}
	return model.Order{}, repo.ErrNotFound
}

func (r *orderRepo) FindByPaymentReference(ctx context.Context, ref string) (model.Order, bool, error) {
	defer r.lock()()
	for _, o := range r.s.orders {
		if o.PaymentReference == ref {
			return o, true, nil
		}
	}
	return model.Order{}, false, nil
}

func (r *orderRepo) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	defer r.lock()()
	var all []model.Order
	for _, o := range r.s.orders {
		if o.UserID != nil && *o.UserID == userID {
			all = append(all, o)
		}
	}
	return paginate(all, page, limit)
}

func (r *orderRepo) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	defer r.lock()()
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	var all []model.Order
	for _, o := range r.s.orders {
		if f.Status != "" && string(o.Status) != f.Status {
			continue
		}
		if f.UserID != nil && (o.UserID == nil || *o.UserID != *f.UserID) {
			continue
		}
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		all = append(all, o)
	}
	return paginate(all, f.Page, f.Limit)
}

// id desc で切り出す
func paginate(all []model.Order, page, limit int) ([]model.Order, int64, error) {
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	total := int64(len(all))
	start := (page - 1) * limit
	if start < 0 || start >= len(all) {
		return []model.Order{}, total, nil
	}
	end := start + limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], total, nil
}

func (r *orderRepo) Create(ctx context.Context, order model.Order) (model.Order, error) {
	defer r.lock()()
	for _, o := range r.s.orders {
		if o.OrderNumber == order.OrderNumber || o.PaymentReference == order.PaymentReference {
			return model.Order{}, repo.ErrDuplicate
		}
	}
	return r.s.insertOrder(order), nil
}

func (r *orderRepo) UpdateStatusIfCurrent(ctx context.Context, orderID int64, expected model.OrderStatus, next model.OrderStatus) error {
	defer r.lock()()
	o, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	if o.Status != expected {
		return repo.ErrConflict
	}
	o.Status = next
	o.Version++
	o.UpdatedAt = time.Now()
	r.s.orders[orderID] = o
	return nil
}

func (r *orderRepo) MarkShippedIfCurrent(ctx context.Context, orderID int64, expected model.OrderStatus, s repo.ShipmentUpdate) error {
	defer r.lock()()
	o, ok := r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	if o.Status != expected || o.Version != s.ExpectedVersion {
		return repo.ErrConflict
	}
	tn, carrier, shippedAt := s.TrackingNumber, s.Carrier, s.ShippedAt
	o.Status = model.OrderStatusShipped
	o.TrackingNumber = &tn
	o.Carrier = &carrier
	o.TrackingURL = s.TrackingURL
	o.ShippedAt = &shippedAt
	o.Version++
	o.UpdatedAt = time.Now()
	r.s.orders[orderID] = o
	return nil
}

// =====================
// Coupons
// =====================

type couponRepo struct {
	s    *Store
	inTx bool
}

func (r *couponRepo) lock() func() {
	if r.inTx {
		return func() {}
	}
	r.s.mu.Lock()
	return r.s.mu.Unlock
}

func (r *couponRepo) FindActiveByCode(ctx context.Context, code string) (model.Coupon, error) {
	defer r.lock()()
	for _, c := range r.s.coupons {
		if c.Code == code && c.IsActive {
			return c, nil
		}
	}
	return model.Coupon{}, repo.ErrNotFound
}

func (r *couponRepo) IncrementUsageIfAvailable(ctx context.Context, couponID int64) (bool, error) {
	defer r.lock()()
	c, ok := r.s.coupons[couponID]
	if !ok || !c.IsActive || c.Exhausted() {
		return false, nil
	}
	c.CurrentUses++
	c.UpdatedAt = time.Now()
	r.s.coupons[couponID] = c
	return true, nil
}

// =====================
// ActivityLogs
// =====================

type activityLogRepo struct {
	s *Store
}

func (r *activityLogRepo) Append(ctx context.Context, entry model.ActivityLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	entry.ID = r.s.nextLogID
	r.s.nextLogID++
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	r.s.logs = append(r.s.logs, entry)
	return nil
}

func (r *activityLogRepo) List(ctx context.Context, filter repo.ActivityLogFilter) ([]model.ActivityLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	out := []model.ActivityLog{}
	//新しい順
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		l := r.s.logs[i]
		if filter.OrderID != nil && l.OrderID != *filter.OrderID {
			continue
		}
		if filter.PerformedBy != nil && (l.PerformedBy == nil || *l.PerformedBy != *filter.PerformedBy) {
			continue
		}
		if filter.ActionType != nil && l.ActionType != *filter.ActionType {
			continue
		}
		if filter.CreatedFrom != nil && l.CreatedAt.Before(*filter.CreatedFrom) {
			continue
		}
		if filter.CreatedTo != nil && l.CreatedAt.After(*filter.CreatedTo) {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, l)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}
