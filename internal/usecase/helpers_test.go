package usecase_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/domain/model"
	"storefront/internal/notify"
	repo "storefront/internal/repository"
	"storefront/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// =====================
// 共通部品
// =====================

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

func adminCaller() usecase.Caller {
	id := int64(900)
	return usecase.Caller{UserID: &id, Role: model.RoleAdmin}
}

func userCaller(id int64) usecase.Caller {
	return usecase.Caller{UserID: &id, Role: model.RoleUser}
}

// recordingDispatcher は送られた通知を貯めるだけ
type recordingDispatcher struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (d *recordingDispatcher) Dispatch(n notify.Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, n)
}

func (d *recordingDispatcher) Sent() []notify.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]notify.Notification(nil), d.sent...)
}

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	he, ok := usecase.AsHTTPError(err)
	if assert.True(t, ok, "err=%v is not HTTPError", err) {
		assert.Equal(t, status, he.Status, "message=%q", he.Message)
	}
}

// =====================
// Repository mocks
// =====================

type OrderRepoMock struct{ mock.Mock }

var _ repo.OrderRepository = (*OrderRepoMock)(nil)

func (m *OrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByOrderNumber(ctx context.Context, orderNumber string) (model.Order, error) {
	args := m.Called(ctx, orderNumber)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *OrderRepoMock) FindByPaymentReference(ctx context.Context, ref string) (model.Order, bool, error) {
	panic("not used in OrderLifecycle tests")
}

func (m *OrderRepoMock) ListByUserID(ctx context.Context, userID int64, page int, limit int) ([]model.Order, int64, error) {
	args := m.Called(ctx, userID, page, limit)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) ListAdmin(ctx context.Context, f repo.AdminOrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *OrderRepoMock) Create(ctx context.Context, order model.Order) (model.Order, error) {
	panic("not used in OrderLifecycle tests")
}

func (m *OrderRepoMock) UpdateStatusIfCurrent(ctx context.Context, orderID int64, expected model.OrderStatus, next model.OrderStatus) error {
	args := m.Called(ctx, orderID, expected, next)
	return args.Error(0)
}

func (m *OrderRepoMock) MarkShippedIfCurrent(ctx context.Context, orderID int64, expected model.OrderStatus, s repo.ShipmentUpdate) error {
	args := m.Called(ctx, orderID, expected, s)
	return args.Error(0)
}

type ActivityLogRepoMock struct{ mock.Mock }

var _ repo.ActivityLogRepository = (*ActivityLogRepoMock)(nil)

func (m *ActivityLogRepoMock) Append(ctx context.Context, entry model.ActivityLog) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *ActivityLogRepoMock) List(ctx context.Context, filter repo.ActivityLogFilter) ([]model.ActivityLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.ActivityLog)
	return logs, args.Error(1)
}
