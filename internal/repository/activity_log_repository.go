package repository

import (
	"context"
	"time"

	"storefront/internal/domain/model"
)

//操作ログの絞り込み条件。

type ActivityLogFilter struct {
	OrderID     *int64
	PerformedBy *int64
	ActionType  *model.ActivityAction
	CreatedFrom *time.Time
	CreatedTo   *time.Time
	Limit       int
	Offset      int
}

// 操作ログは追記と一覧だけ。更新・削除の口は作らない。
type ActivityLogRepository interface {
	Append(ctx context.Context, entry model.ActivityLog) error

	//新しい順
	List(ctx context.Context, filter ActivityLogFilter) ([]model.ActivityLog, error)
}
