package usecase

import (
	"context"
	"encoding/json"
	"log/slog"

	"storefront/internal/domain/model"
	"storefront/internal/logging"
	"storefront/internal/metrics"
	repo "storefront/internal/repository"
)

type ActivityLogUsecase struct {
	logs  repo.ActivityLogRepository
	clock Clock
	log   *slog.Logger
}

func NewActivityLogUsecase(logs repo.ActivityLogRepository, clock Clock) *ActivityLogUsecase {
	return &ActivityLogUsecase{logs: logs, clock: clock, log: logging.New("activity_log")}
}

// ActivityEntry は記録したい内容。値はJSONにして保存する。
type ActivityEntry struct {
	OrderID     int64
	PerformedBy *int64
	Action      model.ActivityAction
	Previous    interface{}
	New         interface{}
	Metadata    interface{}
}

type ActivityLogOutput struct {
	ID            int64           `json:"id"`
	OrderID       int64           `json:"order_id"`
	PerformedBy   *int64          `json:"performed_by"`
	ActionType    string          `json:"action_type"`
	PreviousValue json.RawMessage `json:"previous_value"`
	NewValue      json.RawMessage `json:"new_value"`
	Metadata      json.RawMessage `json:"metadata"`
	CreatedAt     string          `json:"created_at"`
}

// Record は1件追記する
func (u *ActivityLogUsecase) Record(ctx context.Context, e ActivityEntry) error {
	return u.logs.Append(ctx, model.ActivityLog{
		OrderID:       e.OrderID,
		PerformedBy:   e.PerformedBy,
		ActionType:    e.Action,
		PreviousValue: toJSON(e.Previous),
		NewValue:      toJSON(e.New),
		Metadata:      toJSON(e.Metadata),
		CreatedAt:     u.clock.Now(),
	})
}

// RecordBestEffort は失敗してもエラーを返さない。
// 状態変更はもう確定しているので、ログ側の失敗で巻き戻さない。
func (u *ActivityLogUsecase) RecordBestEffort(ctx context.Context, e ActivityEntry) {
	if err := u.Record(ctx, e); err != nil {
		logging.FromCtx(ctx).Error("activity log append failed",
			"order_id", e.OrderID, "action", e.Action, "err", err)
		metrics.ActivityLogFailures.Inc()
	}
}

// 注文ごとの操作ログ（管理者のみ、新しい順）
func (u *ActivityLogUsecase) ListForOrder(ctx context.Context, caller Caller, orderID int64, limit int, offset int) ([]ActivityLogOutput, error) {
	if err := AuthorizeOrderMutation(caller); err != nil {
		return []ActivityLogOutput{}, err
	}
	if orderID <= 0 {
		return []ActivityLogOutput{}, ValidationError("invalid id")
	}

	logs, err := u.logs.List(ctx, repo.ActivityLogFilter{
		OrderID: &orderID,
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		u.log.Error("list activity logs", "order_id", orderID, "err", err)
		return []ActivityLogOutput{}, UpstreamError()
	}

	outs := make([]ActivityLogOutput, 0, len(logs))
	for _, l := range logs {
		outs = append(outs, toActivityLogOutput(l))
	}
	return outs, nil
}

func toActivityLogOutput(l model.ActivityLog) ActivityLogOutput {
	return ActivityLogOutput{
		ID:            l.ID,
		OrderID:       l.OrderID,
		PerformedBy:   l.PerformedBy,
		ActionType:    string(l.ActionType),
		PreviousValue: rawOrNull(l.PreviousValue),
		NewValue:      rawOrNull(l.NewValue),
		Metadata:      rawOrNull(l.Metadata),
		CreatedAt:     l.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func toJSON(v interface{}) string {
	if v == nil {
		return ""
	}
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func rawOrNull(s string) json.RawMessage {
	if s == "" {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}
