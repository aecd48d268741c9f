package model

import "time"

// 注文に対して何をしたか
type ActivityAction string

const (
	//ステータス変更
	ActivityActionStatusChanged ActivityAction = "status_changed"
	//発送登録（追跡番号つき）
	ActivityActionOrderShipped ActivityAction = "order_shipped"
	//チェックアウト完了で注文が作られた
	ActivityActionOrderCreated ActivityAction = "order_created"
	//クーポン使用回数の消費
	ActivityActionCouponRedeemed ActivityAction = "coupon_redeemed"
)

// 注文の操作ログ。追記のみで更新・削除はしない。
// 「誰が」「どの注文に」「何を」「どう変えたか」を残す。
type ActivityLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	OrderID int64 `gorm:"not null;index" json:"order_id"`

	//操作した人。システム操作ならnil
	PerformedBy *int64 `gorm:"index" json:"performed_by"`

	ActionType ActivityAction `gorm:"type:varchar(50);not null;index" json:"action_type"`

	//JSON文字列で保存する。
	PreviousValue string `gorm:"type:text" json:"previous_value"`
	NewValue      string `gorm:"type:text" json:"new_value"`
	Metadata      string `gorm:"type:text" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
