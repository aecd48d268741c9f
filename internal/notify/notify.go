// Package notify はメール送信サービスへの通知。
// 送信の成否は呼び出し元の処理結果に影響させない（投げっぱなし）。
package notify

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindOrderConfirmation Kind = "order-confirmation"
	KindOrderShipped      Kind = "order-shipped"

	// 会員登録は認証サービス側なので、このサービスからは送らない（同じ経路に載せられるよう定義だけ置く）
	KindWelcome Kind = "welcome"
)

type Notification struct {
	ID        string                 `json:"id"`
	Kind      Kind                   `json:"kind"`
	Recipient string                 `json:"recipient"`
	Payload   map[string]interface{} `json:"payload"`
	CreatedAt time.Time              `json:"created_at"`
}

func New(kind Kind, recipient string, payload map[string]interface{}) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Recipient: recipient,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier は実際の送り先（Kafka / RabbitMQ / ログ）
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
