package usecase

import (
	"context"
	"time"

	"storefront/internal/notify"

	"github.com/shopspring/decimal"
)

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// 通知は投げっぱなし。Dispatchはブロックしない。
type NotificationDispatcher interface {
	Dispatch(n notify.Notification)
}

// 決済は外部サービス。ここではセッションを作ってもらうだけ。
type PaymentGateway interface {
	CreateSession(ctx context.Context, req PaymentSessionRequest) (PaymentSession, error)
}

type PaymentSessionRequest struct {
	Amount        decimal.Decimal
	CustomerEmail string
	Metadata      map[string]string
}

type PaymentSession struct {
	ID          string
	RedirectURL string
}
