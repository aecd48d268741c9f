package notify

import (
	"context"
	"log/slog"

	"storefront/internal/logging"
)

// ブローカー未設定のときの送り先。ログに出すだけ。
type LogNotifier struct {
	log *slog.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logging.New("notify.log")}
}

func (l *LogNotifier) Notify(ctx context.Context, n Notification) error {
	l.log.Info("notification", "id", n.ID, "kind", n.Kind, "recipient", n.Recipient)
	return nil
}
