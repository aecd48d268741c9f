package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"storefront/internal/logging"
	"storefront/internal/metrics"
)

const sendTimeout = 10 * time.Second

// Dispatcher はバッファ付きinboxに積み、裏のgoroutineで1件ずつ送る。
// inboxが満杯なら捨ててログに残す（呼び出し元は待たせない）。
type Dispatcher struct {
	notifier Notifier
	inbox    chan Notification
	log      *slog.Logger

	closeOnce sync.Once
	done      chan struct{}
}

func NewDispatcher(n Notifier, queueSize int) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Dispatcher{
		notifier: n,
		inbox:    make(chan Notification, queueSize),
		log:      logging.New("notify"),
		done:     make(chan struct{}),
	}
}

func (d *Dispatcher) Start() {
	go func() {
		defer close(d.done)
		for n := range d.inbox {
			d.send(n)
		}
	}()
}

func (d *Dispatcher) send(n Notification) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.Error("notification failed", "id", n.ID, "kind", n.Kind, "err", err)
		metrics.Notifications.WithLabelValues(string(n.Kind), "failed").Inc()
		return
	}
	metrics.Notifications.WithLabelValues(string(n.Kind), "sent").Inc()
}

// Dispatch は絶対にブロックしない
func (d *Dispatcher) Dispatch(n Notification) {
	defer func() {
		//Close後に呼ばれた場合（送信済みchannelへのsend）
		if r := recover(); r != nil {
			d.log.Warn("notification dropped after close", "id", n.ID, "kind", n.Kind)
			metrics.Notifications.WithLabelValues(string(n.Kind), "dropped").Inc()
		}
	}()

	select {
	case d.inbox <- n:
	default:
		d.log.Warn("notification queue full, dropped", "id", n.ID, "kind", n.Kind)
		metrics.Notifications.WithLabelValues(string(n.Kind), "dropped").Inc()
	}
}

// Close はinboxを閉じる。残りは送ってからgoroutineが終わる。
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() { close(d.inbox) })
}

// 残りの送信が終わるまで待つ
func (d *Dispatcher) WaitClosed(ctx context.Context) error {
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
