// Package ratelimit はルート種別×呼び出し元ごとのスライディングウィンドウ制限。
// カウンタのバックエンドが無い・落ちているときは全部通す（fail-open）。
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"storefront/internal/config"
	"storefront/internal/logging"
	"storefront/internal/metrics"
)

type Class string

const (
	ClassCheckout    Class = "checkout"
	ClassCoupon      Class = "coupon"
	ClassOrderLookup Class = "order_lookup"
)

type Policy struct {
	Limit  int
	Window time.Duration
}

type Result struct {
	Admitted  bool
	Remaining int
	ResetAt   time.Time
}

// Counter はカウンタ側の約束。増やして判定するまでを原子的に行う。
type Counter interface {
	IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// 429で返すエラー
type ExceededError struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded: limit=%d reset_at=%d", e.Limit, e.ResetAt.Unix())
}

type Decision struct {
	Policy   Policy
	Result   Result
	FailOpen bool
}

type Limiter struct {
	counter  Counter
	policies map[Class]Policy
	log      *slog.Logger
}

// counterがnilなら常に通す
func New(counter Counter, policies map[Class]Policy) *Limiter {
	return &Limiter{
		counter:  counter,
		policies: policies,
		log:      logging.New("ratelimit"),
	}
}

func PoliciesFromConfig(cfg config.RateLimitConfig) map[Class]Policy {
	return map[Class]Policy{
		ClassCheckout:    {Limit: cfg.Checkout.Limit, Window: cfg.Checkout.Window},
		ClassCoupon:      {Limit: cfg.Coupon.Limit, Window: cfg.Coupon.Window},
		ClassOrderLookup: {Limit: cfg.OrderLookup.Limit, Window: cfg.OrderLookup.Window},
	}
}

func Key(class Class, identity string) string {
	return "ratelimit:" + string(class) + ":" + identity
}

// Allow は1回分を数えて判定する。超過なら *ExceededError。
func (l *Limiter) Allow(ctx context.Context, class Class, identity string) (Decision, error) {
	p, ok := l.policies[class]
	if !ok || p.Limit <= 0 {
		l.log.Warn("no rate limit policy", "class", class)
		metrics.RateLimitDecisions.WithLabelValues(string(class), "fail_open").Inc()
		return Decision{FailOpen: true, Result: Result{Admitted: true}}, nil
	}

	if l.counter == nil {
		metrics.RateLimitDecisions.WithLabelValues(string(class), "fail_open").Inc()
		return l.failOpen(p), nil
	}

	res, err := l.counter.IncrementAndCheck(ctx, Key(class, identity), p.Limit, p.Window)
	if err != nil {
		//カウンタが使えないときはブロックしない
		l.log.Warn("rate limit backend unavailable, admitting", "class", class, "err", err)
		metrics.RateLimitDecisions.WithLabelValues(string(class), "fail_open").Inc()
		return l.failOpen(p), nil
	}

	d := Decision{Policy: p, Result: res}
	if !res.Admitted {
		metrics.RateLimitDecisions.WithLabelValues(string(class), "rejected").Inc()
		return d, &ExceededError{Limit: p.Limit, Remaining: 0, ResetAt: res.ResetAt}
	}
	metrics.RateLimitDecisions.WithLabelValues(string(class), "admitted").Inc()
	return d, nil
}

func (l *Limiter) failOpen(p Policy) Decision {
	return Decision{
		Policy:   p,
		FailOpen: true,
		Result:   Result{Admitted: true, Remaining: p.Limit, ResetAt: time.Now().Add(p.Window)},
	}
}

// ClientIdentity は呼び出し元を決める。
// X-Forwarded-For（先頭） → X-Real-IP → 接続元アドレス の順。
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-IP")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
