package middleware

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"storefront/internal/ratelimit"

	"github.com/labstack/echo/v4"
)

type rateLimitResponse struct {
	Error     string `json:"error"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at"`
}

// RateLimit はルート種別ごとに呼び出し元単位で回数を制限する。
// 超過なら429。カウンタが使えないときは素通し（ヘッダも付けない）。
func RateLimit(l *ratelimit.Limiter, class ratelimit.Class) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity := ratelimit.ClientIdentity(c.Request())
			d, err := l.Allow(c.Request().Context(), class, identity)

			var exceeded *ratelimit.ExceededError
			if errors.As(err, &exceeded) {
				setRateLimitHeaders(c, exceeded.Limit, 0, exceeded.ResetAt)
				c.Response().Header().Set("Retry-After", retryAfter(exceeded.ResetAt))
				return c.JSON(http.StatusTooManyRequests, rateLimitResponse{
					Error:     "too many requests",
					Limit:     exceeded.Limit,
					Remaining: 0,
					ResetAt:   exceeded.ResetAt.UTC().Format(time.RFC3339),
				})
			}

			if !d.FailOpen {
				setRateLimitHeaders(c, d.Policy.Limit, d.Result.Remaining, d.Result.ResetAt)
			}
			return next(c)
		}
	}
}

func setRateLimitHeaders(c echo.Context, limit, remaining int, resetAt time.Time) {
	h := c.Response().Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))
}

// 秒単位、最低1
func retryAfter(resetAt time.Time) string {
	secs := int(time.Until(resetAt).Seconds() + 0.999)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
