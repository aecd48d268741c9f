package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"storefront/internal/middleware"
	"storefront/internal/ratelimit"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rateLimitBody struct {
	Error     string `json:"error"`
	Limit     int    `json:"limit"`
	Remaining int    `json:"remaining"`
	ResetAt   string `json:"reset_at"`
}

func newLimitedEcho(l *ratelimit.Limiter) *echo.Echo {
	e := echo.New()
	e.POST("/checkout/sessions", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}, middleware.RateLimit(l, ratelimit.ClassCheckout))
	return e
}

func postFrom(e *echo.Echo, ip string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/checkout/sessions", nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_RateLimit_EleventhCheckout429(t *testing.T) {
	l := ratelimit.New(ratelimit.NewMemoryCounter(), map[ratelimit.Class]ratelimit.Policy{
		ratelimit.ClassCheckout: {Limit: 10, Window: time.Minute},
	})
	e := newLimitedEcho(l)

	for i := 1; i <= 10; i++ {
		rec := postFrom(e, "203.0.113.7")
		require.Equal(t, http.StatusOK, rec.Code, "call %d", i)
		assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, strconv.Itoa(10-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := postFrom(e, "203.0.113.7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body rateLimitBody
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 10, body.Limit)
	assert.Equal(t, 0, body.Remaining)
	assert.NotEmpty(t, body.Error)
	_, err := time.Parse(time.RFC3339, body.ResetAt)
	assert.NoError(t, err)

	//別IPは通る
	assert.Equal(t, http.StatusOK, postFrom(e, "198.51.100.1").Code)
}

func TestMiddleware_RateLimit_FailOpenWithoutBackend(t *testing.T) {
	l := ratelimit.New(nil, map[ratelimit.Class]ratelimit.Policy{
		ratelimit.ClassCheckout: {Limit: 1, Window: time.Minute},
	})
	e := newLimitedEcho(l)

	for i := 0; i < 5; i++ {
		rec := postFrom(e, "203.0.113.7")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
	}
}
