package ratelimit

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type failingCounter struct{}

func (failingCounter) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	return Result{}, errors.New("connection refused")
}

var checkoutOnly = map[Class]Policy{ClassCheckout: {Limit: 10, Window: time.Minute}}

func TestAllow_EleventhCheckoutRejected(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	counter := NewMemoryCounter()
	counter.SetClock(clock.Now)
	l := New(counter, checkoutOnly)

	for i := 1; i <= 10; i++ {
		d, err := l.Allow(context.Background(), ClassCheckout, "203.0.113.7")
		require.NoError(t, err, "call %d", i)
		assert.Equal(t, 10-i, d.Result.Remaining)
		clock.Advance(time.Second)
	}

	_, err := l.Allow(context.Background(), ClassCheckout, "203.0.113.7")
	var exceeded *ExceededError
	require.ErrorAs(t, err, &exceeded)
	assert.Equal(t, 10, exceeded.Limit)
	assert.Equal(t, 0, exceeded.Remaining)
	// 最初の1件が窓から出る時刻
	assert.Equal(t, time.Date(2026, 10, 17, 12, 1, 0, 0, time.UTC), exceeded.ResetAt)

	//別の呼び出し元は影響を受けない
	_, err = l.Allow(context.Background(), ClassCheckout, "198.51.100.1")
	assert.NoError(t, err)
}

func TestAllow_NewWindowResets(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	counter := NewMemoryCounter()
	counter.SetClock(clock.Now)
	l := New(counter, checkoutOnly)

	for i := 0; i < 10; i++ {
		_, err := l.Allow(context.Background(), ClassCheckout, "id")
		require.NoError(t, err)
	}
	_, err := l.Allow(context.Background(), ClassCheckout, "id")
	require.Error(t, err)

	clock.Advance(time.Minute + time.Millisecond)

	d, err := l.Allow(context.Background(), ClassCheckout, "id")
	require.NoError(t, err)
	assert.Equal(t, 9, d.Result.Remaining)
}

func TestAllow_RejectedCallsDoNotExtendWindow(t *testing.T) {
	clock := &manualClock{t: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)}
	counter := NewMemoryCounter()
	counter.SetClock(clock.Now)
	l := New(counter, map[Class]Policy{ClassCoupon: {Limit: 2, Window: time.Minute}})

	_, _ = l.Allow(context.Background(), ClassCoupon, "id")
	_, _ = l.Allow(context.Background(), ClassCoupon, "id")
	for i := 0; i < 5; i++ {
		clock.Advance(10 * time.Second)
		_, err := l.Allow(context.Background(), ClassCoupon, "id")
		require.Error(t, err)
	}

	clock.Advance(11 * time.Second) // 最初の2件から61秒
	_, err := l.Allow(context.Background(), ClassCoupon, "id")
	assert.NoError(t, err)
}

func TestAllow_FailOpen(t *testing.T) {
	t.Run("nil counter", func(t *testing.T) {
		l := New(nil, checkoutOnly)
		for i := 0; i < 50; i++ {
			d, err := l.Allow(context.Background(), ClassCheckout, "id")
			require.NoError(t, err)
			assert.True(t, d.FailOpen)
		}
	})

	t.Run("erroring counter", func(t *testing.T) {
		l := New(failingCounter{}, checkoutOnly)
		d, err := l.Allow(context.Background(), ClassCheckout, "id")
		require.NoError(t, err)
		assert.True(t, d.FailOpen)
		assert.True(t, d.Result.Admitted)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		rdb := redis.NewClient(&redis.Options{
			Addr:        "127.0.0.1:1",
			DialTimeout: 200 * time.Millisecond,
			MaxRetries:  -1,
		})
		defer rdb.Close()

		l := New(NewRedisCounter(rdb), checkoutOnly)
		d, err := l.Allow(context.Background(), ClassCheckout, "id")
		require.NoError(t, err)
		assert.True(t, d.FailOpen)
	})

	t.Run("unknown class", func(t *testing.T) {
		l := New(NewMemoryCounter(), checkoutOnly)
		d, err := l.Allow(context.Background(), ClassOrderLookup, "id")
		require.NoError(t, err)
		assert.True(t, d.FailOpen)
	})
}

func TestMemoryCounter_ConcurrentAdmitsExactlyLimit(t *testing.T) {
	counter := NewMemoryCounter()
	l := New(counter, map[Class]Policy{ClassOrderLookup: {Limit: 30, Window: time.Minute}})

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Allow(context.Background(), ClassOrderLookup, "same"); err == nil {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 30, admitted)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "ratelimit:checkout:203.0.113.7", Key(ClassCheckout, "203.0.113.7"))
}

func TestClientIdentity(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.9:51234"
	assert.Equal(t, "10.0.0.9", ClientIdentity(r))

	r.Header.Set("X-Real-IP", " 192.0.2.4 ")
	assert.Equal(t, "192.0.2.4", ClientIdentity(r))

	r.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", ClientIdentity(r))

	r.Header.Set("X-Forwarded-For", " , 10.0.0.1")
	assert.Equal(t, "192.0.2.4", ClientIdentity(r), "先頭が空ならX-Real-IPへ")
}
