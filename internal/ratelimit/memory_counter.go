package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryCounter はプロセス内のスライディングログ。Redisが無い開発環境とテスト用。
// 複数台構成では台数分だけ上限が緩くなる。
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string][]time.Time
	now     func() time.Time
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{windows: make(map[string][]time.Time), now: time.Now}
}

// テストで時計を差し替える
func (c *MemoryCounter) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

func (c *MemoryCounter) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	cutoff := now.Add(-window)

	//窓の外を捨てる
	hits := c.windows[key]
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	admitted := len(kept)+1 <= limit
	if admitted {
		kept = append(kept, now)
	}
	if len(kept) == 0 {
		delete(c.windows, key)
	} else {
		c.windows[key] = kept
	}

	resetAt := now.Add(window)
	if len(kept) > 0 {
		resetAt = kept[0].Add(window)
	}
	remaining := limit - len(kept)
	if remaining < 0 || !admitted {
		remaining = 0
	}
	return Result{Admitted: admitted, Remaining: remaining, ResetAt: resetAt}, nil
}
