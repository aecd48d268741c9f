package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ソート済みセットでスライディングログを持つ。
// 古いものを消す→仮に追加→数える→超えていたら取り消す、までを1スクリプトで行う。
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
redis.call('ZADD', key, now, member)
local count = redis.call('ZCARD', key)
local admitted = 1
if count > limit then
  redis.call('ZREM', key, member)
  admitted = 0
end
redis.call('PEXPIRE', key, window)

local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if #oldest == 2 then
  reset = tonumber(oldest[2]) + window
end

local remaining = limit - count
if remaining < 0 then
  remaining = 0
end
return {admitted, remaining, reset}
`)

type RedisCounter struct {
	rdb redis.Scripter
	now func() time.Time
}

func NewRedisCounter(rdb redis.Scripter) *RedisCounter {
	return &RedisCounter{rdb: rdb, now: time.Now}
}

func (c *RedisCounter) IncrementAndCheck(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	now := c.now()
	vals, err := slidingWindowScript.Run(ctx, c.rdb, []string{key},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("sliding window script: %w", err)
	}
	if len(vals) != 3 {
		return Result{}, fmt.Errorf("sliding window script: unexpected reply %v", vals)
	}

	return Result{
		Admitted:  vals[0] == 1,
		Remaining: int(vals[1]),
		ResetAt:   time.UnixMilli(vals[2]),
	}, nil
}
