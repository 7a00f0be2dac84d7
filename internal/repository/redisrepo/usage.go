// Package redisrepo holds Redis-backed counters. The daily usage counter
// enforces the per-account send cap with atomic Lua check-and-increment so
// concurrent dispatches cannot overshoot.
package redisrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageCounter tracks emails sent per (account, UTC day).
type UsageCounter struct {
	redis *redis.Client

	reserveScript *redis.Script
	releaseScript *redis.Script
}

// Counter keys live two days so yesterday's value stays readable for
// reporting, then expire on their own.
const usageTTLSeconds = 2 * 24 * 60 * 60

// Lua script for atomic quota reservation. The check and the increment run
// as one unit; a GET then INCRBY from Go would race between dispatches.
const reserveLuaScript = `
local key = KEYS[1]
local n = tonumber(ARGV[1])
local cap = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")
if current + n > cap then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, n)
if newVal == n then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// Release refunds reservations that never became sends; the floor at zero
// guards against a refund racing the key's expiry.
const releaseLuaScript = `
local key = KEYS[1]
local n = tonumber(ARGV[1])

local current = tonumber(redis.call("GET", key) or "0")
if current <= 0 then
    return 0
end
if n > current then
    n = current
end
return redis.call("DECRBY", key, n)
`

// NewUsageCounter creates a usage counter with pre-compiled Lua scripts.
func NewUsageCounter(redisClient *redis.Client) *UsageCounter {
	return &UsageCounter{
		redis:         redisClient,
		reserveScript: redis.NewScript(reserveLuaScript),
		releaseScript: redis.NewScript(releaseLuaScript),
	}
}

// NewUsageCounterFromURL connects to Redis and returns a usage counter.
func NewUsageCounterFromURL(ctx context.Context, redisURL string) (*UsageCounter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return NewUsageCounter(client), nil
}

func usageKey(accountID string, day time.Time) string {
	return fmt.Sprintf("usage:%s:%s", accountID, day.UTC().Format("2006-01-02"))
}

// Reserve atomically claims n send slots against the cap. Returns false,
// leaving the counter untouched, when the reservation would exceed it.
func (c *UsageCounter) Reserve(ctx context.Context, accountID string, day time.Time, n, cap int) (bool, error) {
	res, err := c.reserveScript.Run(ctx, c.redis,
		[]string{usageKey(accountID, day)},
		n, cap, usageTTLSeconds,
	).Slice()
	if err != nil {
		return false, fmt.Errorf("reserve usage: %w", err)
	}
	if len(res) != 2 {
		return false, fmt.Errorf("reserve usage: unexpected script reply %v", res)
	}
	allowed, ok := res[0].(int64)
	if !ok {
		return false, fmt.Errorf("reserve usage: unexpected script reply %v", res)
	}
	return allowed == 1, nil
}

// Release returns n unused slots to the account's daily budget.
func (c *UsageCounter) Release(ctx context.Context, accountID string, day time.Time, n int) error {
	if n <= 0 {
		return nil
	}
	err := c.releaseScript.Run(ctx, c.redis,
		[]string{usageKey(accountID, day)},
		n,
	).Err()
	if err != nil {
		return fmt.Errorf("release usage: %w", err)
	}
	return nil
}

// SentToday reads the current counter value. Zero when the key is absent.
func (c *UsageCounter) SentToday(ctx context.Context, accountID string, day time.Time) (int, error) {
	val, err := c.redis.Get(ctx, usageKey(accountID, day)).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read usage: %w", err)
	}
	return val, nil
}
