package distlock

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisLock holds the lock as a SET NX key with a TTL. A random owner token
// keeps one process from releasing a lock another process took over after
// expiry; release checks the token in a Lua script so check and delete are
// one atomic step.
type redisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

func newRedisLock(client *redis.Client, name string, ttl time.Duration) *redisLock {
	tok := make([]byte, 16)
	rand.Read(tok)
	return &redisLock{
		client: client,
		key:    "lock:" + name,
		owner:  hex.EncodeToString(tok),
		ttl:    ttl,
	}
}

func (l *redisLock) Acquire(ctx context.Context) (bool, error) {
	got, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	return got, nil
}

var releaseLock = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	end
	return 0
`)

func (l *redisLock) Release(ctx context.Context) error {
	return releaseLock.Run(ctx, l.client, []string{l.key}, l.owner).Err()
}
