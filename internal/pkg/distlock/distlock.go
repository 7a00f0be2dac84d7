// Package distlock provides a small distributed mutex so only one process
// acts on a shared resource at a time. Redis is the preferred backend; a
// Postgres advisory lock serves as fallback when no Redis is configured.
package distlock

import (
	"context"
	"database/sql"
	"hash/fnv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Lock is a try-lock: Acquire never blocks waiting for the holder.
type Lock interface {
	// Acquire attempts to take the lock, returning false if it is held.
	Acquire(ctx context.Context) (bool, error)
	// Release gives the lock back. Safe to call if Acquire returned false.
	Release(ctx context.Context) error
}

// New picks the backend: Redis when a client is available, otherwise a
// Postgres advisory lock on the same database the caller already holds.
func New(redisClient *redis.Client, db *sql.DB, name string, ttl time.Duration) Lock {
	if redisClient != nil {
		return newRedisLock(redisClient, name, ttl)
	}
	return newAdvisoryLock(db, name)
}

// advisoryLock maps the lock name onto a pg_try_advisory_lock ID. Advisory
// locks are session scoped, so a crashed holder frees the lock when its
// connection dies.
type advisoryLock struct {
	db *sql.DB
	id int64
}

func newAdvisoryLock(db *sql.DB, name string) *advisoryLock {
	h := fnv.New64a()
	h.Write([]byte(name))
	return &advisoryLock{db: db, id: int64(h.Sum64())}
}

func (l *advisoryLock) Acquire(ctx context.Context) (bool, error) {
	var got bool
	err := l.db.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, l.id).Scan(&got)
	return got, err
}

func (l *advisoryLock) Release(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, l.id)
	return err
}
