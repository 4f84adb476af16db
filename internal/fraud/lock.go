package fraud

import (
	"context" // Redis operations
	"errors"  // Sentinel errors
	"time"    // Lock TTL

	"github.com/google/uuid"       // Owner token
	"github.com/redis/go-redis/v9" // Redis client
)

// ErrLockLost is returned by Refresh once the lock expired or changed owner
var ErrLockLost = errors.New("lock no longer held")

// Locker hands out named locks shared by every instance
type Locker interface {
	// Acquire returns the lock when key was taken, nil when someone else holds it.
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// Lock is a held lock. It expires on its own unless refreshed.
type Lock interface {
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Both scripts only touch the key while it still holds our token.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

// RedisLocker is a SETNX lock under a common key prefix
type RedisLocker struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisLocker creates locks named prefix:<key>. A nil client yields a nil Locker.
func NewRedisLocker(rdb *redis.Client, prefix string) Locker {
	if rdb == nil {
		return nil
	}
	return &RedisLocker{rdb: rdb, prefix: prefix}
}

// Acquire implements Locker
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	lock := &redisLock{rdb: l.rdb, key: l.prefix + ":" + key, token: uuid.NewString()}
	ok, err := l.rdb.SetNX(ctx, lock.key, lock.token, ttl).Result()
	if err != nil || !ok {
		return nil, err
	}
	return lock, nil
}

type redisLock struct {
	rdb   *redis.Client
	key   string
	token string
}

func (l *redisLock) Refresh(ctx context.Context, ttl time.Duration) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrLockLost
	}
	return nil
}

func (l *redisLock) Release(ctx context.Context) error {
	return releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Err()
}
