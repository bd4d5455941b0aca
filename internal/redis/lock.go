package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("resource day lock not acquired")
)

// Locker guards a reservation commit with one lock per resource per day. Keys
// are always taken in ascending order so two concurrent requests touching the
// same resources cannot deadlock against each other.
type Locker interface {
	WithResourceDayLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error
}

type redisDayLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewResourceDayLocker creates a locker backed by per-key Redis SetNX entries.
func NewResourceDayLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisDayLocker{
		client: client,
		ttl:    ttl,
	}
}

func (l *redisDayLocker) WithResourceDayLocks(ctx context.Context, keys []string, fn func(ctx context.Context) error) error {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)

	token := uuid.NewString()
	acquired := make([]string, 0, len(sorted))

	release := func() {
		for i := len(acquired) - 1; i >= 0; i-- {
			_ = l.release(ctx, acquired[i], token)
		}
		acquired = acquired[:0]
	}

	for _, key := range sorted {
		redisKey := "lock:resday:" + key
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			release()
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if !ok {
			release()
			return ErrLockNotAcquired
		}
		acquired = append(acquired, redisKey)
	}

	defer release()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisDayLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
