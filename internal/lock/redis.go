package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisLocker holds locks as SET NX PX keys so that every API instance
// sharing the Redis sees the same holds.
type RedisLocker struct {
	client *redis.Client
	wait   time.Duration
}

func NewRedisLocker(client *redis.Client, wait time.Duration) *RedisLocker {
	if wait <= 0 {
		wait = 5 * time.Second
	}
	return &RedisLocker{client: client, wait: wait}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	token := uuid.NewString()
	err := acquireWithRetry(ctx, l.wait, func() (bool, error) {
		return l.client.SetNX(ctx, key, token, ttl).Result()
	})
	if err != nil {
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_ = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
	}, nil
}

// Ping reports whether Redis is reachable.
func (l *RedisLocker) Ping(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
