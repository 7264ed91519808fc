package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the lock only if it still carries our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker serializes work per key across service instances.
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	retry  time.Duration
}

// NewRedisLocker creates a Redis-backed locker. ttl bounds how long a
// crashed holder can block a key.
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client: client,
		prefix: "lock:association:",
		ttl:    ttl,
		retry:  25 * time.Millisecond,
	}
}

func (l *RedisLocker) key(k string) string {
	return l.prefix + k
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	rkey := l.key(key)

	for {
		ok, err := l.client.SetNX(ctx, rkey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("store: acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// Release even if the request context is already gone.
				_ = releaseScript.Run(context.Background(), l.client, []string{rkey}, token).Err()
			}, nil
		}

		select {
		case <-time.After(l.retry):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
