package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	// Lease on a held lock; refreshed implicitly by short critical
	// sections. A crashed holder frees the key after the TTL.
	defaultTTL = 30 * time.Second
	// Polling interval while waiting for a contended key.
	defaultRetryInterval = 50 * time.Millisecond

	keyPrefix = "cardledger:lock:"
)

// releaseScript deletes the key only if it still holds our token, so a
// holder whose lease expired cannot release a lock someone else now
// owns.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// Redis is a Service backed by a shared Redis instance, for multi-node
// deployments.
type Redis struct {
	client        *redis.Client
	ttl           time.Duration
	retryInterval time.Duration
}

func NewRedis(client *redis.Client) *Redis {
	if client == nil {
		panic("redis client is required")
	}
	return &Redis{
		client:        client,
		ttl:           defaultTTL,
		retryInterval: defaultRetryInterval,
	}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func() error) error {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	if err := r.acquire(ctx, redisKey, token); err != nil {
		return err
	}
	defer r.release(redisKey, token)

	return fn()
}

func (r *Redis) acquire(ctx context.Context, key, token string) error {
	for {
		ok, err := r.client.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(r.retryInterval):
		}
	}
}

func (r *Redis) release(key, token string) {
	// Release must not inherit a canceled request context.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = releaseScript.Run(ctx, r.client, []string{key}, token).Err()
}

// NewRedisClient configures a Redis client and verifies connectivity.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
