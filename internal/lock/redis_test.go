package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	r := NewRedis(client)
	r.retryInterval = 5 * time.Millisecond
	return r, mr
}

func TestRedisLockAcquireAndRelease(t *testing.T) {
	r, mr := newTestRedis(t)

	err := r.WithLock(context.Background(), "acct:1", func() error {
		require.True(t, mr.Exists(keyPrefix+"acct:1"))
		return nil
	})
	require.NoError(t, err)

	// Released on return.
	assert.False(t, mr.Exists(keyPrefix + "acct:1"))
}

func TestRedisLockSerializesSameKey(t *testing.T) {
	r, _ := newTestRedis(t)

	const workers = 10
	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.WithLock(context.Background(), "acct:1", func() error {
				counter++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

func TestRedisLockWaitAbortsOnContextCancel(t *testing.T) {
	r, mr := newTestRedis(t)

	// Somebody else holds the key.
	mr.Set(keyPrefix+"acct:1", "other-token")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := r.WithLock(ctx, "acct:1", func() error {
		t.Fatal("critical section ran while the key was held elsewhere")
		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRedisLockReleaseIsTokenGuarded(t *testing.T) {
	r, mr := newTestRedis(t)

	// Simulate lease expiry mid-section: the key now belongs to another
	// holder, so our release must leave it alone.
	err := r.WithLock(context.Background(), "acct:1", func() error {
		mr.Set(keyPrefix+"acct:1", "other-token")
		return nil
	})
	require.NoError(t, err)

	got, err := mr.Get(keyPrefix + "acct:1")
	require.NoError(t, err)
	assert.Equal(t, "other-token", got)
}

func TestRedisLockLeaseExpires(t *testing.T) {
	r, mr := newTestRedis(t)
	r.ttl = 20 * time.Millisecond

	err := r.WithLock(context.Background(), "acct:1", func() error {
		mr.FastForward(30 * time.Millisecond)
		assert.False(t, mr.Exists(keyPrefix+"acct:1"))
		return nil
	})
	require.NoError(t, err)
}
