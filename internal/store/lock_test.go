package store

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

func TestMemoryLocker_SerializesPerKey(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(ctx, "k")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()

			mu.Lock()
			active++
			if active > maxSeen {
				maxSeen = active
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			active--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
}

func TestMemoryLocker_IndependentKeys(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlockA, err := l.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	unlockB, err := l.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestMemoryLocker_ContextCancel(t *testing.T) {
	l := NewMemoryLocker()

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = l.Lock(ctx, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLocker_UnlockIsIdempotent(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock()
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "piratenlogin:u1")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:association:piratenlogin:u1"))

	unlock()
	assert.False(t, mr.Exists("lock:association:piratenlogin:u1"))
}

func TestRedisLocker_WaitsForHolder(t *testing.T) {
	_, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Minute)
	ctx := context.Background()

	unlock, err := l.Lock(ctx, "k")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 60*time.Millisecond)
	defer cancel()
	_, err = l.Lock(short, "k")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock2, err := l.Lock(ctx, "k")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_ReleaseKeepsForeignLock(t *testing.T) {
	mr, client := newTestRedis(t)
	l := NewRedisLocker(client, time.Minute)

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// Simulate expiry and a new holder.
	require.NoError(t, mr.Set("lock:association:k", "someone-else"))
	unlock()

	got, err := mr.Get("lock:association:k")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}
