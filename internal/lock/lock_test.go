package lock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	locker, err := NewRedisLocker(RedisOptions{
		URL:              fmt.Sprintf("redis://%s", mr.Addr()),
		TTL:              5 * time.Second,
		RetryInterval:    time.Millisecond,
		MaxRetryInterval: 5 * time.Millisecond,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = locker.Close()
	})
	return locker, mr
}

func lockers(t *testing.T) map[string]Locker {
	redisLocker, _ := setupRedisLocker(t)
	return map[string]Locker{
		"local": NewLocalLocker(),
		"redis": redisLocker,
	}
}

func TestIdentityKeys(t *testing.T) {
	email := "doc@hillvalley.edu"
	phone := "+15551234"

	assert.Equal(t, []string{"identity:email:doc@hillvalley.edu", "identity:phone:+15551234"}, IdentityKeys(&email, &phone))
	assert.Equal(t, []string{"identity:phone:+15551234"}, IdentityKeys(nil, &phone))
	assert.Empty(t, IdentityKeys(nil, nil))
}

func TestNormalizeKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, normalizeKeys([]string{"c", "a", "b", "a"}))
}

func TestLocker_MutualExclusion(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			var inside, maxInside int32
			var wg sync.WaitGroup

			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					// Alternate key order; sorted acquisition must prevent deadlock
					keys := []string{"identity:email:a", "identity:phone:1"}
					if i%2 == 1 {
						keys = []string{keys[1], keys[0]}
					}

					release, err := l.Lock(context.Background(), keys...)
					if !assert.NoError(t, err) {
						return
					}
					n := atomic.AddInt32(&inside, 1)
					for {
						m := atomic.LoadInt32(&maxInside)
						if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
							break
						}
					}
					time.Sleep(2 * time.Millisecond)
					atomic.AddInt32(&inside, -1)
					release()
				}(i)
			}

			wg.Wait()
			assert.Equal(t, int32(1), maxInside)
		})
	}
}

func TestLocker_DisjointKeysDoNotBlock(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Lock(context.Background(), "identity:email:a")
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			other, err := l.Lock(ctx, "identity:email:b")
			require.NoError(t, err)
			other()
		})
	}
}

func TestLocker_ContextDeadline(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			release, err := l.Lock(context.Background(), "identity:phone:1")
			require.NoError(t, err)

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "identity:email:a", "identity:phone:1")
			require.Error(t, err)
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			// The partially acquired email key was given back
			ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
			defer cancel2()
			other, err := l.Lock(ctx2, "identity:email:a")
			require.NoError(t, err)
			other()

			release()
			release()
		})
	}
}

func TestLocalLocker_ForgetsIdleKeys(t *testing.T) {
	l := NewLocalLocker()
	release, err := l.Lock(context.Background(), "k1", "k2")
	require.NoError(t, err)
	assert.Len(t, l.locks, 2)

	release()
	assert.Empty(t, l.locks)
}

func TestLocker_ReleaseIsIdempotent(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			first, err := l.Lock(context.Background(), "identity:email:x")
			require.NoError(t, err)

			var wg sync.WaitGroup
			for i := 0; i < 4; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					first()
				}()
			}
			wg.Wait()

			second, err := l.Lock(context.Background(), "identity:email:x")
			require.NoError(t, err)
			defer second()

			// A stale release must not free the new holder
			first()

			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
			defer cancel()
			_, err = l.Lock(ctx, "identity:email:x")
			require.Error(t, err)
			assert.ErrorIs(t, err, context.DeadlineExceeded)
		})
	}
}

func TestRedisLocker_ReleaseKeepsForeignToken(t *testing.T) {
	l, mr := setupRedisLocker(t)

	release, err := l.Lock(context.Background(), "identity:email:a")
	require.NoError(t, err)

	// Simulate expiry followed by another holder taking the key
	mr.FastForward(10 * time.Second)
	require.NoError(t, mr.Set("identity:email:a", "someone-else"))

	release()
	got, err := mr.Get("identity:email:a")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisLocker_KeysExpire(t *testing.T) {
	l, mr := setupRedisLocker(t)

	_, err := l.Lock(context.Background(), "identity:phone:9")
	require.NoError(t, err)
	assert.True(t, mr.Exists("identity:phone:9"))
	assert.Equal(t, 5*time.Second, mr.TTL("identity:phone:9"))
}

func TestNewRedisLocker_BadURL(t *testing.T) {
	_, err := NewRedisLocker(RedisOptions{URL: "://bad"})
	assert.Error(t, err)
}
