package redisclient

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestWithLock_RunsAndReleases(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)

	ran := false
	err := locker.WithLock(context.Background(), "appointment:1", func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists("lock:appointment:1"))
		return nil
	})

	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists("lock:appointment:1"))
}

func TestWithLock_HeldByOther(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)

	require.NoError(t, mr.Set("lock:appointment:1", "someone-else"))

	err := locker.WithLock(context.Background(), "appointment:1", func(ctx context.Context) error {
		t.Fatal("fn must not run while the lock is held")
		return nil
	})

	assert.ErrorIs(t, err, ErrLockNotAcquired)
	got, _ := mr.Get("lock:appointment:1")
	assert.Equal(t, "someone-else", got)
}

func TestWithLock_PropagatesError(t *testing.T) {
	mr, client := newTestClient(t)
	locker := NewRedisLocker(client, 5*time.Second)
	boom := errors.New("boom")

	err := locker.WithLock(context.Background(), "k", func(ctx context.Context) error {
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists("lock:k"))
}

func TestRateLimiter_Window(t *testing.T) {
	mr, client := newTestClient(t)
	limiter := NewRateLimiter(client)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, remaining, err := limiter.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 2-i, remaining)
	}

	ok, remaining, err := limiter.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)

	mr.FastForward(time.Minute + time.Second)

	ok, _, err = limiter.Allow(ctx, "ip:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter_ArmsExpiryWithFirstHit(t *testing.T) {
	mr, client := newTestClient(t)
	limiter := NewRateLimiter(client)

	_, _, err := limiter.Allow(context.Background(), "otp:abc", 5, 15*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, mr.TTL("ratelimit:otp:abc"))
}

func TestRateLimiter_CounterWithoutExpiryIsRearmed(t *testing.T) {
	mr, client := newTestClient(t)
	limiter := NewRateLimiter(client)

	// A counter left behind with no TTL, as an interrupted INCR/EXPIRE pair would.
	require.NoError(t, mr.Set("ratelimit:ip:5.6.7.8", "9"))

	ok, remaining, err := limiter.Allow(context.Background(), "ip:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, time.Minute, mr.TTL("ratelimit:ip:5.6.7.8"))

	mr.FastForward(time.Minute + time.Second)

	ok, _, err = limiter.Allow(context.Background(), "ip:5.6.7.8", 3, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}
