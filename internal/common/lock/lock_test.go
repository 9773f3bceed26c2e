package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func setupRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// ==========================
// RedisLocker
// ==========================

func TestRedisLocker_AcquireAndRelease(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "tick", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, mr.Exists(DefaultPrefix+"tick"))

	_, ok, err = locker.TryLock(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire a held lease")

	release()
	assert.False(t, mr.Exists(DefaultPrefix+"tick"))

	release2, ok, err := locker.TryLock(ctx, "tick", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release2()
}

func TestRedisLocker_LeaseExpires(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	_, ok, err := locker.TryLock(ctx, "dispatch:aftercare:a-1", 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(11 * time.Second)

	_, ok, err = locker.TryLock(ctx, "dispatch:aftercare:a-1", 10*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLocker_StaleReleaseKeepsNewHolder(t *testing.T) {
	mr, client := setupRedis(t)
	locker := NewRedisLocker(client)
	ctx := context.Background()

	staleRelease, ok, err := locker.TryLock(ctx, "k", 5*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(6 * time.Second)

	_, ok, err = locker.TryLock(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	staleRelease()
	assert.True(t, mr.Exists(DefaultPrefix+"k"), "expired holder must not delete the new lease")
}

func TestRedisLocker_InvalidTTL(t *testing.T) {
	_, client := setupRedis(t)
	locker := NewRedisLocker(client)

	_, ok, err := locker.TryLock(context.Background(), "k", 0)
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestRedisLocker_RedisError(t *testing.T) {
	client, mock := redismock.NewClientMock()
	locker := NewRedisLocker(client)
	locker.newToken = func() string { return "token-1" }

	mock.ExpectSetNX(DefaultPrefix+"tick", "token-1", 30*time.Second).
		SetErr(errors.New("connection refused"))

	release, ok, err := locker.TryLock(context.Background(), "tick", 30*time.Second)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.False(t, ok)
	assert.Nil(t, release)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// LocalLocker
// ==========================

func TestLocalLocker_ExclusiveUntilReleased(t *testing.T) {
	locker := NewLocalLocker()
	ctx := context.Background()

	release, ok, err := locker.TryLock(ctx, "a", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, _ = locker.TryLock(ctx, "a", time.Second)
	assert.False(t, ok)

	_, ok, _ = locker.TryLock(ctx, "b", time.Second)
	assert.True(t, ok, "different keys are independent")

	release()
	release() // idempotent

	_, ok, _ = locker.TryLock(ctx, "a", time.Second)
	assert.True(t, ok)
}

func TestLocalLocker_ConcurrentSingleWinner(t *testing.T) {
	locker := NewLocalLocker()
	var winners int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, _ := locker.TryLock(context.Background(), "same", time.Second); ok {
				atomic.AddInt32(&winners, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), winners)
}
