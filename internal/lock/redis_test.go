package lock

import (
	"context"
	"testing"
	"time"

	"git.mci.dev/mse/sre/phoenix/golang/outreach/internal/config"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()

	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return NewRedisLocker(client, &config.Config{LockTTL: 60}), server
}

func TestRedisLockerExcludesSecondHolder(t *testing.T) {
	locker, server := newRedisLocker(t)
	key := ConversationKey("CA1")

	lease, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, server.Exists(key))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(ctx, key)
	require.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lease.Release(context.Background()))
	assert.False(t, server.Exists(key))
}

func TestRedisLockerWaitsForRelease(t *testing.T) {
	locker, _ := newRedisLocker(t)
	key := ConversationKey("CA2")

	lease, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)

		_ = lease.Release(context.Background())
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	next, err := locker.Lock(ctx, key)
	require.NoError(t, err)
	require.NoError(t, next.Release(context.Background()))
}

func TestRedisLeaseDoesNotDeleteNewerHolder(t *testing.T) {
	locker, server := newRedisLocker(t)
	key := ConversationKey("CA3")

	stale, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	server.FastForward(61 * time.Second)

	fresh, err := locker.Lock(context.Background(), key)
	require.NoError(t, err)

	require.ErrorIs(t, stale.Release(context.Background()), ErrLockNotHeld)
	assert.True(t, server.Exists(key))

	require.NoError(t, fresh.Release(context.Background()))
}
