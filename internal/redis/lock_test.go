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

	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestSlotKey(t *testing.T) {
	assert.Equal(t, "lock:slot:2026-10-19:6", SlotKey("2026-10-19", 6))
}

func TestRedisSlotLockerReleasesAfterRun(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second, logging.Discard())
	key := SlotKey("2026-10-19", 6)

	ran := false
	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		ran = true
		assert.True(t, mr.Exists(key))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.False(t, mr.Exists(key))
}

func TestRedisSlotLockerContention(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, 5*time.Second, logging.Discard())
	key := SlotKey("2026-10-19", 6)

	require.NoError(t, mr.Set(key, "someone-else"))

	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		t.Fatal("critical section must not run while locked")
		return nil
	})
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	// A foreign token is never released by us.
	got, err := mr.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)
}

func TestRedisSlotLockerPropagatesError(t *testing.T) {
	_, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, time.Second, logging.Discard())
	boom := errors.New("boom")

	err := locker.WithSlotLock(context.Background(), "k", func(ctx context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestLocalSlotLocker(t *testing.T) {
	locker := NewLocalSlotLocker()
	key := SlotKey("2026-10-19", 1)

	err := locker.WithSlotLock(context.Background(), key, func(ctx context.Context) error {
		inner := locker.WithSlotLock(ctx, key, func(context.Context) error { return nil })
		assert.ErrorIs(t, inner, ErrLockNotAcquired)

		other := locker.WithSlotLock(ctx, SlotKey("2026-10-19", 2), func(context.Context) error { return nil })
		assert.NoError(t, other)
		return nil
	})
	require.NoError(t, err)

	assert.NoError(t, locker.WithSlotLock(context.Background(), key, func(context.Context) error { return nil }))
}

func TestRedisSlotLockerRunsUnlockedWhenRedisIsDown(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, time.Second, logging.Discard())
	mr.Close()

	ran := false
	err := locker.WithSlotLock(context.Background(), SlotKey("2026-10-19", 6), func(ctx context.Context) error {
		ran = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
}

func TestRedisSlotLockerGivesUpOnCancelledContext(t *testing.T) {
	mr, client := setupTestRedis(t)
	locker := NewRedisSlotLocker(client, time.Second, logging.Discard())
	mr.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := locker.WithSlotLock(ctx, SlotKey("2026-10-19", 6), func(context.Context) error {
		t.Fatal("critical section must not run on a cancelled request")
		return nil
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrLockNotAcquired)
}
