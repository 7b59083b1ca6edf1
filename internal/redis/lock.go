package redisclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/hackgods/jewelry-appointment-bot/pkg/logging"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker is used by the booking service to guard the check-and-insert of a
// single (date, slot) pair.
type Locker interface {
	WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// SlotKey builds the lock key for one slot on one day.
func SlotKey(date string, slotIndex int) string {
	return fmt.Sprintf("lock:slot:%s:%d", date, slotIndex)
}

type redisSlotLocker struct {
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

// NewRedisSlotLocker creates a locker that uses a per slot Redis key.
// When Redis cannot be reached the critical section runs unlocked and the
// storage unique constraint is the only guard.
func NewRedisSlotLocker(client *redis.Client, ttl time.Duration, logger *logging.Logger) Locker {
	if logger == nil {
		logger = logging.Default()
	}
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		logger: logger.With("component", "slot_lock"),
	}
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		l.logger.Warn("redis unavailable, running without slot lock", "key", key, "err", err)
		return l.run(ctx, fn)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		if err := l.release(context.WithoutCancel(ctx), key, token); err != nil {
			l.logger.Warn("slot lock release failed, it expires with its ttl", "key", key, "err", err)
		}
	}()

	return l.run(ctx, fn)
}

func (l *redisSlotLocker) run(ctx context.Context, fn func(ctx context.Context) error) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

// localSlotLocker gives the same fail-fast semantics inside one process,
// for deployments running without Redis.
type localSlotLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalSlotLocker() Locker {
	return &localSlotLocker{held: make(map[string]struct{})}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if _, busy := l.held[key]; busy {
		l.mu.Unlock()
		return ErrLockNotAcquired
	}
	l.held[key] = struct{}{}
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}()

	return fn(ctx)
}
