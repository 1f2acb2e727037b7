package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultTTL keeps a crashed holder's lease from outliving more than a few
// poll intervals.
const DefaultTTL = 30 * time.Second

// RedisLockManager implements DistributedLockManager with a Redis key lease:
// SET NX with a per-instance token, compare-and-delete release via Lua.
type RedisLockManager struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLockManager(client *redis.Client, key string, ttl time.Duration) *RedisLockManager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisLockManager{
		client: client,
		key:    key,
		token:  uuid.New().String(),
		ttl:    ttl,
	}
}

func (l *RedisLockManager) TryAcquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return ok, nil
}

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

func (l *RedisLockManager) Release(ctx context.Context) error {
	result, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

var extendScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

func (l *RedisLockManager) Extend(ctx context.Context, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = l.ttl
	}
	result, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if result == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *RedisLockManager) IsHeld(ctx context.Context) (bool, error) {
	val, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check lock: %w", err)
	}
	return val == l.token, nil
}

// Token returns the per-instance lease token.
func (l *RedisLockManager) Token() string {
	return l.token
}
