package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	redisKeyPrefix    = "mediavault:lock:"
	defaultRedisTTL   = 30 * time.Second
	unlockScript      = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("DEL", KEYS[1]) else return 0 end`
	extendScript      = `if redis.call("GET", KEYS[1]) == ARGV[1] then return redis.call("PEXPIRE", KEYS[1], ARGV[2]) else return 0 end`
)

// RedisLocker implements Locker across multiple processes using Redis
// SETNX for acquisition and a token-checked Lua script for release/extend,
// so a holder only ever unlocks or extends a lock it actually owns.
type RedisLocker struct {
	client *redis.Client
	logger zerolog.Logger
	tokens tokenStore
}

// tokenStore remembers the token this process used to acquire each key, so
// Release/Extend/AcquireWithRetry callers don't have to thread it through
// manually — mirroring the ergonomics of the in-memory Locker.
type tokenStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newTokenStore() tokenStore { return tokenStore{m: make(map[string]string)} }

func (t *tokenStore) set(key, token string) {
	t.mu.Lock()
	t.m[key] = token
	t.mu.Unlock()
}

func (t *tokenStore) get(key string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[key]
	return v, ok
}

func (t *tokenStore) delete(key string) {
	t.mu.Lock()
	delete(t.m, key)
	t.mu.Unlock()
}

// NewRedisLocker builds a RedisLocker over an existing client.
func NewRedisLocker(client *redis.Client, logger zerolog.Logger) *RedisLocker {
	return &RedisLocker{client: client, logger: logger, tokens: newTokenStore()}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = defaultRedisTTL
	}
	lockKey := redisKeyPrefix + key
	token := uuid.New().String()

	ok, err := l.client.SetNX(ctx, lockKey, token, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("lock: acquire %q: %w", key, err)
	}
	if !ok {
		return false, nil
	}
	l.tokens.set(key, token)
	l.logger.Debug().Str("key", key).Dur("ttl", ttl).Msg("lock acquired")
	return true, nil
}

func (l *RedisLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	for attempt := 0; ; attempt++ {
		acquired, err := l.Acquire(ctx, key, ttl)
		if err != nil || acquired {
			return acquired, err
		}
		if attempt >= maxRetries {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

func (l *RedisLocker) Release(ctx context.Context, key string) (bool, error) {
	token, ok := l.tokens.get(key)
	if !ok {
		return false, nil
	}
	lockKey := redisKeyPrefix + key
	result, err := l.client.Eval(ctx, unlockScript, []string{lockKey}, token).Int64()
	if err != nil {
		return false, fmt.Errorf("lock: release %q: %w", key, err)
	}
	l.tokens.delete(key)
	return result != 0, nil
}

func (l *RedisLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	token, ok := l.tokens.get(key)
	if !ok {
		return false, nil
	}
	lockKey := redisKeyPrefix + key
	result, err := l.client.Eval(ctx, extendScript, []string{lockKey}, token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, fmt.Errorf("lock: extend %q: %w", key, err)
	}
	return result != 0, nil
}

func (l *RedisLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	lockKey := redisKeyPrefix + key
	n, err := l.client.Exists(ctx, lockKey).Result()
	if err != nil {
		return false, fmt.Errorf("lock: check %q: %w", key, err)
	}
	return n > 0, nil
}

var _ Locker = (*RedisLocker)(nil)
