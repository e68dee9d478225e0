package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	expiresAt time.Time
}

// MemoryLocker is an in-process Locker, for single-node deployments and
// tests. It is not safe across multiple processes.
type MemoryLocker struct {
	mu      sync.Mutex
	held    map[string]memoryEntry
}

// NewMemoryLocker returns an empty MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{held: make(map[string]memoryEntry)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return false, nil
	}
	l.held[key] = memoryEntry{expiresAt: now.Add(ttl)}
	return true, nil
}

func (l *MemoryLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
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

func (l *MemoryLocker) Release(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	delete(l.held, key)
	return true, nil
}

func (l *MemoryLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	entry.expiresAt = time.Now().Add(ttl)
	l.held[key] = entry
	return true, nil
}

func (l *MemoryLocker) IsHeld(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[key]
	if !ok {
		return false, nil
	}
	return time.Now().Before(entry.expiresAt), nil
}

var _ Locker = (*MemoryLocker)(nil)
