package lock

import (
	"context"
	"time"
)

// NoOpLocker grants every lock unconditionally. It exists for single-writer
// deployments and tests that want the Locker seam without the bookkeeping —
// multi-writer concurrent mutation is explicitly out of scope, so a
// deployment that never shares a repository can skip real locking entirely.
type NoOpLocker struct{}

// NewNoOpLocker returns a Locker that never contends.
func NewNoOpLocker() *NoOpLocker { return &NoOpLocker{} }

func (NoOpLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (n NoOpLocker) AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error) {
	return true, nil
}

func (NoOpLocker) Release(ctx context.Context, key string) (bool, error) { return true, nil }

func (NoOpLocker) Extend(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return true, nil
}

func (NoOpLocker) IsHeld(ctx context.Context, key string) (bool, error) { return false, nil }

var _ Locker = (*NoOpLocker)(nil)
