// Package lock provides advisory locking for ref compare-and-set updates.
// Locks are advisory only — nothing in the object database enforces them;
// callers that skip locking just risk a CAS conflict, not data corruption.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrNotHeld names the "lock not held" condition. No Locker in this
// package returns it: Release and Extend report a key the caller does not
// hold as false with a nil error.
var ErrNotHeld = errors.New("lock: not held")

// Locker acquires and releases named advisory locks with a TTL, so a
// crashed holder's lock eventually expires instead of wedging forever.
type Locker interface {
	// Acquire tries to take key for ttl, returning false (not an error) if
	// it is already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// AcquireWithRetry retries Acquire up to maxRetries times, sleeping
	// retryDelay between attempts, returning false once retries are
	// exhausted.
	AcquireWithRetry(ctx context.Context, key string, ttl time.Duration, maxRetries int, retryDelay time.Duration) (bool, error)

	// Release frees key. Returns false if key was not held.
	Release(ctx context.Context, key string) (bool, error)

	// Extend resets key's TTL to ttl. Returns false if key was not held.
	Extend(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsHeld reports whether key is currently held by anyone.
	IsHeld(ctx context.Context, key string) (bool, error)
}
