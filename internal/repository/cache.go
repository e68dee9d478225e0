// Package repository holds small cross-cutting interfaces shared by
// multiple storage backends, kept separate from their implementations so
// internal/odb and internal/cache can depend on the contract without
// pulling in Redis or Postgres.
package repository

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by Cache.Get when key is absent or expired.
var ErrCacheMiss = errors.New("repository: cache miss")

// Cache is a byte-oriented cache used for the object database's hot-object
// layer (spec §4.5's LRU cache in front of the blob backend).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}
