// Package memory implements repository.Cache as an in-process, size-bounded
// LRU with per-entry TTL, used as the object database's hot-object cache
// when no Redis deployment is configured (spec §4.5: "LRU cache, default
// 512MB").
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/mediavault/mediavault-core/internal/repository"
)

// DefaultMaxBytes is the cache's default capacity.
const DefaultMaxBytes = 512 << 20

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// Cache is a size-bounded, TTL-aware LRU cache. Entries are evicted in
// least-recently-used order once MaxBytes is exceeded, and lazily on
// access once their TTL has passed; a background sweep also runs to
// reclaim expired entries that are never looked up again.
type Cache struct {
	mu       sync.Mutex
	ll       *list.List
	items    map[string]*list.Element
	curBytes int64
	maxBytes int64

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewCache returns a Cache with DefaultMaxBytes capacity and starts its
// background expiry sweep.
func NewCache() *Cache {
	return NewCacheWithCapacity(DefaultMaxBytes)
}

// NewCacheWithCapacity returns a Cache bounded at maxBytes.
func NewCacheWithCapacity(maxBytes int64) *Cache {
	c := &Cache{
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		maxBytes: maxBytes,
		stopCh:   make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return nil, repository.ErrCacheMiss
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.removeElement(el)
		return nil, repository.ErrCacheMiss
	}
	c.ll.MoveToFront(el)

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		old := el.Value.(*entry)
		c.curBytes -= int64(len(old.value))
		old.value = stored
		old.expiresAt = expiresAt
		c.curBytes += int64(len(stored))
		c.ll.MoveToFront(el)
	} else {
		el := c.ll.PushFront(&entry{key: key, value: stored, expiresAt: expiresAt})
		c.items[key] = el
		c.curBytes += int64(len(stored))
	}

	for c.curBytes > c.maxBytes && c.ll.Len() > 0 {
		c.removeElement(c.ll.Back())
	}
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	return nil
}

func (c *Cache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return false, nil
	}
	e := el.Value.(*entry)
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		c.removeElement(el)
		return false, nil
	}
	return true, nil
}

// Stop halts the background expiry sweep. Safe to call more than once.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) removeElement(el *list.Element) {
	e := el.Value.(*entry)
	c.ll.Remove(el)
	delete(c.items, e.key)
	c.curBytes -= int64(len(e.value))
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweepExpired()
		}
	}
}

func (c *Cache) sweepExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		e := el.Value.(*entry)
		if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
			c.removeElement(el)
		}
		el = prev
	}
}

var _ repository.Cache = (*Cache)(nil)
