package cache

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"
)

type memoryEntry struct {
	key      string
	value    []byte
	storedAt time.Time
}

// MemoryCache is an in-process cache bounded by entry count.
// It is safe for concurrent use by multiple goroutines.
//
// If a TTL is configured, a background goroutine removes expired entries and
// Stop must be called to release it. When the cache is full, Put evicts the
// oldest entry.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*list.Element
	// order holds *memoryEntry values, oldest at the front.
	order      *list.List
	maxEntries int
	ttl        time.Duration

	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopOnce      sync.Once

	now func() time.Time
}

// NewMemoryCache creates a cache holding at most maxEntries values.
// A ttl of zero keeps entries until they are evicted.
func NewMemoryCache(maxEntries int, ttl, cleanupInterval time.Duration) (*MemoryCache, error) {
	if maxEntries <= 0 {
		return nil, errors.New("memory cache: maxEntries must be > 0")
	}
	if ttl < 0 {
		return nil, errors.New("memory cache: ttl cannot be negative")
	}

	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		maxEntries: maxEntries,
		ttl:        ttl,
		now:        time.Now,
	}

	if ttl > 0 {
		if cleanupInterval <= 0 {
			cleanupInterval = time.Minute
		}
		c.cleanupTicker = time.NewTicker(cleanupInterval)
		c.stopCleanup = make(chan struct{})
		c.cleanupDone = make(chan struct{})
		go c.runCleanup()
	}

	return c, nil
}

// Stop shuts down the background cleanup goroutine. It is safe to call
// multiple times and on a cache without TTL.
func (c *MemoryCache) Stop() {
	if c.cleanupTicker == nil {
		return
	}

	c.stopOnce.Do(func() {
		close(c.stopCleanup)
		<-c.cleanupDone
		c.cleanupTicker.Stop()
	})
}

func (c *MemoryCache) runCleanup() {
	defer close(c.cleanupDone)

	for {
		select {
		case <-c.cleanupTicker.C:
			c.cleanup()
		case <-c.stopCleanup:
			return
		}
	}
}

func (c *MemoryCache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Entries are ordered by storedAt, so expired ones form a prefix.
	now := c.now()
	for el := c.order.Front(); el != nil; el = c.order.Front() {
		e := el.Value.(*memoryEntry)
		if !c.expired(e, now) {
			return
		}
		c.remove(el)
	}
}

func (c *MemoryCache) expired(e *memoryEntry, now time.Time) bool {
	return c.ttl > 0 && now.Sub(e.storedAt) > c.ttl
}

// Get returns a copy of the value stored under key.
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	default:
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	el, found := c.entries[key]
	if !found {
		return nil, false, nil
	}
	e := el.Value.(*memoryEntry)
	if c.expired(e, c.now()) {
		return nil, false, nil
	}

	return append([]byte(nil), e.value...), true, nil
}

// Put stores a copy of value under key.
func (c *MemoryCache) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return errors.New("cache key cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &memoryEntry{
		key:      key,
		value:    append([]byte(nil), value...),
		storedAt: c.now(),
	}

	if el, exists := c.entries[key]; exists {
		el.Value = entry
		c.order.MoveToBack(el)
		return nil
	}

	if c.order.Len() >= c.maxEntries {
		c.remove(c.order.Front())
	}
	c.entries[key] = c.order.PushBack(entry)
	return nil
}

// remove must be called with mu held.
func (c *MemoryCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.entries, el.Value.(*memoryEntry).key)
}

// Len returns the number of entries currently stored.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
