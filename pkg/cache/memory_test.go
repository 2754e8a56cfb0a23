package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestKey(t *testing.T) {
	a := Key("digest", []float64{5.1, 3.5, 1.4, 0.2})
	b := Key("digest", []float64{5.1, 3.5, 1.4, 0.2})
	if a != b {
		t.Errorf("equal vectors produced different keys: %q vs %q", a, b)
	}
	if a != "digest:5.1,3.5,1.4,0.2" {
		t.Errorf("Key() = %q", a)
	}
	if Key("other", []float64{5.1, 3.5, 1.4, 0.2}) == a {
		t.Error("different model ids must not share keys")
	}
	if Key("digest", []float64{5.1, 3.5, 1.4, 0.20000000000000001}) != a {
		t.Error("identical float64 values must share keys")
	}
	if Key("digest", []float64{5.1, 3.5, 1.4, 0.21}) == a {
		t.Error("different vectors must not share keys")
	}
}

func TestNewMemoryCache_Invalid(t *testing.T) {
	if _, err := NewMemoryCache(0, 0, 0); err == nil {
		t.Error("expected error for maxEntries=0, got nil")
	}
	if _, err := NewMemoryCache(10, -time.Second, 0); err == nil {
		t.Error("expected error for negative ttl, got nil")
	}
}

func TestMemoryCache_PutGet(t *testing.T) {
	c, err := NewMemoryCache(10, 0, 0)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}
	defer c.Stop()

	ctx := context.Background()

	if _, found, err := c.Get(ctx, "missing"); err != nil || found {
		t.Errorf("Get(missing) = found=%v err=%v, want miss", found, err)
	}

	value := []byte(`{"prediction":0}`)
	if err := c.Put(ctx, "k", value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	value[0] = 'X'

	got, found, err := c.Get(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Get(k) = found=%v err=%v, want hit", found, err)
	}
	if string(got) != `{"prediction":0}` {
		t.Errorf("stored value was aliased: %q", got)
	}

	if err := c.Put(ctx, "", value); err == nil {
		t.Error("expected error for empty key, got nil")
	}
}

func TestMemoryCache_EvictsOldest(t *testing.T) {
	c, err := NewMemoryCache(2, 0, 0)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}

	base := time.Now()
	tick := 0
	c.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	ctx := context.Background()
	c.Put(ctx, "a", []byte("1"))
	c.Put(ctx, "b", []byte("2"))
	c.Put(ctx, "c", []byte("3"))

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	if _, found, _ := c.Get(ctx, "a"); found {
		t.Error("oldest entry should have been evicted")
	}
	if _, found, _ := c.Get(ctx, "c"); !found {
		t.Error("newest entry should be present")
	}

	// Overwriting an existing key never evicts.
	c.Put(ctx, "c", []byte("4"))
	if _, found, _ := c.Get(ctx, "b"); !found {
		t.Error("overwrite should not evict other entries")
	}
}

func TestMemoryCache_EvictionOrder(t *testing.T) {
	c, err := NewMemoryCache(3, 0, 0)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}

	ctx := context.Background()
	for _, k := range []string{"a", "b", "c"} {
		c.Put(ctx, k, []byte(k))
	}

	// Rewriting "a" makes "b" the oldest entry.
	c.Put(ctx, "a", []byte("a2"))
	c.Put(ctx, "d", []byte("d"))
	c.Put(ctx, "e", []byte("e"))

	for key, want := range map[string]bool{"a": true, "b": false, "c": false, "d": true, "e": true} {
		if _, found, _ := c.Get(ctx, key); found != want {
			t.Errorf("Get(%q) found = %v, want %v", key, found, want)
		}
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
	if got, _, _ := c.Get(ctx, "a"); string(got) != "a2" {
		t.Errorf("Get(a) = %q, want a2", got)
	}
}

func TestMemoryCache_CleanupKeepsFresh(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}
	defer c.Stop()

	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Put(ctx, "old", []byte("1"))
	now = now.Add(45 * time.Second)
	c.Put(ctx, "fresh", []byte("2"))
	now = now.Add(30 * time.Second)

	c.cleanup()
	if c.Len() != 1 {
		t.Fatalf("Len() after cleanup = %d, want 1", c.Len())
	}
	if _, found, _ := c.Get(ctx, "fresh"); !found {
		t.Error("unexpired entry was removed")
	}

	// A full cache still evicts correctly after cleanup shortened the list.
	for i := 0; i < 10; i++ {
		c.Put(ctx, fmt.Sprintf("k%d", i), []byte("v"))
	}
	if c.Len() != 10 {
		t.Errorf("Len() = %d, want 10", c.Len())
	}
	if _, found, _ := c.Get(ctx, "fresh"); found {
		t.Error("oldest entry should have been evicted")
	}
}

func TestMemoryCache_TTL(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}
	defer c.Stop()

	now := time.Now()
	c.now = func() time.Time { return now }

	ctx := context.Background()
	c.Put(ctx, "k", []byte("v"))

	now = now.Add(2 * time.Minute)
	if _, found, _ := c.Get(ctx, "k"); found {
		t.Error("expired entry should not be returned")
	}

	c.cleanup()
	if c.Len() != 0 {
		t.Errorf("Len() after cleanup = %d, want 0", c.Len())
	}
}

func TestMemoryCache_StopIdempotent(t *testing.T) {
	c, err := NewMemoryCache(10, time.Minute, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewMemoryCache failed: %v", err)
	}
	c.Stop()
	c.Stop()

	noTTL, _ := NewMemoryCache(10, 0, 0)
	noTTL.Stop()
}

func TestMemoryCache_ContextCanceled(t *testing.T) {
	c, _ := NewMemoryCache(10, 0, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.Put(ctx, "k", []byte("v")); err == nil {
		t.Error("expected error for canceled context, got nil")
	}
	if _, _, err := c.Get(ctx, "k"); err == nil {
		t.Error("expected error for canceled context, got nil")
	}
}

func TestMemoryCache_Concurrent(t *testing.T) {
	c, _ := NewMemoryCache(50, 0, 0)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k%d", (i+j)%80)
				c.Put(ctx, key, []byte("v"))
				c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()

	if c.Len() > 50 {
		t.Errorf("Len() = %d exceeds maxEntries", c.Len())
	}
}
