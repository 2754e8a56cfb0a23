//go:build integration

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

// setupRedisContainer starts a Redis container and returns its host:port.
func setupRedisContainer(t *testing.T) string {
	t.Helper()

	ctx := context.Background()

	redisContainer, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(redisContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}

	addr := endpoint
	if len(endpoint) > 8 && endpoint[:8] == "redis://" {
		addr = endpoint[8:]
	}
	return addr
}

func TestRedisCache_PutGet(t *testing.T) {
	addr := setupRedisContainer(t)

	c, err := NewRedisCache(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	key := Key("digest", []float64{5.1, 3.5, 1.4, 0.2})
	if _, found, err := c.Get(ctx, key); err != nil || found {
		t.Fatalf("Get before Put = found=%v err=%v, want miss", found, err)
	}

	value := []byte(`{"prediction":0,"class_name":"setosa","probabilities":[1,0,0]}`)
	if err := c.Put(ctx, key, value); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, found, err := c.Get(ctx, key)
	if err != nil || !found {
		t.Fatalf("Get after Put = found=%v err=%v, want hit", found, err)
	}
	if string(got) != string(value) {
		t.Errorf("Get() = %s, want %s", got, value)
	}
}

func TestRedisCache_TTL(t *testing.T) {
	addr := setupRedisContainer(t)

	c, err := NewRedisCache(addr, "", 0, time.Second)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	if err := c.Put(ctx, "k", []byte("v")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	time.Sleep(2 * time.Second)

	if _, found, err := c.Get(ctx, "k"); err != nil || found {
		t.Errorf("Get after TTL = found=%v err=%v, want miss", found, err)
	}
}

func TestRedisCache_CloseIdempotent(t *testing.T) {
	addr := setupRedisContainer(t)

	c, err := NewRedisCache(addr, "", 0, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("first Close failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestNewRedisCache_Invalid(t *testing.T) {
	if _, err := NewRedisCache("", "", 0, time.Minute); err == nil {
		t.Error("expected error for empty address, got nil")
	}
	if _, err := NewRedisCache("localhost:6379", "", -1, time.Minute); err == nil {
		t.Error("expected error for negative db, got nil")
	}
	if _, err := NewRedisCache("invalid:99999", "", 0, time.Minute); err == nil {
		t.Error("expected error for unreachable address, got nil")
	}
}
