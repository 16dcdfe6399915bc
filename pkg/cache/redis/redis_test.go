package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"banca-client/pkg/cache"
)

func setupTestRedis(t *testing.T) *RedisCache {
	t.Helper()

	config := DefaultRedisCacheConfig()
	config.Name = "TestRedis"
	config.KeyPrefix = "test:banca:"
	config.DialTimeout = 2 * time.Second
	if addr := os.Getenv("BANCA_TEST_REDIS_ADDR"); addr != "" {
		config.Addr = addr
	}

	r, err := NewRedisCache(config)
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	ctx := context.Background()
	if _, err := r.DeletePrefix(ctx, ""); err != nil {
		r.Close()
		t.Skipf("Redis not usable: %v", err)
	}

	t.Cleanup(func() {
		r.DeletePrefix(context.Background(), "")
		r.Close()
	})
	return r
}

func TestNewRedisCache_NoAddress(t *testing.T) {
	_, err := NewRedisCache(RedisCacheConfig{Name: "empty"})
	if err == nil {
		t.Error("Expected error when no address is configured")
	}
}

func TestRedisCache_SetGet(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	payload := []byte(`{"accounts":[]}`)
	if err := r.Set(ctx, "accounts:c1", payload, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := r.Get(ctx, "accounts:c1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(got) != string(payload) {
		t.Errorf("Expected %s, got %s", payload, got)
	}

	ttl, err := r.TTL(ctx, "accounts:c1")
	if err != nil {
		t.Fatalf("TTL failed: %v", err)
	}
	if ttl <= 0 || ttl > time.Minute {
		t.Errorf("Expected TTL within (0, 1m], got %v", ttl)
	}
}

func TestRedisCache_Miss(t *testing.T) {
	r := setupTestRedis(t)

	_, err := r.Get(context.Background(), "missing")
	if !cache.IsNotFound(err) {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestRedisCache_DeleteAndPrefix(t *testing.T) {
	r := setupTestRedis(t)
	ctx := context.Background()

	r.Set(ctx, "c1:a", []byte("1"), time.Minute)
	r.Set(ctx, "c1:b", []byte("2"), time.Minute)
	r.Set(ctx, "c2:a", []byte("3"), time.Minute)

	if err := r.Delete(ctx, "c2:a"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := r.Get(ctx, "c2:a"); !cache.IsNotFound(err) {
		t.Errorf("Expected c2:a to be deleted, got %v", err)
	}

	removed, err := r.DeletePrefix(ctx, "c1:")
	if err != nil {
		t.Fatalf("DeletePrefix failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 keys removed, got %d", removed)
	}
}
