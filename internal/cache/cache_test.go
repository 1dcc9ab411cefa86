package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	c := NewNullCache()
	defer c.Close()

	if err := c.Set(ctx, "key", []byte("value"), time.Hour); err != nil {
		t.Errorf("Set error: %v", err)
	}

	data, hit, err := c.Get(ctx, "key")
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if hit || data != nil {
		t.Error("NullCache should never hit")
	}

	if err := c.Delete(ctx, "key"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestKey(t *testing.T) {
	type req struct {
		URL   string
		Width int
	}

	k1 := Key("capture", req{"https://example.com", 800}, "png")
	k2 := Key("capture", req{"https://example.com", 800}, "png")
	if k1 != k2 {
		t.Error("Key should be deterministic")
	}

	if k3 := Key("capture", req{"https://example.com", 801}, "png"); k1 == k3 {
		t.Error("different parts should produce different keys")
	}
	if k4 := Key("capture", req{"https://example.com", 800}, "jpeg"); k1 == k4 {
		t.Error("different format should produce a different key")
	}

	if !strings.HasPrefix(k1, "capture:") {
		t.Errorf("Key = %q, want capture: prefix", k1)
	}
	if got := len(strings.TrimPrefix(k1, "capture:")); got != 64 {
		t.Errorf("hash length = %d, want 64", got)
	}
}

func TestNewRedisCache_RequiresAddr(t *testing.T) {
	if _, err := NewRedisCache(context.Background(), RedisConfig{}); err == nil {
		t.Error("NewRedisCache() without address should fail")
	}
}
