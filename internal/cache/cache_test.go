package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(10)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	if err := c.Set(ctx, "a", []byte("1"), time.Minute); err != nil {
		t.Fatal(err)
	}
	v, err := c.Get(ctx, "a")
	if err != nil || string(v) != "1" {
		t.Fatalf("expected hit, got %q %v", v, err)
	}

	now = now.Add(time.Minute)
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss after expiry, got %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expired entry should be evicted, len %d", c.Len())
	}
}

func TestMemoryEvictsLeastRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(2)

	c.Set(ctx, "a", []byte("1"), time.Hour)
	c.Set(ctx, "b", []byte("2"), time.Hour)
	c.Get(ctx, "a")
	c.Set(ctx, "c", []byte("3"), time.Hour)

	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
	if _, err := c.Get(ctx, "b"); !errors.Is(err, ErrMiss) {
		t.Error("expected b to be evicted")
	}
	for _, k := range []string{"a", "c"} {
		if _, err := c.Get(ctx, k); err != nil {
			t.Errorf("expected %s to remain: %v", k, err)
		}
	}

	c.Delete(ctx, "a")
	if _, err := c.Get(ctx, "a"); !errors.Is(err, ErrMiss) {
		t.Error("expected a to be deleted")
	}
}

func TestRedis(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	c, err := NewRedis(ctx, RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedis: %v", err)
	}
	defer c.Close()

	if _, err := c.Get(ctx, "user:1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss, got %v", err)
	}
	if err := c.Set(ctx, "user:1", []byte(`{"id":1}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if !mr.Exists("barcode:user:1") {
		t.Error("expected prefixed key in redis")
	}
	v, err := c.Get(ctx, "user:1")
	if err != nil || string(v) != `{"id":1}` {
		t.Errorf("unexpected value %q %v", v, err)
	}

	mr.FastForward(2 * time.Minute)
	if _, err := c.Get(ctx, "user:1"); !errors.Is(err, ErrMiss) {
		t.Errorf("expected miss after ttl, got %v", err)
	}

	c.Set(ctx, "user:2", []byte("x"), time.Minute)
	if err := c.Delete(ctx, "user:2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := c.Get(ctx, "user:2"); !errors.Is(err, ErrMiss) {
		t.Error("expected miss after delete")
	}
}
