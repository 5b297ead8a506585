package cache

import (
	"context"
	"testing"
	"time"
)

func TestCache_SetGet(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	c.Set(ctx, "a", 1, time.Minute)

	v, ok := c.Get(ctx, "a")
	if !ok || v != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", v, ok)
	}

	if _, ok := c.Get(ctx, "missing"); ok {
		t.Error("expected miss for unknown key")
	}
}

func TestCache_Expiry(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set(ctx, "a", 1, time.Second)
	now = now.Add(2 * time.Second)

	if _, ok := c.Get(ctx, "a"); ok {
		t.Error("expected entry to be expired")
	}

	c.deleteExpired()
	if c.Len() != 0 {
		t.Errorf("expected janitor sweep to remove entry, len=%d", c.Len())
	}
}

func TestCache_OnEvict(t *testing.T) {
	c := New[string, int](0)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }

	evicted := map[string]int{}
	c.OnEvict(func(k string, v int) { evicted[k] = v })

	c.Set(ctx, "idle", 1, time.Second)
	c.Set(ctx, "fresh", 2, time.Minute)
	c.Set(ctx, "gone", 3, time.Second)
	c.Delete(ctx, "gone")
	now = now.Add(2 * time.Second)

	c.deleteExpired()
	if len(evicted) != 1 || evicted["idle"] != 1 {
		t.Errorf("expected only idle evicted, got %v", evicted)
	}
	if _, ok := c.Get(ctx, "fresh"); !ok {
		t.Error("fresh entry should survive the sweep")
	}
}

func TestCache_SetIfAbsent(t *testing.T) {
	c := New[string, bool](0)
	defer c.Close()
	ctx := context.Background()

	if !c.SetIfAbsent(ctx, "path-1", true, time.Minute) {
		t.Fatal("first claim should succeed")
	}
	if c.SetIfAbsent(ctx, "path-1", true, time.Minute) {
		t.Error("second claim should fail")
	}
}
