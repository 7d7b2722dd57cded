package cache

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestCache(t *testing.T, ttl time.Duration) *InMemoryCache {
	t.Helper()
	c := NewInMemoryCache(ttl)
	t.Cleanup(c.Stop)
	return c
}

func TestInMemoryCache_SetAndGet(t *testing.T) {
	cache := newTestCache(t, time.Second)
	ctx := context.Background()

	if err := cache.Set(ctx, "plan:foo", "bar"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	got, err := cache.Get(ctx, "plan:foo")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "bar" {
		t.Errorf("expected bar, got %v", got)
	}
}

func TestInMemoryCache_Expiration(t *testing.T) {
	cache := newTestCache(t, 50*time.Millisecond)
	ctx := context.Background()

	if err := cache.Set(ctx, "plan:baz", "qux"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if _, err := cache.Get(ctx, "plan:baz"); err == nil {
		t.Error("expected error for expired item, got nil")
	}
	if _, err := cache.Get(ctx, "plan:baz"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expired entry should be dropped on first read, got %v", err)
	}
}

func TestInMemoryCache_SetWithTTLOverridesDefault(t *testing.T) {
	cache := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := cache.SetWithTTL(ctx, "plan:short", "v", 30*time.Millisecond); err != nil {
		t.Fatalf("SetWithTTL failed: %v", err)
	}

	time.Sleep(40 * time.Millisecond)
	if _, err := cache.Get(ctx, "plan:short"); err == nil {
		t.Error("entry with explicit short TTL should have expired")
	}
}

func TestInMemoryCache_Delete(t *testing.T) {
	cache := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "plan:gone", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := cache.Delete(ctx, "plan:gone"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := cache.Get(ctx, "plan:gone"); err == nil {
		t.Error("expected miss after Delete")
	}
	if err := cache.Delete(ctx, "plan:absent"); err != nil {
		t.Errorf("deleting an absent key should not error: %v", err)
	}
}

func TestInMemoryCache_Stats(t *testing.T) {
	cache := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.Set(ctx, "plan:a", "v"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := cache.Get(ctx, "plan:a"); err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	cache.Get(ctx, "plan:missing")

	stats := cache.Stats()
	if stats.Hits != 1 {
		t.Errorf("expected 1 hit, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("expected 1 miss, got %d", stats.Misses)
	}
	if stats.Entries != 1 {
		t.Errorf("expected 1 entry, got %d", stats.Entries)
	}
}

func TestInMemoryCache_CancelledContext(t *testing.T) {
	cache := newTestCache(t, time.Minute)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.Set(ctx, "plan:a", "v"); err == nil {
		t.Error("Set with cancelled context should fail")
	}
	if _, err := cache.Get(ctx, "plan:a"); err == nil {
		t.Error("Get with cancelled context should fail")
	}
	if err := cache.Delete(ctx, "plan:a"); err == nil {
		t.Error("Delete with cancelled context should fail")
	}
}

func TestInMemoryCache_Concurrency(t *testing.T) {
	cache := newTestCache(t, time.Second)
	ctx := context.Background()
	setErr := make(chan error, 1)
	getErr := make(chan error, 1)

	go func() {
		setErr <- cache.Set(ctx, "plan:concurrent", "val")
	}()
	go func() {
		_, err := cache.Get(ctx, "plan:concurrent")
		getErr <- err
	}()

	if err := <-setErr; err != nil {
		t.Errorf("Set failed: %v", err)
	}
	if err := <-getErr; err != nil && !strings.Contains(err.Error(), "not found") {
		t.Errorf("unexpected Get error: %v", err)
	}
}

func TestFilePersistentCache_SurvivesReload(t *testing.T) {
	path := t.TempDir() + "/plans.json"
	ctx := context.Background()

	first := NewFilePersistentCache(time.Minute, path, &StdLogger{})
	if err := first.Set(ctx, "plan:abc", "cached-plan"); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	second := NewFilePersistentCache(time.Minute, path, &StdLogger{})
	got, err := second.Get(ctx, "plan:abc")
	if err != nil {
		t.Fatalf("Get after reload failed: %v", err)
	}
	if got != "cached-plan" {
		t.Errorf("expected cached-plan, got %v", got)
	}
}
