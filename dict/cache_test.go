package dict

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryCache(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()
	defer c.Close()

	if _, hit, err := c.Get(ctx, "dict:en:a"); hit || err != nil {
		t.Fatalf("expected miss, got hit=%v err=%v", hit, err)
	}

	if err := c.Set(ctx, "dict:en:a", []byte("1"), 0); err != nil {
		t.Fatalf("Set error: %v", err)
	}
	data, hit, err := c.Get(ctx, "dict:en:a")
	if err != nil || !hit || string(data) != "1" {
		t.Errorf("expected hit '1', got %q hit=%v err=%v", data, hit, err)
	}

	if err := c.Delete(ctx, "dict:en:a"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
	if _, hit, _ := c.Get(ctx, "dict:en:a"); hit {
		t.Error("expected miss after Delete")
	}
	if err := c.Delete(ctx, "missing"); err != nil {
		t.Errorf("Delete of missing key should not fail, got %v", err)
	}
}

func TestMemoryCache_Expiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	_ = c.Set(ctx, "k", []byte("v"), time.Nanosecond)
	time.Sleep(time.Millisecond)

	if _, hit, _ := c.Get(ctx, "k"); hit {
		t.Error("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Errorf("expected expired entry to be evicted, got %d", c.Len())
	}
}

func TestMemoryCache_Clear(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	for _, k := range []string{"dict:en:a", "dict:en:b", "dict:zh-CN:a", "other"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	if err := c.Clear(ctx, "dict:en:*"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	if c.Len() != 2 {
		t.Errorf("expected 2 entries left, got %d", c.Len())
	}
	if _, hit, _ := c.Get(ctx, "dict:zh-CN:a"); !hit {
		t.Error("expected other locale to survive")
	}
}

func TestMemoryCache_ClearPattern(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCache()

	for _, k := range []string{"dict:en:a", "dict:zh-CN:a", "dict:zh-CN:ab", "dict:en:b"} {
		_ = c.Set(ctx, k, []byte(k), 0)
	}
	if err := c.Clear(ctx, "dict:*:a"); err != nil {
		t.Fatalf("Clear error: %v", err)
	}

	for k, want := range map[string]bool{"dict:en:a": false, "dict:zh-CN:a": false, "dict:zh-CN:ab": true, "dict:en:b": true} {
		if _, hit, _ := c.Get(ctx, k); hit != want {
			t.Errorf("expected %s hit=%v, got %v", k, want, hit)
		}
	}

	if err := c.Clear(ctx, "dict:["); err == nil {
		t.Error("expected error for malformed pattern")
	}
}

func TestMemoryCache_ExpiredGetKeepsFreshSet(t *testing.T) {
	ctx := context.Background()

	for range 100 {
		c := NewMemoryCache()
		_ = c.Set(ctx, "k", []byte("old"), time.Nanosecond)
		time.Sleep(time.Microsecond)

		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, _ = c.Get(ctx, "k")
			}()
		}
		_ = c.Set(ctx, "k", []byte("new"), 0)
		wg.Wait()

		data, hit, _ := c.Get(ctx, "k")
		if !hit || string(data) != "new" {
			t.Fatalf("expected fresh entry to survive concurrent expiry, got %q hit=%v", data, hit)
		}
	}
}

func TestNullCache(t *testing.T) {
	ctx := context.Background()
	var c Cache = NullCache{}

	_ = c.Set(ctx, "k", []byte("v"), time.Hour)
	if data, hit, err := c.Get(ctx, "k"); hit || data != nil || err != nil {
		t.Errorf("expected NullCache to never hit, got %q hit=%v err=%v", data, hit, err)
	}
	if err := c.Clear(ctx, "*"); err != nil {
		t.Errorf("Clear error: %v", err)
	}
}
