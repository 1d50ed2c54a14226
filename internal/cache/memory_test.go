package cache

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryCacheRoundTrip(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	if _, err := c.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected ErrCacheMiss, got %v", err)
	}

	if err := c.Set(ctx, "k", []byte("value"), time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	got, err := c.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !bytes.Equal(got, []byte("value")) {
		t.Errorf("expected value, got %q", got)
	}

	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := c.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected miss after delete, got %v", err)
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "short", []byte("v"), -time.Second); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := c.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("expected expired entry to miss, got %v", err)
	}
}

func TestMemoryCacheGetOrSet(t *testing.T) {
	t.Parallel()
	c := NewMemoryCache()
	ctx := context.Background()

	calls := 0
	load := func() ([]byte, error) {
		calls++
		return []byte("computed"), nil
	}

	for i := 0; i < 3; i++ {
		got, err := c.GetOrSet(ctx, "k", time.Minute, load)
		if err != nil {
			t.Fatalf("GetOrSet failed: %v", err)
		}
		if !bytes.Equal(got, []byte("computed")) {
			t.Errorf("unexpected value %q", got)
		}
	}
	if calls != 1 {
		t.Errorf("expected a single load, got %d", calls)
	}

	// Loader failures pass through without caching.
	boom := errors.New("boom")
	if _, err := c.GetOrSet(ctx, "bad", time.Minute, func() ([]byte, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Errorf("expected loader error, got %v", err)
	}
}
