package imagepool

import (
	"context"
	"fmt"
	"image"
	"sync/atomic"
	"testing"
)

// stubLoader returns a Loader producing fixed-size resources and counting
// invocations.
func stubLoader(width, height int, calls *atomic.Int64) Loader {
	return func(ctx context.Context, key string) (*Resource, error) {
		if calls != nil {
			calls.Add(1)
		}
		return &Resource{
			Key:    key,
			Image:  image.NewRGBA(image.Rect(0, 0, width, height)),
			Width:  width,
			Height: height,
		}, nil
	}
}

func newTestPool(t *testing.T, opts Options) *Pool {
	t.Helper()
	if opts.Loader == nil {
		opts.Loader = stubLoader(10, 10, nil)
	}
	pool, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return pool
}

func TestNew_RequiresLoader(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() without a Loader should fail")
	}
}

func TestGet_HitAndMissAccounting(t *testing.T) {
	pool := newTestPool(t, Options{})
	ctx := context.Background()

	if _, err := pool.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if _, err := pool.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	stats := pool.Stats()
	if stats.Misses != 1 {
		t.Errorf("Misses = %d, want 1", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
	if stats.Hits+stats.Misses != 2 {
		t.Errorf("Hits+Misses = %d, want total Get calls (2)", stats.Hits+stats.Misses)
	}
}

func TestGet_HitDoesNotReload(t *testing.T) {
	var calls atomic.Int64
	pool := newTestPool(t, Options{Loader: stubLoader(10, 10, &calls)})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := pool.Get(ctx, "a"); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}

	if calls.Load() != 1 {
		t.Errorf("loader invoked %d times, want 1", calls.Load())
	}
}

func TestEviction_CountBound(t *testing.T) {
	pool := newTestPool(t, Options{MaxCount: 3})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := pool.Get(ctx, fmt.Sprintf("key-%d", i)); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}

	stats := pool.Stats()
	if stats.Count != 3 {
		t.Errorf("Count = %d, want 3", stats.Count)
	}
	// Oldest two are gone, newest three remain.
	for i := 0; i < 2; i++ {
		if pool.Has(fmt.Sprintf("key-%d", i)) {
			t.Errorf("key-%d should have been evicted", i)
		}
	}
	for i := 2; i < 5; i++ {
		if !pool.Has(fmt.Sprintf("key-%d", i)) {
			t.Errorf("key-%d should still be cached", i)
		}
	}
}

func TestEviction_RecencyRefreshProtectsEntry(t *testing.T) {
	pool := newTestPool(t, Options{MaxCount: 3})
	ctx := context.Background()

	// Fill: a, b, c (a oldest).
	for _, key := range []string{"a", "b", "c"} {
		if _, err := pool.Get(ctx, key); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}

	// Touch a: b becomes the oldest.
	if _, err := pool.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	// Inserting d must evict b, not a.
	if _, err := pool.Get(ctx, "d"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	if !pool.Has("a") {
		t.Error("recently accessed entry a was evicted")
	}
	if pool.Has("b") {
		t.Error("least recently used entry b survived eviction")
	}
}

func TestEviction_ByteBound(t *testing.T) {
	// Each 100x100 resource estimates at 40000 bytes; cap allows two.
	pool := newTestPool(t, Options{
		MaxCount: 100,
		MaxBytes: 80000,
		Loader:   stubLoader(100, 100, nil),
	})
	ctx := context.Background()

	for _, key := range []string{"a", "b", "c"} {
		if _, err := pool.Get(ctx, key); err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
	}

	stats := pool.Stats()
	if stats.TotalBytes > 80000 {
		t.Errorf("TotalBytes = %d, exceeds cap 80000", stats.TotalBytes)
	}
	if pool.Has("a") {
		t.Error("oldest entry should have been evicted to satisfy the byte cap")
	}
	if !pool.Has("b") || !pool.Has("c") {
		t.Error("newest entries should survive byte-bound eviction")
	}
}

func TestGet_FailedLoadNotCached(t *testing.T) {
	var calls atomic.Int64
	pool := newTestPool(t, Options{
		Loader: func(ctx context.Context, key string) (*Resource, error) {
			calls.Add(1)
			return nil, fmt.Errorf("load refused")
		},
	})
	ctx := context.Background()

	if _, err := pool.Get(ctx, "broken"); err == nil {
		t.Fatal("Get() should propagate the load failure")
	}
	if pool.Has("broken") {
		t.Error("failed load must not be cached")
	}

	// A retry issues a fresh load attempt.
	if _, err := pool.Get(ctx, "broken"); err == nil {
		t.Fatal("Get() should propagate the load failure on retry too")
	}
	if calls.Load() != 2 {
		t.Errorf("loader invoked %d times, want 2", calls.Load())
	}

	stats := pool.Stats()
	if stats.Misses != 2 || stats.Hits != 0 {
		t.Errorf("Stats = %+v, want 2 misses and 0 hits", stats)
	}
}

func TestGet_ContextAbort(t *testing.T) {
	pool := newTestPool(t, Options{
		Loader: func(ctx context.Context, key string) (*Resource, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := pool.Get(ctx, "slow"); err == nil {
		t.Fatal("Get() should fail when the load is aborted")
	}
	if pool.Has("slow") {
		t.Error("aborted load must not leave a cache entry")
	}
}

func TestRemoveAndClear(t *testing.T) {
	pool := newTestPool(t, Options{})
	ctx := context.Background()

	if _, err := pool.Get(ctx, "a"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if _, err := pool.Get(ctx, "b"); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	pool.Remove("a")
	if pool.Has("a") {
		t.Error("Remove() left the entry behind")
	}
	if !pool.Has("b") {
		t.Error("Remove() touched an unrelated entry")
	}

	pool.Clear()
	stats := pool.Stats()
	if stats.Count != 0 || stats.TotalBytes != 0 || stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Stats after Clear() = %+v, want all zero", stats)
	}
}
