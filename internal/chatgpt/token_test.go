package chatgpt

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestTokenCache_CachesUntilExpiry(t *testing.T) {
	var calls atomic.Int32
	c := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		calls.Add(1)
		return "tok", time.Now().Add(time.Hour), nil
	})

	for i := 0; i < 3; i++ {
		tok, err := c.Get(context.Background())
		if err != nil || tok != "tok" {
			t.Fatalf("get %d: %q, %v", i, tok, err)
		}
	}
	if calls.Load() != 1 {
		t.Fatalf("expected 1 refresh, got %d", calls.Load())
	}
}

func TestTokenCache_RefreshesExpiredToken(t *testing.T) {
	var calls atomic.Int32
	c := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		calls.Add(1)
		// Expires inside the skew window, so every Get refreshes.
		return "tok", time.Now().Add(time.Second), nil
	})

	c.Get(context.Background())
	c.Get(context.Background())
	if calls.Load() != 2 {
		t.Fatalf("expected 2 refreshes, got %d", calls.Load())
	}
}

func TestTokenCache_CoalescesConcurrentRefreshes(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	c := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		calls.Add(1)
		<-release
		return "tok", time.Now().Add(time.Hour), nil
	})

	const n = 8
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.Get(context.Background())
			if err != nil {
				t.Errorf("goroutine %d: %v", i, err)
			}
			results[i] = tok
		}(i)
	}

	// Let the callers pile onto the in-flight refresh before releasing it.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Fatalf("expected 1 coalesced refresh, got %d", calls.Load())
	}
	for i, tok := range results {
		if tok != "tok" {
			t.Fatalf("goroutine %d got %q", i, tok)
		}
	}
}

func TestTokenCache_ErrorNotCached(t *testing.T) {
	var calls atomic.Int32
	c := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		if calls.Add(1) == 1 {
			return "", time.Time{}, errors.New("transient")
		}
		return "tok", time.Now().Add(time.Hour), nil
	})

	if _, err := c.Get(context.Background()); err == nil {
		t.Fatal("expected first refresh to fail")
	}
	tok, err := c.Get(context.Background())
	if err != nil || tok != "tok" {
		t.Fatalf("second refresh should succeed: %q, %v", tok, err)
	}
}

func TestTokenCache_Invalidate(t *testing.T) {
	var calls atomic.Int32
	c := newTokenCache(func(ctx context.Context) (string, time.Time, error) {
		calls.Add(1)
		return "tok", time.Now().Add(time.Hour), nil
	})

	c.Get(context.Background())
	c.Invalidate()
	c.Get(context.Background())
	if calls.Load() != 2 {
		t.Fatalf("expected refresh after invalidation, got %d calls", calls.Load())
	}
}
