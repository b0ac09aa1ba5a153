package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"busbar/pkg/config"
)

func newTestMemoryLimiter(t *testing.T, requests int, window time.Duration) *MemoryLimiter {
	t.Helper()
	l := NewMemoryLimiter(&Config{
		Requests:        requests,
		Window:          window,
		CleanupInterval: time.Hour,
		RetryInterval:   5 * time.Millisecond,
	})
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestMemoryLimiter_Allow(t *testing.T) {
	l := newTestMemoryLimiter(t, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, err := l.Allow(ctx, "engine")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}

	allowed, err := l.Allow(ctx, "engine")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = l.Allow(ctx, "other")
	require.NoError(t, err)
	assert.True(t, allowed, "keys are independent")
}

func TestMemoryLimiter_WindowSlides(t *testing.T) {
	l := newTestMemoryLimiter(t, 1, time.Minute)
	ctx := context.Background()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	allowed, _ := l.Allow(ctx, "engine")
	assert.True(t, allowed)
	allowed, _ = l.Allow(ctx, "engine")
	assert.False(t, allowed)

	now = now.Add(61 * time.Second)
	allowed, _ = l.Allow(ctx, "engine")
	assert.True(t, allowed)
}

func TestMemoryLimiter_Wait(t *testing.T) {
	l := newTestMemoryLimiter(t, 1, 30*time.Millisecond)
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "engine"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "engine"))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestMemoryLimiter_WaitHonorsContext(t *testing.T) {
	l := newTestMemoryLimiter(t, 1, time.Hour)
	_, _ = l.Allow(context.Background(), "engine")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "engine")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryLimiter_Info(t *testing.T) {
	l := newTestMemoryLimiter(t, 5, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, _ = l.Allow(ctx, "engine")
	}

	info, err := l.GetInfo(ctx, "engine")
	require.NoError(t, err)
	assert.Equal(t, 5, info.Limit)
	assert.Equal(t, 3, info.Remaining)
	assert.True(t, info.ResetAt.After(time.Now()))

	info, err = l.GetInfo(ctx, "idle")
	require.NoError(t, err)
	assert.Equal(t, 5, info.Remaining)
}

func TestMemoryLimiter_Concurrent(t *testing.T) {
	l := newTestMemoryLimiter(t, 50, time.Minute)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := l.Allow(ctx, "engine"); ok {
				mu.Lock()
				granted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, granted)
}

func TestMemoryLimiter_Closed(t *testing.T) {
	l := NewMemoryLimiter(nil)
	require.NoError(t, l.Close())
	require.NoError(t, l.Close())

	_, err := l.Allow(context.Background(), "engine")
	assert.ErrorIs(t, err, ErrLimiterClosed)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(&config.RateLimitConfig{
		Enabled:  true,
		Requests: 5,
		Window:   10 * time.Second,
		Backend:  "redis",
	})

	assert.Equal(t, 5, cfg.Requests)
	assert.Equal(t, 10*time.Second, cfg.Window)
	assert.Equal(t, "redis", cfg.Backend)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)

	defaults := FromConfig(&config.RateLimitConfig{})
	assert.Equal(t, 30, defaults.Requests)
	assert.Equal(t, "memory", defaults.Backend)
}

func TestNew_DefaultsToMemory(t *testing.T) {
	l, err := New(nil)
	require.NoError(t, err)
	defer l.Close()

	_, ok := l.(*MemoryLimiter)
	assert.True(t, ok)
}
