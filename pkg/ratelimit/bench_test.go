package ratelimit

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func newBenchLimiter(requests int) *MemoryLimiter {
	return NewMemoryLimiter(&Config{
		Requests:        requests,
		Window:          time.Minute,
		CleanupInterval: time.Hour,
	})
}

func BenchmarkMemoryLimiter_Allow(b *testing.B) {
	l := newBenchLimiter(1_000_000)
	defer l.Close()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.Allow(ctx, "engine")
	}
}

func BenchmarkMemoryLimiter_AllowParallel(b *testing.B) {
	l := newBenchLimiter(1_000_000)
	defer l.Close()

	ctx := context.Background()

	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_, _ = l.Allow(ctx, "engine")
		}
	})
}

func BenchmarkMemoryLimiter_ManyKeys(b *testing.B) {
	l := newBenchLimiter(1000)
	defer l.Close()

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = l.Allow(ctx, fmt.Sprintf("key-%d", i%1000))
	}
}
