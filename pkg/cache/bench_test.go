package cache

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func BenchmarkMemoryCache_Get(b *testing.B) {
	c := NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	_ = c.Set(ctx, "W=40|T=10", []byte("1250"), time.Hour)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = c.Get(ctx, "W=40|T=10")
	}
}

func BenchmarkMemoryCache_SetGetParallel(b *testing.B) {
	c := NewMemoryCache(nil)
	defer c.Close()

	ctx := context.Background()
	value := []byte("1250")

	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			key := fmt.Sprintf("key-%d", i%1000)
			_ = c.Set(ctx, key, value, time.Minute)
			_, _ = c.Get(ctx, key)
			i++
		}
	})
}

func BenchmarkMemoryCache_Eviction(b *testing.B) {
	c := NewMemoryCache(&Options{MaxEntries: 1000, DefaultTTL: time.Minute})
	defer c.Close()

	ctx := context.Background()
	value := []byte("1250")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = c.Set(ctx, fmt.Sprintf("evict-%d", i), value, 0)
	}
}

func BenchmarkRatingCache_AddGet(b *testing.B) {
	c := NewMemoryCache(nil)
	defer c.Close()
	rc := NewRatingCache(c, time.Hour)

	ctx := context.Background()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := fmt.Sprintf("rating-%d", i%5000)
		_, _ = rc.Add(ctx, key, "1250")
		_, _, _ = rc.Get(ctx, key)
	}
}
