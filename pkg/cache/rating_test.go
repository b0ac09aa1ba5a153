package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRatingCache_AddGet(t *testing.T) {
	mc := NewMemoryCache(nil)
	defer mc.Close()
	rc := NewRatingCache(mc, time.Hour)
	ctx := context.Background()

	_, found, err := rc.Get(ctx, "rating:1")
	require.NoError(t, err)
	assert.False(t, found)

	added, err := rc.Add(ctx, "rating:1", "12.5")
	require.NoError(t, err)
	assert.True(t, added)

	added, err = rc.Add(ctx, "rating:1", "99")
	require.NoError(t, err)
	assert.False(t, added)

	l, found, err := rc.Get(ctx, "rating:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "12.5", l)
}

func TestRatingCache_CorruptEntryIsDropped(t *testing.T) {
	mc := NewMemoryCache(nil)
	defer mc.Close()
	rc := NewRatingCache(mc, 0)
	ctx := context.Background()

	require.NoError(t, mc.Set(ctx, "rating:bad", []byte("{not json"), 0))

	_, found, err := rc.Get(ctx, "rating:bad")
	require.NoError(t, err)
	assert.False(t, found)

	exists, err := mc.Exists(ctx, "rating:bad")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRatingCache_Forget(t *testing.T) {
	mc := NewMemoryCache(nil)
	defer mc.Close()
	rc := NewRatingCache(mc, 0)
	ctx := context.Background()

	_, err := rc.Add(ctx, "k", "1")
	require.NoError(t, err)
	require.NoError(t, rc.Forget(ctx, "k"))

	_, found, err := rc.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}
