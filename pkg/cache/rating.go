package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// RatingCache stores engine ratings keyed by a canonical configuration key.
type RatingCache struct {
	cache      Cache
	defaultTTL time.Duration
}

// CachedRating is the serialized form of a cached rating.
type CachedRating struct {
	L        string    `json:"L"`
	CachedAt time.Time `json:"cached_at"`
}

// NewRatingCache wraps c.
func NewRatingCache(c Cache, defaultTTL time.Duration) *RatingCache {
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &RatingCache{
		cache:      c,
		defaultTTL: defaultTTL,
	}
}

// Get returns the cached rating for key.
func (rc *RatingCache) Get(ctx context.Context, key string) (string, bool, error) {
	data, err := rc.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return "", false, nil
		}
		return "", false, err
	}

	var cached CachedRating
	if err := json.Unmarshal(data, &cached); err != nil {
		_ = rc.cache.Delete(ctx, key) //nolint:errcheck // best effort cleanup of a corrupt entry
		return "", false, nil
	}

	return cached.L, true, nil
}

// Add stores rating unless key is already cached. The first writer wins.
func (rc *RatingCache) Add(ctx context.Context, key, rating string) (bool, error) {
	data, err := json.Marshal(CachedRating{L: rating, CachedAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	return rc.cache.SetIfAbsent(ctx, key, data, rc.defaultTTL)
}

// Forget drops key.
func (rc *RatingCache) Forget(ctx context.Context, key string) error {
	return rc.cache.Delete(ctx, key)
}
