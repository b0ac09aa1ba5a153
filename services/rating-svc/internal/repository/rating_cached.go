package repository

import (
	"context"

	"busbar/pkg/cache"
	"busbar/pkg/logger"
	"busbar/pkg/metrics"
	"busbar/services/rating-svc/internal/domain"
)

// CachedRatingRepository fronts a persistent RatingRepository with pkg/cache.
// Lookups read through the cache; inserts write through to both. The
// persistent store stays authoritative: cache failures are logged and the
// store is consulted instead.
type CachedRatingRepository struct {
	store   RatingRepository
	cache   *cache.RatingCache
	metrics *metrics.Metrics
}

// NewCachedRatingRepository wraps store with rc.
func NewCachedRatingRepository(store RatingRepository, rc *cache.RatingCache, m *metrics.Metrics) *CachedRatingRepository {
	return &CachedRatingRepository{store: store, cache: rc, metrics: m}
}

func (r *CachedRatingRepository) Lookup(ctx context.Context, cfg domain.Configuration) (string, bool, error) {
	key := cfg.Key()

	rating, ok, err := r.cache.Get(ctx, key)
	switch {
	case err != nil:
		logger.Log.Warn("rating cache read failed", "key", key, "error", err)
	case ok:
		r.metrics.RecordRatingLookup("cache", "hit")
		return rating, true, nil
	default:
		r.metrics.RecordRatingLookup("cache", "miss")
	}

	rating, ok, err = r.store.Lookup(ctx, cfg)
	if err != nil {
		return "", false, err
	}
	if !ok {
		r.metrics.RecordRatingLookup("store", "miss")
		return "", false, nil
	}
	r.metrics.RecordRatingLookup("store", "hit")

	if _, err := r.cache.Add(ctx, key, rating); err != nil {
		logger.Log.Warn("rating cache fill failed", "key", key, "error", err)
	}
	return rating, true, nil
}

func (r *CachedRatingRepository) InsertIfAbsent(ctx context.Context, cfg domain.Configuration, rating string) (bool, error) {
	inserted, err := r.store.InsertIfAbsent(ctx, cfg, rating)
	if err != nil {
		return false, err
	}

	// A lost race leaves the cache untouched until the next lookup fills it
	// from the store's winning value.
	if inserted {
		if _, err := r.cache.Add(ctx, cfg.Key(), rating); err != nil {
			logger.Log.Warn("rating cache write failed", "key", cfg.Key(), "error", err)
		}
	}
	return inserted, nil
}

func (r *CachedRatingRepository) MaxRatedForce(ctx context.Context, cfg domain.Configuration) (int, bool, error) {
	return r.store.MaxRatedForce(ctx, cfg)
}
